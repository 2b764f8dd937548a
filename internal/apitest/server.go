// Package apitest provides a scriptable in-process fake of the listing
// service for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/bhtools/podbulk/internal/models"
)

// Server is a fake listing service. All setters are safe to call while
// requests are in flight.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	calls         map[string]int
	platformKeys  map[string]bool
	stores        []models.Catalog
	products      map[string][]models.TemplateItem
	details       map[string]models.TemplateDetails
	aiKeys        map[string]string
	ollamaModels  []string
	ollamaError   string
	files         map[string]bool
	deleteErrors  map[string]string
	uploadError   string
	createError   string
	progress      []models.JobProgress
	jobs          []models.JobRequest
	savedKeys     map[string]string
	hooks         map[string]func(*http.Request)
	transportFail map[string]bool
}

// New starts a fake service that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		calls:         make(map[string]int),
		platformKeys:  make(map[string]bool),
		products:      make(map[string][]models.TemplateItem),
		details:       make(map[string]models.TemplateDetails),
		aiKeys:        make(map[string]string),
		files:         make(map[string]bool),
		deleteErrors:  make(map[string]string),
		savedKeys:     make(map[string]string),
		hooks:         make(map[string]func(*http.Request)),
		transportFail: make(map[string]bool),
		progress:      []models.JobProgress{{Status: models.JobIdle}},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.intercept)

	r.Get("/api/stores", s.handleStores)
	r.Get("/api/products", s.handleProducts)
	r.Get("/api/product_details", s.handleDetails)
	r.Get("/api/ollama_models", s.handleOllamaModels)
	r.Post("/api/upload", s.handleUpload)
	r.Post("/api/delete_file", s.handleDelete)
	r.Post("/api/generate_title", s.handleGenerateTitle)
	r.Post("/api/create_products", s.handleCreate)
	r.Get("/api/progress", s.handleProgress)
	r.Post("/api/cancel", s.handleCancel)
	r.Post("/api/set_keys", s.handleSetKeys)
	r.Get("/api/get_keys", s.handleGetKeys)
	return r
}

// intercept counts calls, runs hooks and simulates transport failures.
func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		s.mu.Lock()
		s.calls[path]++
		hook := s.hooks[path]
		s.mu.Unlock()

		if hook != nil {
			hook(r)
		}

		s.mu.Lock()
		fail := s.transportFail[path]
		s.mu.Unlock()

		if fail {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
					return
				}
			}
			http.Error(w, "transport failure", http.StatusBadGateway)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Calls returns how many requests hit path.
func (s *Server) Calls(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[path]
}

// TotalCalls returns the number of requests across all paths.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

// Hook runs fn before path is handled. fn may block to hold a request
// in flight.
func (s *Server) Hook(path string, fn func(*http.Request)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fn == nil {
		delete(s.hooks, path)
		return
	}
	s.hooks[path] = fn
}

// FailTransport makes path drop the connection without answering.
func (s *Server) FailTransport(path string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transportFail[path] = fail
}

// AddPlatformKey registers a valid platform key.
func (s *Server) AddPlatformKey(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.platformKeys[key] = true
}

// SetStores sets the catalogs returned for any valid platform key.
func (s *Server) SetStores(stores ...models.Catalog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stores = stores
}

// SetProducts sets the template items of a store.
func (s *Server) SetProducts(storeID string, items ...models.TemplateItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[storeID] = items
}

// SetDetails sets the details of one template item.
func (s *Server) SetDetails(storeID, productID string, d models.TemplateDetails) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details[storeID+"/"+productID] = d
}

// SetAIKey registers the valid key of an AI provider.
func (s *Server) SetAIKey(provider, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiKeys[provider] = key
}

// SetOllamaModels sets the local model list. A non-empty errText makes the
// endpoint answer {error} instead.
func (s *Server) SetOllamaModels(errText string, names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ollamaModels = names
	s.ollamaError = errText
}

// SetDeleteError makes deleting name fail with text.
func (s *Server) SetDeleteError(name, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteErrors[name] = text
}

// SetUploadError makes uploads fail with text.
func (s *Server) SetUploadError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploadError = text
}

// SetCreateError makes job submission fail with text.
func (s *Server) SetCreateError(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createError = text
}

// ScriptProgress sets the snapshots returned by successive polls. Each poll
// consumes one snapshot; the last one repeats.
func (s *Server) ScriptProgress(snapshots ...models.JobProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(snapshots) == 0 {
		snapshots = []models.JobProgress{{Status: models.JobIdle}}
	}
	s.progress = snapshots
}

// Files returns the stored file names.
func (s *Server) Files() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.files))
	for n := range s.files {
		names = append(names, n)
	}
	return names
}

// PutFile stores a file as if it had been uploaded.
func (s *Server) PutFile(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = true
}

// Jobs returns the job requests received.
func (s *Server) Jobs() []models.JobRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JobRequest(nil), s.jobs...)
}

// SavedKeys returns the keys stored through set_keys.
func (s *Server) SavedKeys() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.savedKeys))
	for k, v := range s.savedKeys {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func (s *Server) authorized(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.platformKeys[bearer(r)]
}

func (s *Server) handleStores(w http.ResponseWriter, r *http.Request) {
	if bearer(r) == "" {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, `Failed to fetch stores: {"error":"Unauthenticated"}`)
		return
	}
	s.mu.Lock()
	stores := append([]models.Catalog{}, s.stores...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, stores)
}

func (s *Server) handleProducts(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}
	storeID := r.URL.Query().Get("store_id")
	s.mu.Lock()
	items, ok := s.products[storeID]
	items = append([]models.TemplateItem{}, items...)
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Failed to fetch products: shop %s not found", storeID))
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "API key required")
		return
	}
	q := r.URL.Query()
	s.mu.Lock()
	d, ok := s.details[q.Get("store_id")+"/"+q.Get("product_id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Failed to fetch product: not found")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleOllamaModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	names := append([]string{}, s.ollamaModels...)
	errText := s.ollamaError
	s.mu.Unlock()
	if errText != "" {
		writeError(w, http.StatusInternalServerError, errText)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	errText := s.uploadError
	s.mu.Unlock()
	if errText != "" {
		writeError(w, http.StatusInternalServerError, errText)
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "No files")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "No files")
		return
	}

	uploaded := []string{}
	s.mu.Lock()
	for _, fh := range headers {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
		switch ext {
		case "png", "jpg", "jpeg", "gif":
			s.files[fh.Filename] = true
			uploaded = append(uploaded, fh.Filename)
		}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string][]string{"uploaded": uploaded})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Filename == "" {
		writeError(w, http.StatusBadRequest, "Filename not provided")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if text, ok := s.deleteErrors[body.Filename]; ok {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": text})
		return
	}
	if !s.files[body.Filename] {
		writeError(w, http.StatusNotFound, "File not found")
		return
	}
	delete(s.files, body.Filename)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": fmt.Sprintf("File %s deleted.", body.Filename),
	})
}

func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	provider := body["provider"]
	if provider == "" {
		provider = "openai"
	}
	if provider == "ollama" {
		s.mu.Lock()
		errText := s.ollamaError
		s.mu.Unlock()
		if errText != "" {
			writeError(w, http.StatusInternalServerError, errText)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"title": "Local Title"})
		return
	}

	key := body[provider+"_key"]
	if key == "" {
		writeError(w, http.StatusBadRequest, strings.ToUpper(provider[:1])+provider[1:]+" API key required")
		return
	}
	s.mu.Lock()
	valid := s.aiKeys[provider]
	s.mu.Unlock()
	if key != valid {
		writeError(w, http.StatusInternalServerError, "Incorrect API key provided")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"title": "Sunset Dreams Tee"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.JobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	errText := s.createError
	if errText == "" {
		s.jobs = append(s.jobs, req)
	}
	s.mu.Unlock()
	if errText != "" {
		writeError(w, http.StatusBadRequest, errText)
		return
	}
	writeJSON(w, http.StatusOK, models.Ack{Message: "Creation started"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	p := s.progress[0]
	if len(s.progress) > 1 {
		s.progress = s.progress[1:]
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.Ack{Message: "Operation cancelled"})
}

func (s *Server) handleSetKeys(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	s.mu.Lock()
	for k, v := range body {
		s.savedKeys[k] = v
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, models.Ack{Message: "API keys saved"})
}

func (s *Server) handleGetKeys(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, p := s.savedKeys["printify_key"]
	_, o := s.savedKeys["openai_key"]
	_, g := s.savedKeys["gemini_key"]
	writeJSON(w, http.StatusOK, models.SavedKeys{
		PrintifyKeySet: p,
		OpenAIKeySet:   o,
		GeminiKeySet:   g,
		PrintifyKey:    s.savedKeys["printify_key"],
		OpenAIKey:      s.savedKeys["openai_key"],
		GeminiKey:      s.savedKeys["gemini_key"],
	})
}
