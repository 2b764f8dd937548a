package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bhtools/podbulk/internal/apitest"
	"github.com/bhtools/podbulk/internal/catalog"
	"github.com/bhtools/podbulk/internal/config"
	"github.com/bhtools/podbulk/internal/models"
)

type harness struct {
	t   *testing.T
	srv *apitest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	t.Setenv("PODBULK_CONFIG_DIR", t.TempDir())
	t.Setenv("PODBULK_API_KEY", "")
	chdir(t, t.TempDir())

	srv := apitest.New(t)
	srv.AddPlatformKey("pk")
	srv.SetStores(models.Catalog{ID: "12", Name: "Main"})
	srv.SetProducts("12", models.TemplateItem{ID: "p1", Title: "Tee"})
	return &harness{t: t, srv: srv}
}

// run executes podbulk with args against the fake service.
func (h *harness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	root := NewRootCmd()
	AddCommands(root)

	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--api-url", h.srv.URL, "--poll-interval", "10ms"}, args...))

	err := root.Execute()
	return out.String(), errOut.String(), err
}

func (h *harness) images(names ...string) []string {
	h.t.Helper()
	dir := h.t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(h.t, os.WriteFile(p, []byte(n), 0o644))
		paths = append(paths, p)
	}
	return paths
}

func TestValidateCommand(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("", "--api-key", "pk", "validate", "printify")
	require.NoError(t, err)
	assert.Contains(t, out, "Printify API Key validated successfully!")

	out, _, err = h.run("", "--api-key", "nope", "validate", "printify")
	require.Error(t, err)
	assert.Contains(t, out, "Invalid Printify API Key")

	// A blank key is reported without a request.
	before := h.srv.TotalCalls()
	out, _, err = h.run("", "validate", "printify")
	require.NoError(t, err)
	assert.Contains(t, out, "not set")
	assert.Equal(t, before, h.srv.TotalCalls())
}

func TestStoresAndProducts(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "stores")
	assert.ErrorIs(t, err, errNoPlatformKey)

	out, _, err := h.run("", "--api-key", "pk", "stores")
	require.NoError(t, err)
	assert.Contains(t, out, "12")
	assert.Contains(t, out, "Main")

	out, _, err = h.run("", "--api-key", "pk", "products", "--store", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "Tee")

	h.srv.SetDetails("12", "p1", models.TemplateDetails{Title: "Tee", Description: "Soft", Tags: []string{"a", "b"}})
	out, _, err = h.run("", "--api-key", "pk", "products", "show", "--store", "12", "--product", "p1")
	require.NoError(t, err)
	assert.Contains(t, out, "a, b")
	assert.Contains(t, out, "Soft")
}

func TestProductsOfUnknownStore(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "--api-key", "pk", "products", "--store", "ghost-store")
	assert.ErrorIs(t, err, catalog.ErrUnknownOption)
	// One listing validates the key, the second fills the store list.
	assert.Equal(t, 2, h.srv.Calls("/api/stores"))
	assert.Equal(t, 0, h.srv.Calls("/api/products"))

	_, errOut, err := h.run("", "--api-key", "wrong", "products", "--store", "12")
	require.Error(t, err)
	assert.Contains(t, errOut, "Printify")
	assert.Equal(t, 0, h.srv.Calls("/api/products"))
}

func TestModelsCommand(t *testing.T) {
	h := newHarness(t)
	h.srv.SetOllamaModels("", "llama3", "mistral")

	out, _, err := h.run("", "models")
	require.NoError(t, err)
	assert.Contains(t, out, "llama3")
	assert.Contains(t, out, "mistral")

	h.srv.SetOllamaModels("Ollama is not running")
	_, _, err = h.run("", "models")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Ollama is not running")
}

func TestFilesUploadListDelete(t *testing.T) {
	h := newHarness(t)
	paths := h.images("a.png", "b.jpg")

	out, _, err := h.run("", append([]string{"files", "upload"}, paths...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "Uploaded 2 of 2 file(s)")

	out, _, err = h.run("", "files", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "a.png")
	assert.Contains(t, out, "b.jpg")

	out, _, err = h.run("", "files", "delete", "a.png")
	require.NoError(t, err)
	assert.Contains(t, out, "File a.png deleted.")

	r, err := loadRecordForTest()
	require.NoError(t, err)
	assert.Equal(t, []string{"b.jpg"}, r)

	h.srv.SetDeleteError("b.jpg", "Permission denied")
	_, errOut, err := h.run("", "files", "delete", "b.jpg")
	require.Error(t, err)
	assert.Contains(t, errOut, "Error deleting file: Permission denied")

	r, err = loadRecordForTest()
	require.NoError(t, err)
	assert.Equal(t, []string{"b.jpg"}, r)
}

func TestCreateWatch(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress(
		models.JobProgress{Status: models.JobWorking, Current: 1, Total: 3},
		models.JobProgress{Status: models.JobCompleted, Current: 3, Total: 3, Message: "Done"},
	)
	paths := h.images("one.png", "two.png", "three.png")

	args := append([]string{"--api-key", "pk", "create", "--store", "12", "--product", "p1", "--yes", "--watch", "--rule", "title_source=ai"}, paths...)
	out, errOut, err := h.run("", args...)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Are you sure you want to create 3 products? yes")
	assert.Contains(t, out, "Creation started")
	assert.Contains(t, out, "Status: completed  Progress: 3/3  Done")

	jobs := h.srv.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, []string{"one.png", "two.png", "three.png"}, jobs[0].Images)
	assert.Contains(t, string(jobs[0].Rules), `"title_source":"ai"`)
}

func TestCreateDeclinedSendsNothing(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("", append([]string{"files", "upload"}, h.images("one.png", "two.png")...)...)
	require.NoError(t, err)

	_, errOut, err := h.run("n\n", "--api-key", "pk", "create", "--store", "12", "--product", "p1")
	require.NoError(t, err)
	assert.Contains(t, errOut, "Are you sure you want to create 2 products? [y/N]")
	assert.Contains(t, errOut, "Aborted.")
	assert.Empty(t, h.srv.Jobs())
}

func TestCreatePreconditions(t *testing.T) {
	h := newHarness(t)

	_, _, err := h.run("", "--api-key", "pk", "create", "--store", "12", "--product", "p1", "--yes")
	require.Error(t, err)
	assert.Equal(t, "Please select at least one image file.", err.Error())

	_, _, err = h.run("", append([]string{"files", "upload"}, h.images("a.png")...)...)
	require.NoError(t, err)

	_, _, err = h.run("", "--api-key", "pk", "create", "--yes")
	require.Error(t, err)
	assert.Equal(t, "Please select a store.", err.Error())

	_, _, err = h.run("", "--api-key", "pk", "create", "--store", "12", "--yes")
	require.Error(t, err)
	assert.Equal(t, "Please select an example product.", err.Error())
	assert.Equal(t, 0, h.srv.Calls("/api/create_products"))
}

func TestProgressAndCancel(t *testing.T) {
	h := newHarness(t)
	h.srv.ScriptProgress(models.JobProgress{Status: models.JobWorking, Current: 2, Total: 5, Message: "Working"})

	out, _, err := h.run("", "progress")
	require.NoError(t, err)
	assert.Contains(t, out, "Status: working  Progress: 2/5  Working")

	out, _, err = h.run("", "cancel")
	require.NoError(t, err)
	assert.Contains(t, out, "Operation cancelled")
	assert.Equal(t, 1, h.srv.Calls("/api/cancel"))
}

func TestKeysSetAndShow(t *testing.T) {
	h := newHarness(t)

	out, _, err := h.run("pk-secret-1234\n\ngm-key-9876\n", "keys", "set", "--local")
	require.NoError(t, err)
	assert.Contains(t, out, "API keys saved")

	saved := h.srv.SavedKeys()
	assert.Equal(t, "pk-secret-1234", saved["printify_key"])
	assert.Equal(t, "gm-key-9876", saved["gemini_key"])
	assert.NotContains(t, saved, "openai_key")

	gem, err := config.NewKeystore(config.DefaultKeystorePath()).Get(models.KindGemini)
	require.NoError(t, err)
	assert.Equal(t, "gm-key-9876", gem)

	out, _, err = h.run("", "keys", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "1234")
	assert.NotContains(t, out, "pk-secret")
}

func TestLoadRules(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"max_ai_tags":"5","title_source":"custom"}`), 0o644))

	rules, err := loadRules(path, []string{"title_source=ai", "evergreen_tags=tee, gift"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"max_ai_tags":    "5",
		"title_source":   "ai",
		"evergreen_tags": "tee, gift",
	}, rules)

	_, err = loadRules("", []string{"novalue"})
	assert.Error(t, err)

	rules, err = loadRules("", nil)
	require.NoError(t, err)
	assert.Nil(t, rules)
}
