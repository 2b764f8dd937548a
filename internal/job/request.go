package job

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/bhtools/podbulk/internal/models"
)

// DefaultPlacementMode is sent when no placement mode is chosen.
const DefaultPlacementMode = "replace"

// Inputs is the session state read at submission time.
type Inputs struct {
	Assets        []string
	CatalogID     string
	TemplateID    string
	APIKey        string
	Provider      models.CredentialKind
	OpenAIKey     string
	GeminiKey     string
	OllamaModel   string
	PlacementMode string
	// Rules are passed to the service untouched, apart from the provider
	// and model entries which are filled in when absent.
	Rules map[string]any
}

// Check applies the submission preconditions in order and returns the
// first one that fails.
func Check(in Inputs) error {
	switch {
	case len(in.Assets) == 0:
		return ErrNoAssets
	case in.CatalogID == "":
		return ErrNoCatalog
	case in.TemplateID == "":
		return ErrNoTemplate
	}
	return nil
}

// ConfirmPrompt is the question asked before a submission of count products.
func ConfirmPrompt(count int) string {
	return fmt.Sprintf("Are you sure you want to create %d products?", count)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// BuildRequest assembles and validates the request body. Only the key of
// the chosen AI provider is sent.
func BuildRequest(in Inputs) (*models.JobRequest, error) {
	placement := in.PlacementMode
	if placement == "" {
		placement = DefaultPlacementMode
	}
	provider := in.Provider
	if provider == "" {
		provider = models.KindOpenAI
	}

	rules := make(map[string]any, len(in.Rules)+2)
	for k, v := range in.Rules {
		rules[k] = v
	}
	if _, ok := rules["ai_provider"]; !ok {
		rules["ai_provider"] = string(provider)
	}
	if _, ok := rules["ollama_model"]; !ok {
		rules["ollama_model"] = in.OllamaModel
	}
	raw, err := json.Marshal(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}

	req := &models.JobRequest{
		Images:        append([]string(nil), in.Assets...),
		PlacementMode: placement,
		StoreID:       in.CatalogID,
		ProductID:     in.TemplateID,
		APIKey:        in.APIKey,
		Rules:         raw,
	}
	switch provider {
	case models.KindOpenAI:
		req.OpenAIKey = in.OpenAIKey
	case models.KindGemini:
		req.GeminiKey = in.GeminiKey
	}

	if err := validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRequest, describe(err))
	}
	return req, nil
}

// describe turns validator errors into "field: rule" pairs.
func describe(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", fe.Namespace(), fe.Tag()))
	}
	return strings.Join(parts, ", ")
}
