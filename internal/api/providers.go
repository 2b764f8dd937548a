package api

import (
	"context"
	nethttp "net/http"

	"github.com/bhtools/podbulk/internal/models"
)

// GenerateTitle asks the service to generate a title with an AI provider.
// Used as the AI credential probe; the title itself is discarded there.
func (c *Client) GenerateTitle(ctx context.Context, req models.GenerateRequest) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	if err := c.call(ctx, "generate title", nethttp.MethodPost, "/api/generate_title", "", req, &out); err != nil {
		return "", err
	}
	return out.Title, nil
}

// ListOllamaModels returns the model names of the service's local runtime.
func (c *Client) ListOllamaModels(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.call(ctx, "list ollama models", nethttp.MethodGet, "/api/ollama_models", "", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

// SetKeys stores provider keys on the service. Nil fields are left as is.
func (c *Client) SetKeys(ctx context.Context, update models.KeyUpdate) (*models.Ack, error) {
	var ack models.Ack
	if err := c.call(ctx, "save keys", nethttp.MethodPost, "/api/set_keys", "", update, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// GetKeys returns the keys saved on the service.
func (c *Client) GetKeys(ctx context.Context) (*models.SavedKeys, error) {
	var keys models.SavedKeys
	if err := c.call(ctx, "get keys", nethttp.MethodGet, "/api/get_keys", "", nil, &keys); err != nil {
		return nil, err
	}
	return &keys, nil
}
