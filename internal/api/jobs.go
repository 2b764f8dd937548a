package api

import (
	"context"
	nethttp "net/http"

	"github.com/bhtools/podbulk/internal/models"
)

// CreateProducts submits a bulk creation job. The service runs one job at
// a time and acknowledges immediately; progress is read with GetProgress.
func (c *Client) CreateProducts(ctx context.Context, req *models.JobRequest) (*models.Ack, error) {
	var ack models.Ack
	if err := c.call(ctx, "create products", nethttp.MethodPost, "/api/create_products", "", req, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}

// GetProgress returns the current progress snapshot of the service's job.
func (c *Client) GetProgress(ctx context.Context) (*models.JobProgress, error) {
	var p models.JobProgress
	if err := c.call(ctx, "get progress", nethttp.MethodGet, "/api/progress", "", nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Cancel asks the service to stop the running job.
func (c *Client) Cancel(ctx context.Context) (*models.Ack, error) {
	var ack models.Ack
	if err := c.call(ctx, "cancel", nethttp.MethodPost, "/api/cancel", "", nil, &ack); err != nil {
		return nil, err
	}
	return &ack, nil
}
