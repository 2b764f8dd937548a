// Package models defines data structures shared by the podbulk client.
package models

import "encoding/json"

// JobRequest is the body of POST /api/create_products. It is assembled
// fresh for every submission and never persisted.
type JobRequest struct {
	Images        []string        `json:"images" validate:"required,min=1,dive,required"`
	PlacementMode string          `json:"placement_mode" validate:"required"`
	StoreID       string          `json:"store_id" validate:"required"`
	ProductID     string          `json:"product_id" validate:"required"`
	APIKey        string          `json:"api_key" validate:"required"`
	OpenAIKey     string          `json:"openai_key"`
	GeminiKey     string          `json:"gemini_key"`
	Rules         json.RawMessage `json:"rules"`
}

// JobStatus is the service-reported state of the single active job.
type JobStatus string

const (
	JobIdle      JobStatus = "idle"
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobWorking   JobStatus = "working" // what the service reports while it runs
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobError     JobStatus = "error"
)

// IsTerminal reports whether no further state change is expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobCancelled, JobError:
		return true
	default:
		return false
	}
}

// JobProgress mirrors GET /api/progress. The client only ever holds the
// most recent snapshot.
type JobProgress struct {
	Status  JobStatus `json:"status"`
	Current int       `json:"current"`
	Total   int       `json:"total"`
	Message string    `json:"message"`
}

// Ratio returns current/total clamped to [0,1].
func (p JobProgress) Ratio() float64 {
	if p.Total <= 0 {
		return 0
	}
	r := float64(p.Current) / float64(p.Total)
	if r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// Ack is the generic {message} acknowledgment returned by job endpoints.
type Ack struct {
	Message string `json:"message"`
}
