// Package repository keeps finished analyses for the HTTP API.
package repository

import (
	"context"
	"time"

	"github.com/okian/abbayes/internal/domain/model"
)

// Entry is the listing view of a stored analysis.
type Entry struct {
	ID        string        `json:"id"`
	Model     string        `json:"model"`
	Arms      int           `json:"arms"`
	Healthy   bool          `json:"healthy"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Store provides read/write access to finished analyses.
type Store interface {
	// Save stores an analysis under its ID, replacing an existing one.
	Save(ctx context.Context, a *model.Analysis) error

	// Get returns the analysis with the given ID.
	// Returns ErrNotFound if the ID is unknown.
	Get(ctx context.Context, id string) (*model.Analysis, error)

	// List returns up to limit entries, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)

	// Count returns the number of stored analyses.
	Count(ctx context.Context) int
}
