package storage

import (
	"context"
	"time"
)

const (
	// DefaultListLimit is used when List is called with a non-positive limit.
	DefaultListLimit = 20

	// MaxListLimit caps a single List call.
	MaxListLimit = 100
)

// RequestRecord is the metadata kept for one chat request.
type RequestRecord struct {
	ID         string    `json:"id"`
	RequestID  string    `json:"request_id"`
	Subject    string    `json:"subject,omitempty"`
	Tenant     string    `json:"tenant,omitempty"`
	Model      string    `json:"model,omitempty"`
	Stream     bool      `json:"stream"`
	Messages   int       `json:"messages"`
	Status     int       `json:"status"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RequestLog persists and lists request records.
type RequestLog interface {
	// Save stores a record. Returns ErrConflict when the ID is taken.
	Save(ctx context.Context, rec *RequestRecord) error

	// List returns up to limit records, newest first. When the context
	// carries a tenant, only that tenant's records are returned.
	List(ctx context.Context, limit int) ([]*RequestRecord, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}

// ClampLimit normalizes a List limit into [1, MaxListLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
