// Package accounting owns the durable request log and the per-model
// aggregate statistics. Records outlive any single request.
package accounting

import (
	"context"
	"time"

	"github.com/ndthang/smart-router/config"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// RequestRecord is the persisted trace of one routing attempt, successful or
// not. Created once, never mutated afterwards.
type RequestRecord struct {
	ID           string
	Timestamp    time.Time
	Prompt       string
	Tier         config.Tier
	Confidence   float64
	Model        string
	Response     string
	TokensUsed   int
	LatencyMs    float64
	CostUSD      float64
	CostSavedUSD float64
	UserID       string
	Status       string
}

// ModelStats is the running aggregate for one backend model. AvgLatencyMs is
// maintained incrementally; it is never recomputed from the raw records.
type ModelStats struct {
	Model         string
	TotalRequests int64
	TotalTokens   int64
	TotalCostUSD  float64
	AvgLatencyMs  float64
	LastUpdated   time.Time
}

type Store interface {
	// Append persists a record and fills in its ID and Timestamp.
	Append(ctx context.Context, rec *RequestRecord) error
	// UpsertAggregate folds one successful request into the model's
	// aggregate row, creating it on first use. The update must be atomic
	// under concurrent requests to the same model.
	UpsertAggregate(ctx context.Context, model string, tokens int, costUSD, latencyMs float64) error
	QueryAllSuccessful(ctx context.Context) ([]*RequestRecord, error)
	QueryAggregates(ctx context.Context) ([]*ModelStats, error)
}
