package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/ndthang/smart-router/config"
	"github.com/ndthang/smart-router/internal/accounting"
	"github.com/ndthang/smart-router/internal/backend"
	"github.com/ndthang/smart-router/internal/classifier"
)

// Generator is the slice of the backend registry the orchestrator needs.
type Generator interface {
	Generate(ctx context.Context, model, prompt string, maxTokens int, temperature float64) backend.Outcome
}

// Result is what a successful routed generation hands back to the caller.
// Cost fields are unrounded; rounding happens at the presentation boundary.
type Result struct {
	Text         string
	Tier         config.Tier
	Confidence   float64
	Reasoning    string
	Model        string
	TokensUsed   int
	CostUSD      float64
	CostSavedUSD float64
	LatencyMs    float64
	RecordID     string
}

// BackendError marks an invocation failure that was already persisted as an
// error record. The transport layer maps it to a server-fault response.
type BackendError struct {
	Model  string
	Detail string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s failed: %s", e.Model, e.Detail)
}

type Orchestrator struct {
	table    *Table
	backends Generator
	store    accounting.Store
}

func NewOrchestrator(table *Table, backends Generator, store accounting.Store) *Orchestrator {
	return &Orchestrator{table: table, backends: backends, store: store}
}

// RouteAndGenerate classifies the prompt, invokes the tier's backend and
// accounts for the attempt. Every attempt leaves a RequestRecord behind,
// error outcomes included. A persistence failure after a successful
// generation is surfaced rather than swallowed: the caller already has the
// tokens, but silently losing the accounting would be worse.
func (o *Orchestrator) RouteAndGenerate(ctx context.Context, prompt string, maxTokens int, temperature float64, userID string) (*Result, error) {
	start := time.Now()

	classification := classifier.Classify(prompt)
	decision := o.table.Decide(classification.Tier)

	outcome := o.backends.Generate(ctx, decision.Model, prompt, maxTokens, temperature)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000

	if outcome.Status == backend.StatusError {
		rec := &accounting.RequestRecord{
			Prompt:     prompt,
			Tier:       classification.Tier,
			Confidence: classification.Confidence,
			Model:      decision.Model,
			Response:   outcome.ErrorDetail,
			LatencyMs:  latencyMs,
			UserID:     userID,
			Status:     accounting.StatusError,
		}
		if err := o.store.Append(ctx, rec); err != nil {
			return nil, fmt.Errorf("backend %s failed (%s) and error record could not be persisted: %w",
				decision.Model, outcome.ErrorDetail, err)
		}
		return nil, &BackendError{Model: decision.Model, Detail: outcome.ErrorDetail}
	}

	costUSD := float64(outcome.TokenCount) * decision.PricePerToken
	costSavedUSD := float64(outcome.TokenCount)*o.table.BaselinePricePerToken() - costUSD

	if err := o.store.UpsertAggregate(ctx, decision.Model, outcome.TokenCount, costUSD, latencyMs); err != nil {
		return nil, fmt.Errorf("failed to update aggregate for %s: %w", decision.Model, err)
	}

	rec := &accounting.RequestRecord{
		Prompt:       prompt,
		Tier:         classification.Tier,
		Confidence:   classification.Confidence,
		Model:        decision.Model,
		Response:     outcome.Text,
		TokensUsed:   outcome.TokenCount,
		LatencyMs:    latencyMs,
		CostUSD:      costUSD,
		CostSavedUSD: costSavedUSD,
		UserID:       userID,
		Status:       accounting.StatusSuccess,
	}
	if err := o.store.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("generation succeeded but record could not be persisted: %w", err)
	}

	return &Result{
		Text:         outcome.Text,
		Tier:         classification.Tier,
		Confidence:   classification.Confidence,
		Reasoning:    classification.Reasoning(),
		Model:        decision.Model,
		TokensUsed:   outcome.TokenCount,
		CostUSD:      costUSD,
		CostSavedUSD: costSavedUSD,
		LatencyMs:    latencyMs,
		RecordID:     rec.ID,
	}, nil
}
