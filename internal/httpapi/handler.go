// Package httpapi is the inbound transport: request validation, rounding for
// presentation, and the mapping from orchestrator failures to status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ndthang/smart-router/internal/accounting"
	"github.com/ndthang/smart-router/internal/auth"
	"github.com/ndthang/smart-router/internal/routing"
	"github.com/ndthang/smart-router/pkg/ratelimit"
)

const (
	maxPromptChars     = 50000
	defaultMaxTokens   = 1000
	maxMaxTokens       = 4000
	defaultTemperature = 0.7
)

type Handler struct {
	orchestrator *routing.Orchestrator
	store        accounting.Store
	limiter      *ratelimit.Limiter
	tracer       trace.Tracer
}

func NewHandler(orchestrator *routing.Orchestrator, store accounting.Store, limiter *ratelimit.Limiter, tracer trace.Tracer) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		store:        store,
		limiter:      limiter,
		tracer:       tracer,
	}
}

type generateRequest struct {
	Prompt      string   `json:"prompt"`
	UserID      string   `json:"user_id,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
}

type generateResponse struct {
	Response     string  `json:"response"`
	ModelUsed    string  `json:"model_used"`
	Difficulty   string  `json:"difficulty"`
	Confidence   float64 `json:"classification_confidence"`
	TokensUsed   int     `json:"tokens_used"`
	CostUSD      float64 `json:"cost_usd"`
	CostSavedUSD float64 `json:"cost_saved_usd"`
	LatencyMs    float64 `json:"latency_ms"`
	RequestID    string  `json:"request_id"`
}

func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Validation errors are client faults and never reach the classifier or
	// the accounting store.
	promptLen := utf8.RuneCountInString(req.Prompt)
	if promptLen < 1 || promptLen > maxPromptChars {
		writeError(w, http.StatusBadRequest, "prompt must be between 1 and 50000 characters")
		return
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens < 1 || maxTokens > maxMaxTokens {
		writeError(w, http.StatusBadRequest, "max_tokens must be between 1 and 4000")
		return
	}

	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	if temperature < 0 || temperature > 2 {
		writeError(w, http.StatusBadRequest, "temperature must be between 0 and 2")
		return
	}

	userID := req.UserID
	if userID == "" {
		userID = auth.GetAccountID(ctx)
	}

	allowed, err := h.limiter.Allow(ctx, userID, maxTokens)
	if err != nil || !allowed {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Retry-After", "60s")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{
			"error":       "rate limit exceeded",
			"retry_after": "60s",
		})
		return
	}

	ctx, span := h.tracer.Start(ctx, "router.generate")
	defer span.End()

	result, err := h.orchestrator.RouteAndGenerate(ctx, req.Prompt, maxTokens, temperature, userID)
	if err != nil {
		var be *routing.BackendError
		if errors.As(err, &be) {
			writeError(w, http.StatusBadGateway, be.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("router.tier", string(result.Tier)),
		attribute.String("router.model", result.Model),
		attribute.Int("router.tokens_used", result.TokensUsed),
		attribute.Float64("router.cost_usd", result.CostUSD),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(generateResponse{
		Response:     result.Text,
		ModelUsed:    result.Model,
		Difficulty:   string(result.Tier),
		Confidence:   result.Confidence,
		TokensUsed:   result.TokensUsed,
		CostUSD:      round(result.CostUSD, 6),
		CostSavedUSD: round(result.CostSavedUSD, 6),
		LatencyMs:    round(result.LatencyMs, 2),
		RequestID:    result.RecordID,
	})
}

type statsResponse struct {
	TotalRequests  int                       `json:"total_requests"`
	TotalCostUSD   float64                   `json:"total_cost_usd"`
	TotalSavedUSD  float64                   `json:"total_saved_usd"`
	AvgLatencyMs   float64                   `json:"avg_latency_ms"`
	ModelBreakdown map[string]modelBreakdown `json:"model_breakdown"`
}

type modelBreakdown struct {
	Requests     int64   `json:"requests"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.store.QueryAllSuccessful(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	aggregates, err := h.store.QueryAggregates(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := statsResponse{ModelBreakdown: make(map[string]modelBreakdown)}
	resp.TotalRequests = len(records)

	if len(records) > 0 {
		var totalCost, totalSaved, latencySum float64
		for _, rec := range records {
			totalCost += rec.CostUSD
			totalSaved += rec.CostSavedUSD
			latencySum += rec.LatencyMs
		}
		resp.TotalCostUSD = round(totalCost, 4)
		resp.TotalSavedUSD = round(totalSaved, 4)
		resp.AvgLatencyMs = round(latencySum/float64(len(records)), 2)
	}

	for _, agg := range aggregates {
		resp.ModelBreakdown[agg.Model] = modelBreakdown{
			Requests:     agg.TotalRequests,
			TotalTokens:  agg.TotalTokens,
			TotalCostUSD: round(agg.TotalCostUSD, 4),
			AvgLatencyMs: round(agg.AvgLatencyMs, 2),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// round is for display only. Internal accounting stays unrounded.
func round(x float64, places int) float64 {
	shift := math.Pow(10, float64(places))
	return math.Round(x*shift) / shift
}
