package routing

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/ndthang/smart-router/config"
	"github.com/ndthang/smart-router/internal/accounting"
	"github.com/ndthang/smart-router/internal/backend"
)

type mockGenerator struct {
	outcome   backend.Outcome
	lastModel string
}

func (m *mockGenerator) Generate(ctx context.Context, model, prompt string, maxTokens int, temperature float64) backend.Outcome {
	m.lastModel = model
	return m.outcome
}

type failingStore struct {
	*accounting.MemoryStore
	appendErr error
	upsertErr error
}

func (s *failingStore) Append(ctx context.Context, rec *accounting.RequestRecord) error {
	if s.appendErr != nil {
		return s.appendErr
	}
	return s.MemoryStore.Append(ctx, rec)
}

func (s *failingStore) UpsertAggregate(ctx context.Context, model string, tokens int, costUSD, latencyMs float64) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	return s.MemoryStore.UpsertAggregate(ctx, model, tokens, costUSD, latencyMs)
}

func testTable() *Table {
	return NewTable(&config.Config{
		Backends: map[config.Tier]config.BackendConfig{
			config.TierSimple:  {Model: "cheap-model", PricePerToken: 0.10 / 1e6},
			config.TierMedium:  {Model: "mid-model", PricePerToken: 1.00 / 1e6},
			config.TierComplex: {Model: "big-model", PricePerToken: 3.00 / 1e6},
		},
		BaselinePricePerToken: 15.00 / 1e6,
	})
}

func TestDecide_AllTiersResolve(t *testing.T) {
	table := testTable()

	cases := map[config.Tier]string{
		config.TierSimple:  "cheap-model",
		config.TierMedium:  "mid-model",
		config.TierComplex: "big-model",
	}
	for tier, model := range cases {
		d := table.Decide(tier)
		if d.Model != model {
			t.Errorf("Decide(%s) model = %q, want %q", tier, d.Model, model)
		}
		if d.Tier != tier {
			t.Errorf("Decide(%s) tier = %s", tier, d.Tier)
		}
		if d.PricePerToken <= 0 {
			t.Errorf("Decide(%s) price = %v, want > 0", tier, d.PricePerToken)
		}
	}
	if table.BaselinePricePerToken() != 15.00/1e6 {
		t.Errorf("Unexpected baseline price %v", table.BaselinePricePerToken())
	}
}

func TestRouteAndGenerate_SimplePromptRoutesCheap(t *testing.T) {
	gen := &mockGenerator{outcome: backend.Outcome{
		Status: backend.StatusSuccess, Text: "Paris", TokenCount: 50, LatencyMs: 20,
	}}
	store := accounting.NewMemoryStore()
	o := NewOrchestrator(testTable(), gen, store)

	res, err := o.RouteAndGenerate(context.Background(), "What is the capital of France?", 1000, 0.7, "user-1")
	if err != nil {
		t.Fatalf("RouteAndGenerate failed: %v", err)
	}

	if gen.lastModel != "cheap-model" {
		t.Errorf("Expected cheap-model, got %s", gen.lastModel)
	}
	if res.Tier != config.TierSimple {
		t.Errorf("Expected simple tier, got %s", res.Tier)
	}
	if res.Text != "Paris" {
		t.Errorf("Expected generated text, got %q", res.Text)
	}
	if res.RecordID == "" {
		t.Error("Expected a persisted record id")
	}

	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("Expected one record, got %d", len(records))
	}
	rec := records[0]
	if rec.Status != accounting.StatusSuccess || rec.UserID != "user-1" || rec.TokensUsed != 50 {
		t.Errorf("Unexpected record %+v", rec)
	}

	stats, _ := store.QueryAggregates(context.Background())
	if len(stats) != 1 || stats[0].Model != "cheap-model" || stats[0].TotalRequests != 1 {
		t.Errorf("Unexpected aggregates %+v", stats)
	}
}

func TestRouteAndGenerate_SavingsIdentity(t *testing.T) {
	// costSavedUsd = tokens * (baselinePrice - usedPrice), across every tier.
	cases := []struct {
		prompt string
		tier   config.Tier
		price  float64
	}{
		{"What is the capital of France?", config.TierSimple, 0.10 / 1e6},
		{"Describe the weather patterns typically observed across northern coastal regions", config.TierMedium, 1.00 / 1e6},
		{"Analyze this architecture and explain why the algorithm fails, then write a story about debugging it", config.TierComplex, 3.00 / 1e6},
	}

	for _, tc := range cases {
		tokens := 1234
		gen := &mockGenerator{outcome: backend.Outcome{
			Status: backend.StatusSuccess, Text: "ok", TokenCount: tokens, LatencyMs: 10,
		}}
		store := accounting.NewMemoryStore()
		o := NewOrchestrator(testTable(), gen, store)

		res, err := o.RouteAndGenerate(context.Background(), tc.prompt, 1000, 0.7, "")
		if err != nil {
			t.Fatalf("RouteAndGenerate(%q) failed: %v", tc.prompt, err)
		}
		if res.Tier != tc.tier {
			t.Fatalf("RouteAndGenerate(%q) tier = %s, want %s (%s)", tc.prompt, res.Tier, tc.tier, res.Reasoning)
		}

		wantCost := float64(tokens) * tc.price
		wantSaved := float64(tokens) * (15.00/1e6 - tc.price)
		if math.Abs(res.CostUSD-wantCost) > 1e-15 {
			t.Errorf("tier %s cost = %v, want %v", tc.tier, res.CostUSD, wantCost)
		}
		if math.Abs(res.CostSavedUSD-wantSaved) > 1e-15 {
			t.Errorf("tier %s saved = %v, want %v", tc.tier, res.CostSavedUSD, wantSaved)
		}
	}
}

func TestRouteAndGenerate_BackendFailurePersistsErrorRecord(t *testing.T) {
	gen := &mockGenerator{outcome: backend.Outcome{
		Status: backend.StatusError, ErrorDetail: "upstream timeout", LatencyMs: 60000,
	}}
	store := accounting.NewMemoryStore()
	o := NewOrchestrator(testTable(), gen, store)

	res, err := o.RouteAndGenerate(context.Background(), "What is the capital of France?", 1000, 0.7, "")
	if err == nil {
		t.Fatal("Expected an error, got success")
	}
	if res != nil {
		t.Errorf("Expected nil result on failure, got %+v", res)
	}

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("Expected BackendError, got %T: %v", err, err)
	}
	if be.Detail != "upstream timeout" {
		t.Errorf("Expected provider detail, got %q", be.Detail)
	}

	records := store.Records()
	if len(records) != 1 {
		t.Fatalf("Expected an error record, got %d records", len(records))
	}
	rec := records[0]
	if rec.Status != accounting.StatusError {
		t.Errorf("Expected error status, got %s", rec.Status)
	}
	if rec.CostUSD != 0 || rec.CostSavedUSD != 0 || rec.TokensUsed != 0 {
		t.Errorf("Expected zero cost fields, got %+v", rec)
	}

	stats, _ := store.QueryAggregates(context.Background())
	if len(stats) != 0 {
		t.Errorf("Error outcomes must not touch aggregates, got %+v", stats)
	}
}

func TestRouteAndGenerate_PersistenceFailureSurfaces(t *testing.T) {
	gen := &mockGenerator{outcome: backend.Outcome{
		Status: backend.StatusSuccess, Text: "ok", TokenCount: 10, LatencyMs: 5,
	}}
	store := &failingStore{
		MemoryStore: accounting.NewMemoryStore(),
		appendErr:   errors.New("connection refused"),
	}
	o := NewOrchestrator(testTable(), gen, store)

	_, err := o.RouteAndGenerate(context.Background(), "What is the capital of France?", 1000, 0.7, "")
	if err == nil {
		t.Fatal("Expected persistence failure to surface")
	}
	var be *BackendError
	if errors.As(err, &be) {
		t.Errorf("Persistence failure must not masquerade as a backend failure: %v", err)
	}
}

func TestRouteAndGenerate_AggregateFailureSurfaces(t *testing.T) {
	gen := &mockGenerator{outcome: backend.Outcome{
		Status: backend.StatusSuccess, Text: "ok", TokenCount: 10, LatencyMs: 5,
	}}
	store := &failingStore{
		MemoryStore: accounting.NewMemoryStore(),
		upsertErr:   errors.New("deadlock detected"),
	}
	o := NewOrchestrator(testTable(), gen, store)

	_, err := o.RouteAndGenerate(context.Background(), "What is the capital of France?", 1000, 0.7, "")
	if err == nil {
		t.Fatal("Expected aggregate failure to surface")
	}
}
