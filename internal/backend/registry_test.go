package backend

import (
	"context"
	"testing"
)

type mockInvoker struct {
	name    string
	fail    bool
	calls   int
	lastReq *Request
}

func (m *mockInvoker) Generate(ctx context.Context, req *Request) Outcome {
	m.calls++
	m.lastReq = req
	if m.fail {
		return Outcome{Status: StatusError, ErrorDetail: "mock failure", LatencyMs: 1}
	}
	return Outcome{Status: StatusSuccess, Text: "mock", TokenCount: 10, LatencyMs: 1}
}

func (m *mockInvoker) Name() string { return m.name }

func TestGenerate_DispatchByModel(t *testing.T) {
	cheap := &mockInvoker{name: "cheap"}
	fancy := &mockInvoker{name: "fancy"}

	r := NewRegistry()
	r.Register("small-model", cheap)
	r.Register("big-model", fancy)

	outcome := r.Generate(context.Background(), "big-model", "hello", 500, 0.5)

	if outcome.Status != StatusSuccess {
		t.Fatalf("Expected success, got %s", outcome.Status)
	}
	if fancy.calls != 1 || cheap.calls != 0 {
		t.Errorf("Expected dispatch to fancy only, got fancy=%d cheap=%d", fancy.calls, cheap.calls)
	}
	if fancy.lastReq.Model != "big-model" || fancy.lastReq.MaxTokens != 500 || fancy.lastReq.Temperature != 0.5 {
		t.Errorf("Request parameters not forwarded: %+v", fancy.lastReq)
	}
}

func TestGenerate_UnknownModel(t *testing.T) {
	r := NewRegistry()

	outcome := r.Generate(context.Background(), "nope", "hello", 100, 0.7)

	if outcome.Status != StatusError {
		t.Fatalf("Expected error outcome for unknown model, got %s", outcome.Status)
	}
	if outcome.TokenCount != 0 {
		t.Errorf("Expected zero tokens, got %d", outcome.TokenCount)
	}
}

func TestGenerate_ErrorOutcomePassesThrough(t *testing.T) {
	inv := &mockInvoker{name: "flaky", fail: true}
	r := NewRegistry()
	r.Register("flaky-model", inv)

	outcome := r.Generate(context.Background(), "flaky-model", "hello", 100, 0.7)

	if outcome.Status != StatusError {
		t.Fatalf("Expected error outcome, got %s", outcome.Status)
	}
	if outcome.ErrorDetail != "mock failure" {
		t.Errorf("Expected original error detail, got %q", outcome.ErrorDetail)
	}
}

func TestGenerate_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	inv := &mockInvoker{name: "down", fail: true}
	r := NewRegistry()
	r.Register("down-model", inv)

	for i := 0; i < 3; i++ {
		r.Generate(context.Background(), "down-model", "hello", 100, 0.7)
	}
	callsBefore := inv.calls

	outcome := r.Generate(context.Background(), "down-model", "hello", 100, 0.7)

	if outcome.Status != StatusError {
		t.Fatalf("Expected error outcome from open breaker, got %s", outcome.Status)
	}
	if inv.calls != callsBefore {
		t.Errorf("Expected no backend call through open breaker, got %d extra", inv.calls-callsBefore)
	}
}

func TestRegister_SharedBreakerPerFamily(t *testing.T) {
	inv := &mockInvoker{name: "gateway"}
	r := NewRegistry()
	r.Register("model-a", inv)
	r.Register("model-b", inv)

	if len(r.breakers) != 1 {
		t.Errorf("Expected one breaker per invoker family, got %d", len(r.breakers))
	}
}
