// Package backend defines the capability boundary to the model-serving
// providers: given a prompt and generation parameters, produce text with a
// token count, or an explicit error outcome. Failures are data, never
// control flow, so the routing layer always receives a structured result.
package backend

import (
	"context"
	"time"
)

// CallTimeout bounds every direct provider call. No internal retries.
const CallTimeout = 60 * time.Second

// FallbackTokenEstimate substitutes for providers that omit usage accounting
// in their response envelope.
const FallbackTokenEstimate = 100

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Request carries one generation call to a backend.
type Request struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Outcome is the result of a single invocation. TokenCount is zero and
// ErrorDetail populated when Status is StatusError; LatencyMs is measured
// either way.
type Outcome struct {
	Text        string
	TokenCount  int
	LatencyMs   float64
	Status      Status
	ErrorDetail string
}

// ErrorOutcome builds an error outcome with the latency observed so far.
func ErrorOutcome(start time.Time, detail string) Outcome {
	return Outcome{
		Status:      StatusError,
		ErrorDetail: detail,
		LatencyMs:   float64(time.Since(start).Microseconds()) / 1000,
	}
}

// Invoker is implemented once per backend family.
type Invoker interface {
	Generate(ctx context.Context, req *Request) Outcome
	Name() string
}
