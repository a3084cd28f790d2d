package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// Registry dispatches generation calls by model identifier and shields each
// backend family behind a circuit breaker. A tripped breaker converts to an
// immediate error outcome; it never retries on the caller's behalf.
type Registry struct {
	invokers map[string]Invoker                   // model id -> invoker
	breakers map[string]*gobreaker.CircuitBreaker // invoker name -> breaker
}

func NewRegistry() *Registry {
	return &Registry{
		invokers: make(map[string]Invoker),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register binds a model identifier to the invoker that serves it. All
// routable models are registered at startup; config validation guarantees
// every tier's model has a home before the process begins serving.
func (r *Registry) Register(model string, inv Invoker) {
	r.invokers[model] = inv
	if _, ok := r.breakers[inv.Name()]; !ok {
		settings := gobreaker.Settings{
			Name:        inv.Name(),
			MaxRequests: 3,
			Interval:    5 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}
		r.breakers[inv.Name()] = gobreaker.NewCircuitBreaker(settings)
	}
}

// Models returns the registered model identifiers.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.invokers))
	for m := range r.invokers {
		models = append(models, m)
	}
	return models
}

// Generate invokes the backend serving model. Error outcomes feed the
// breaker's failure count; the outcome itself is always structured data.
func (r *Registry) Generate(ctx context.Context, model, prompt string, maxTokens int, temperature float64) Outcome {
	start := time.Now()

	inv, ok := r.invokers[model]
	if !ok {
		return ErrorOutcome(start, fmt.Sprintf("no backend registered for model %q", model))
	}

	cb := r.breakers[inv.Name()]
	result, err := cb.Execute(func() (interface{}, error) {
		outcome := inv.Generate(ctx, &Request{
			Model:       model,
			Prompt:      prompt,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if outcome.Status == StatusError {
			return outcome, errors.New(outcome.ErrorDetail)
		}
		return outcome, nil
	})
	if err != nil {
		if outcome, ok := result.(Outcome); ok {
			return outcome
		}
		// Breaker open or half-open limit hit: no call was made.
		return ErrorOutcome(start, fmt.Sprintf("backend %s unavailable: %v", inv.Name(), err))
	}
	return result.(Outcome)
}
