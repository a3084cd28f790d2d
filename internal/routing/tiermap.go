// Package routing composes the classifier, the tier-to-backend table and the
// backend registry into a single routeAndGenerate operation with cost and
// savings accounting.
package routing

import (
	"github.com/ndthang/smart-router/config"
)

// Decision is the backend resolved for a tier. Derived deterministically from
// the static table, never mutated.
type Decision struct {
	Tier          config.Tier
	Model         string
	PricePerToken float64
}

// Table is the static tier-to-backend map, built once at startup from
// validated configuration. Lookup never fails: config.Load refuses to start
// the process with a tier unbound.
type Table struct {
	decisions map[config.Tier]Decision
	baseline  float64
}

func NewTable(cfg *config.Config) *Table {
	decisions := make(map[config.Tier]Decision, len(cfg.Backends))
	for tier, b := range cfg.Backends {
		decisions[tier] = Decision{Tier: tier, Model: b.Model, PricePerToken: b.PricePerToken}
	}
	return &Table{decisions: decisions, baseline: cfg.BaselinePricePerToken}
}

func (t *Table) Decide(tier config.Tier) Decision {
	return t.decisions[tier]
}

// BaselinePricePerToken is the reference price used only for savings math.
func (t *Table) BaselinePricePerToken() float64 {
	return t.baseline
}
