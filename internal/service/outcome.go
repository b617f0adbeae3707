package service

import (
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pipphxntom/AeonPay/internal/model"
)

// OutcomePolicy decides the outcome of a mandate execution. It models an
// unreliable downstream rail as a local decision; implementations must not
// perform network calls.
type OutcomePolicy interface {
	Decide(mandateID string, amount decimal.Decimal) string
}

// ProbabilisticOutcome succeeds with a fixed probability. It is the default
// policy for the simulated rail.
type ProbabilisticOutcome struct {
	rate float64

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProbabilisticOutcome creates a policy succeeding with probability rate.
func NewProbabilisticOutcome(rate float64) *ProbabilisticOutcome {
	return &ProbabilisticOutcome{
		rate: rate,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Decide picks success or failed independently of mandate and amount.
func (p *ProbabilisticOutcome) Decide(string, decimal.Decimal) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng.Float64() < p.rate {
		return model.ExecutionSuccess
	}
	return model.ExecutionFailed
}

// FixedOutcome always returns the same outcome. Used by tests to make
// execution deterministic.
type FixedOutcome string

// Decide returns the fixed outcome.
func (f FixedOutcome) Decide(string, decimal.Decimal) string {
	return string(f)
}
