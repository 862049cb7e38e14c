package saga

import (
	"math/rand"
	"sync"
)

// Decider answers whether a simulated external operation should fail
// this time. Production wiring uses configured probabilities; tests
// install scripted deciders for deterministic scenarios.
type Decider interface {
	ShouldFail(operation string) bool
}

// RateDecider fails each operation with its configured probability.
type RateDecider struct {
	mu    sync.Mutex
	rng   *rand.Rand
	rates map[string]float64
}

// NewRateDecider creates a decider over per-operation failure rates.
// Operations without a configured rate never fail.
func NewRateDecider(rates map[string]float64, seed int64) *RateDecider {
	copied := make(map[string]float64, len(rates))
	for op, rate := range rates {
		copied[op] = rate
	}
	return &RateDecider{
		rng:   rand.New(rand.NewSource(seed)),
		rates: copied,
	}
}

// ShouldFail rolls against the operation's failure rate.
func (d *RateDecider) ShouldFail(operation string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	rate, ok := d.rates[operation]
	if !ok || rate <= 0 {
		return false
	}
	return d.rng.Float64() < rate
}

// neverFail is the zero-rate decider.
type neverFail struct{}

func (neverFail) ShouldFail(string) bool { return false }

// NeverFail returns a decider under which every operation succeeds.
func NeverFail() Decider {
	return neverFail{}
}
