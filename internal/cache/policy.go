package cache

import (
	"time"
)

// DefaultBaseTTL is the freshness window before per-type multipliers.
const DefaultBaseTTL = 5 * time.Minute

// Freshness classifies a cache entry's age.
type Freshness int

// Freshness values.
const (
	// Missing entries must be fetched before use.
	Missing Freshness = iota
	// Fresh entries can be used as is.
	Fresh
	// Stale entries can be shown but should be refreshed in the background.
	Stale
)

func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	default:
		return "missing"
	}
}

// DefaultMultipliers shortens reconciliation data's TTL, since staleness there
// leads to duplicate reconciliation attempts, and lengthens the slow-changing
// counterparty registry's.
func DefaultMultipliers() map[EntityType]float64 {
	return map[EntityType]float64{
		Invoices:       1.0,
		Transactions:   1.0,
		Anagraphics:    2.0,
		Reconciliation: 0.2,
	}
}

// Policy decides per-type time-to-live for cached data.
type Policy struct {
	now         func() time.Time
	multipliers map[EntityType]float64
	baseTTL     time.Duration
}

// PolicyOption configures a Policy.
type PolicyOption func(*Policy)

// WithPolicyClock overrides the policy's clock.
func WithPolicyClock(now func() time.Time) PolicyOption {
	return func(p *Policy) {
		p.now = now
	}
}

// NewPolicy creates a policy. A non-positive base falls back to DefaultBaseTTL;
// types without a multiplier use 1.0.
func NewPolicy(base time.Duration, multipliers map[EntityType]float64, opts ...PolicyOption) *Policy {
	if base <= 0 {
		base = DefaultBaseTTL
	}
	p := &Policy{
		now:         time.Now,
		baseTTL:     base,
		multipliers: DefaultMultipliers(),
	}
	for t, m := range multipliers {
		p.multipliers[t] = m
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TTL returns the effective time-to-live for t.
func (p *Policy) TTL(t EntityType) time.Duration {
	m, ok := p.multipliers[t]
	if !ok || m < 0 {
		m = 1.0
	}
	return time.Duration(float64(p.baseTTL) * m)
}

// ShouldRefetch reports whether data fetched at lastFetch must be refetched.
// It has no side effects.
func (p *Policy) ShouldRefetch(lastFetch *time.Time, t EntityType) bool {
	if lastFetch == nil {
		return true
	}
	return p.now().Sub(*lastFetch) > p.TTL(t)
}

// Freshness classifies data fetched at lastFetch.
func (p *Policy) Freshness(lastFetch *time.Time, t EntityType) Freshness {
	switch {
	case lastFetch == nil:
		return Missing
	case p.ShouldRefetch(lastFetch, t):
		return Stale
	default:
		return Fresh
	}
}
