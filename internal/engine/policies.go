package engine

import (
	"time"

	"github.com/durableflow/durableflow/internal/policy"
)

// Policies bundles every per-task/per-node policy a Scheduler consults,
// keyed the way spec §4.5 scopes them: retry and circuit breaker by
// task_id, error strategy (the SPEC_FULL.md Parallel/ForEach extension) by
// node_id since the same task_id could in principle appear under more than
// one Parallel/ForEach in a flow.
type Policies struct {
	Retry              map[string]policy.RetryPolicy
	CircuitBreaker      map[string]policy.CircuitBreakerConfig
	ErrorStrategy      map[string]policy.ErrorStrategyKind
	RequireN           map[string]int
	ForEachConcurrency map[string]int
	LeaseTTL           time.Duration
}

// DefaultPolicies returns an empty Policies set with sane fallbacks: no
// retries by default (matches policy.DefaultRetryPolicy), closed circuit
// breakers, FailFast error strategy, and a 30s lease TTL.
func DefaultPolicies() Policies {
	return Policies{
		Retry:              map[string]policy.RetryPolicy{},
		CircuitBreaker:      map[string]policy.CircuitBreakerConfig{},
		ErrorStrategy:      map[string]policy.ErrorStrategyKind{},
		RequireN:           map[string]int{},
		ForEachConcurrency: map[string]int{},
		LeaseTTL:           30 * time.Second,
	}
}

func (p Policies) retryFor(taskID string) policy.RetryPolicy {
	if rp, ok := p.Retry[taskID]; ok {
		return rp
	}
	if rp, ok := p.Retry[""]; ok {
		return rp
	}
	return policy.DefaultRetryPolicy()
}

func (p Policies) circuitBreakerFor(taskID string) policy.CircuitBreakerConfig {
	if cb, ok := p.CircuitBreaker[taskID]; ok {
		return cb
	}
	return policy.DefaultCircuitBreakerConfig()
}

func (p Policies) errorStrategyFor(nodeID string) policy.ErrorStrategyKind {
	if k, ok := p.ErrorStrategy[nodeID]; ok {
		return k
	}
	return policy.FailFast
}

func (p Policies) requireNFor(nodeID string) int {
	return p.RequireN[nodeID]
}

func (p Policies) forEachConcurrency(nodeID string, fallback int) int {
	if c, ok := p.ForEachConcurrency[nodeID]; ok && c > 0 {
		return c
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}
