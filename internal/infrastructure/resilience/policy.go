package resilience

import "time"

// Policy tunes retry and circuit-breaker behavior for one downstream
// dependency. Each dependency of this system gets its own preset below;
// zero-valued fields fall back to the defaults when normalized.
type Policy struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultPolicy() Policy {
	return Policy{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// OllamaPolicy covers embedding and generation calls. Model calls are slow,
// so retries are few and widely spaced to keep stuck generations from
// piling up, and the breaker stays open long enough for the model server
// to finish whatever wedged it.
func OllamaPolicy() Policy {
	return Policy{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 250 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      20 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

// NATSPolicy covers reindex-request publishes. Broker publishes are cheap
// and a reconnect usually lands within a few hundred milliseconds, so
// retries are quick and dense and the breaker reopens sooner.
func NATSPolicy() Policy {
	return Policy{
		RetryMaxAttempts:    4,
		RetryInitialBackoff: 50 * time.Millisecond,
		RetryMaxBackoff:     500 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      8,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      10 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

func (p Policy) normalized() Policy {
	out := p
	def := DefaultPolicy()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
