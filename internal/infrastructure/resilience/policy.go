package resilience

import (
	"log/slog"
	"time"
)

// Operation names key the per-operation breakers and label retry logs and
// upstream metrics.
const (
	OpRegistryLookup    = "registry.lookup"
	OpInferenceClassify = "inference.classify"
	OpQueuePublish      = "nats.publish"
)

// RetryPolicy bounds the attempts made for one upstream call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// BreakerPolicy opens an operation's breaker once FailureRatio of at least
// MinRequests calls failed. It stays open for OpenTimeout, then lets
// HalfOpenMaxCalls trial calls through.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

// Observer is told about retries and breaker transitions.
type Observer interface {
	ObserveRetry(operation string)
	ObserveBreakerState(operation string, open bool)
}

type Config struct {
	Retry    RetryPolicy
	Breaker  BreakerPolicy
	Logger   *slog.Logger
	Observer Observer
}

func DefaultConfig() Config {
	return Config{
		Retry: RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     400 * time.Millisecond,
			Multiplier:     2.0,
		},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      10,
			FailureRatio:     0.5,
			OpenTimeout:      30 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		Logger: slog.Default(),
	}
}

// RegistryConfig suits the council registry: slow, occasionally rate
// limited, and worth a few seconds of waiting before a document falls back
// to manual review.
func RegistryConfig(logger *slog.Logger) Config {
	cfg := DefaultConfig()
	cfg.Retry.InitialBackoff = time.Second
	cfg.Retry.MaxBackoff = 4 * time.Second
	cfg.Breaker.MinRequests = 5
	cfg.Breaker.OpenTimeout = time.Minute
	cfg.Logger = logger
	return cfg
}

// InferenceConfig keeps model calls short: a failed call falls back to the
// rule classifier, so one quick retry is enough.
func InferenceConfig(logger *slog.Logger) Config {
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.MaxBackoff = time.Second
	cfg.Logger = logger
	return cfg
}

func QueueConfig(logger *slog.Logger) Config {
	cfg := DefaultConfig()
	cfg.Logger = logger
	return cfg
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	r := &out.Retry
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = def.Retry.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = def.Retry.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = def.Retry.MaxBackoff
	}
	r.MaxBackoff = max(r.MaxBackoff, r.InitialBackoff)
	if r.Multiplier < 1.0 {
		r.Multiplier = def.Retry.Multiplier
	}

	b := &out.Breaker
	if b.MinRequests == 0 {
		b.MinRequests = def.Breaker.MinRequests
	}
	if b.FailureRatio <= 0 || b.FailureRatio > 1 {
		b.FailureRatio = def.Breaker.FailureRatio
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = def.Breaker.OpenTimeout
	}
	if b.HalfOpenMaxCalls == 0 {
		b.HalfOpenMaxCalls = def.Breaker.HalfOpenMaxCalls
	}

	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Observer == nil {
		out.Observer = noopObserver{}
	}
	return out
}

type noopObserver struct{}

func (noopObserver) ObserveRetry(string) {}

func (noopObserver) ObserveBreakerState(string, bool) {}
