package orchestrator

import (
	"context"
	"sync"
	"time"
)

// latencySample is one completed request's outcome, used for the sliding
// window that drives adaptive concurrency adjustments.
type latencySample struct {
	ok      bool
	latency time.Duration
}

// AdaptiveConcurrency bounds in-flight requests to N permits, adjusted at
// most once per completed request per spec §4.5's formula:
//   - rate-limit/timeout:                 N ← max(N_min, floor(N × 0.5))
//   - window ≥ 50, success>95%, p50<low:  N ← min(N_max, N + 1)
//   - success<85% or p50>high:            N ← max(N_min, N - 1)
type AdaptiveConcurrency struct {
	mu sync.Mutex

	min, max, n int
	acquired    int
	notifyCh    chan struct{}

	targetLow, targetHigh time.Duration
	window                []latencySample
	windowSize            int
}

// AdaptiveConcurrencyConfig configures an AdaptiveConcurrency instance.
type AdaptiveConcurrencyConfig struct {
	Min, Max, Initial     int
	TargetLow, TargetHigh time.Duration
	WindowSize            int
}

// NewAdaptiveConcurrency constructs the limiter with cfg.Initial permits.
func NewAdaptiveConcurrency(cfg AdaptiveConcurrencyConfig) *AdaptiveConcurrency {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 50
	}
	n := cfg.Initial
	if n < cfg.Min {
		n = cfg.Min
	}
	if n > cfg.Max {
		n = cfg.Max
	}

	return &AdaptiveConcurrency{
		min:        cfg.Min,
		max:        cfg.Max,
		n:          n,
		notifyCh:   make(chan struct{}),
		targetLow:  cfg.TargetLow,
		targetHigh: cfg.TargetHigh,
		windowSize: cfg.WindowSize,
	}
}

// Acquire blocks until a permit is available or ctx is cancelled.
func (ac *AdaptiveConcurrency) Acquire(ctx context.Context) error {
	for {
		ac.mu.Lock()
		if ac.acquired < ac.n {
			ac.acquired++
			ac.mu.Unlock()
			return nil
		}
		wait := ac.notifyCh
		ac.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Release returns a permit and records the request's outcome, possibly
// adjusting N according to the adaptive formula, then wakes any waiters.
func (ac *AdaptiveConcurrency) Release(ok bool, latency time.Duration, rateLimitedOrTimedOut bool) {
	ac.mu.Lock()
	ac.acquired--

	switch {
	case rateLimitedOrTimedOut:
		ac.n = maxInt(ac.min, ac.n/2)
		ac.window = nil

	default:
		ac.window = append(ac.window, latencySample{ok: ok, latency: latency})
		if len(ac.window) >= ac.windowSize {
			successRate, p50 := summarize(ac.window)
			ac.window = nil
			switch {
			case successRate > 0.95 && p50 < ac.targetLow:
				ac.n = minInt(ac.max, ac.n+1)
			case successRate < 0.85 || p50 > ac.targetHigh:
				ac.n = maxInt(ac.min, ac.n-1)
			}
		}
	}

	old := ac.notifyCh
	ac.notifyCh = make(chan struct{})
	ac.mu.Unlock()
	close(old)
}

// N returns the current target permit count.
func (ac *AdaptiveConcurrency) N() int {
	ac.mu.Lock()
	defer ac.mu.Unlock()
	return ac.n
}

func summarize(samples []latencySample) (successRate float64, p50 time.Duration) {
	if len(samples) == 0 {
		return 1, 0
	}
	successes := 0
	latencies := make([]time.Duration, len(samples))
	for i, s := range samples {
		if s.ok {
			successes++
		}
		latencies[i] = s.latency
	}
	successRate = float64(successes) / float64(len(samples))

	sorted := append([]time.Duration(nil), latencies...)
	insertionSort(sorted)
	p50 = sorted[len(sorted)/2]
	return successRate, p50
}

func insertionSort(d []time.Duration) {
	for i := 1; i < len(d); i++ {
		for j := i; j > 0 && d[j-1] > d[j]; j-- {
			d[j-1], d[j] = d[j], d[j-1]
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
