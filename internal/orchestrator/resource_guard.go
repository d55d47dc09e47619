package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// ResourceGuardConfig configures polling intervals and thresholds for the
// resource guard, per spec §4.5.
type ResourceGuardConfig struct {
	SampleInterval        time.Duration
	MemoryStopThreshold   float64
	MemoryResumeThreshold float64
	CPUGuardThreshold     float64
}

// sample is one poll's worth of system readings.
type sample struct {
	memUsedFraction float64
	memTotalBytes   uint64
	perWorkerBytes  uint64
	cpuFraction     float64
}

// ResourceGuard polls system memory and CPU on an interval and decides
// whether the orchestrator may spawn another worker or must reclaim one,
// per spec §4.5: "Reads system memory and CPU every Δ. Refuses to spawn an
// additional worker unless projected memory with +1 and +2 workers remain
// below stop thresholds and current CPU is below a guard threshold.
// Reclaims workers when usage crosses the resume thresholds downward."
//
// Grounded on _examples/intelligencedev-manifold's internal/hostinfo
// package, which samples mem.VirtualMemory() on a poll loop; generalized
// here from passive host reporting to an active spawn/reclaim gate, and
// extended with cpu.Percent() for the CPU guard the spec also requires.
type ResourceGuard struct {
	cfg ResourceGuardConfig

	mu        sync.RWMutex
	last      sample
	haveSample bool
}

// NewResourceGuard constructs a guard that has not yet taken a sample;
// Allow/ShouldReclaim report permissive defaults until Sample or Start has
// run at least once.
func NewResourceGuard(cfg ResourceGuardConfig) *ResourceGuard {
	return &ResourceGuard{cfg: cfg}
}

// Start polls on cfg.SampleInterval until ctx is cancelled. Sampling errors
// are non-fatal: the guard keeps its last good sample and tries again on
// the next tick.
func (g *ResourceGuard) Start(ctx context.Context) {
	interval := g.cfg.SampleInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	g.Sample(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Sample(ctx)
		}
	}
}

// Sample takes one memory/CPU reading and stores it as the guard's current
// view of the system. Exposed directly so tests can drive the guard
// without waiting on a real ticker.
func (g *ResourceGuard) Sample(ctx context.Context) error {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return err
	}
	cpuPercents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return err
	}
	var cpuFraction float64
	if len(cpuPercents) > 0 {
		cpuFraction = cpuPercents[0] / 100.0
	}

	s := sample{
		memUsedFraction: vm.UsedPercent / 100.0,
		memTotalBytes:   vm.Total,
		perWorkerBytes:  estimatePerWorkerBytes(vm.Total),
		cpuFraction:     cpuFraction,
	}

	g.mu.Lock()
	g.last = s
	g.haveSample = true
	g.mu.Unlock()
	return nil
}

// estimatePerWorkerBytes is a conservative per-worker memory footprint
// used to project usage before a worker is actually spawned. Sized as a
// small fraction of total memory so the guard degrades gracefully across
// machines of very different scale.
func estimatePerWorkerBytes(totalBytes uint64) uint64 {
	const minPerWorker = 256 * 1024 * 1024
	est := totalBytes / 64
	if est < minPerWorker {
		return minPerWorker
	}
	return est
}

// AllowSpawn reports whether the orchestrator may spawn one more worker on
// top of currentWorkers, per spec §4.5's projection rule: memory projected
// with +1 AND +2 workers must stay below the stop threshold, and current
// CPU must be below the guard threshold. Before any sample has been taken,
// AllowSpawn is permissive (returns true) so the very first worker is
// never blocked on a cold guard.
func (g *ResourceGuard) AllowSpawn(currentWorkers int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.haveSample {
		return true
	}

	if g.last.cpuFraction >= g.cfg.CPUGuardThreshold {
		return false
	}

	projected1 := g.projectedFraction(currentWorkers + 1)
	projected2 := g.projectedFraction(currentWorkers + 2)
	return projected1 < g.cfg.MemoryStopThreshold && projected2 < g.cfg.MemoryStopThreshold
}

// ShouldReclaim reports whether memory usage has crossed back below the
// resume threshold, meaning a previously-withheld worker may be spawned
// again or the caller may stop throttling down. Before any sample has
// been taken, ShouldReclaim is conservative (returns false).
func (g *ResourceGuard) ShouldReclaim() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.haveSample {
		return false
	}
	return g.last.memUsedFraction < g.cfg.MemoryResumeThreshold
}

// projectedFraction estimates the memory-used fraction if the system were
// running extraWorkers additional workers beyond what's already reflected
// in the last sample's used-memory figure.
func (g *ResourceGuard) projectedFraction(extraWorkers int) float64 {
	if g.last.memTotalBytes == 0 {
		return g.last.memUsedFraction
	}
	extraBytes := uint64(extraWorkers) * g.last.perWorkerBytes
	extraFraction := float64(extraBytes) / float64(g.last.memTotalBytes)
	return g.last.memUsedFraction + extraFraction
}

// LastSample reports the most recent memory/CPU fractions observed, for
// logging and metrics surfaces. ok is false if no sample has been taken.
func (g *ResourceGuard) LastSample() (memFraction, cpuFraction float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.haveSample {
		return 0, 0, false
	}
	return g.last.memUsedFraction, g.last.cpuFraction, true
}
