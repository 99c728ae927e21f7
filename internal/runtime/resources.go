package runtime

import (
	"runtime"
	"runtime/metrics"
	"sync"
	"time"
)

const cpuSecondsMetric = "/sched/cpu:seconds"

// ResourceUsage is a coarse view of the process load.
type ResourceUsage struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemoryBytes uint64  `json:"memory_bytes"`
	Goroutines  int     `json:"goroutines"`
}

// resourceTracker derives CPU usage from the difference between two samples.
type resourceTracker struct {
	mu         sync.Mutex
	sample     []metrics.Sample
	lastCPU    float64
	lastSample time.Time
	numCPU     float64
}

func newResourceTracker() *resourceTracker {
	return &resourceTracker{
		sample: []metrics.Sample{{Name: cpuSecondsMetric}},
		numCPU: float64(runtime.NumCPU()),
	}
}

// Snapshot returns the usage since the previous call. The first call reports
// zero CPU.
func (r *resourceTracker) Snapshot() ResourceUsage {
	if r == nil {
		return ResourceUsage{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sample) == 0 {
		r.sample = []metrics.Sample{{Name: cpuSecondsMetric}}
	}
	metrics.Read(r.sample)
	now := time.Now()

	usage := ResourceUsage{Goroutines: runtime.NumGoroutine()}
	if r.sample[0].Value.Kind() == metrics.KindFloat64 {
		cpu := r.sample[0].Value.Float64()
		if wall := now.Sub(r.lastSample).Seconds(); !r.lastSample.IsZero() && wall > 0 && r.numCPU > 0 {
			usage.CPUPercent = (cpu - r.lastCPU) / wall / r.numCPU * 100
		}
		r.lastCPU = cpu
	}
	r.lastSample = now

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	usage.MemoryBytes = mem.Alloc
	return usage
}
