// Package profiler - Per-stage timing of cascade runs.
package profiler

import (
	"sort"
	"sync"
	"time"
)

// Stage names the timed steps of a cascade run.
const (
	StagePrepare   = "prepare"
	StageDetect    = "detect"
	StageDecode    = "decode"
	StageSuppress  = "suppress"
	StageSegment   = "segment"
	StageComposite = "composite"
)

// DefaultMaxSamples bounds the durations kept per operation.
const DefaultMaxSamples = 600

// Stats summarizes the recorded durations of one operation.
type Stats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Mean  time.Duration `json:"mean"`
}

// timeTracker tracks operation timing statistics.
type timeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Profiler records operation durations. It is safe for concurrent use.
type Profiler struct {
	mu             sync.Mutex
	maxSamples     int
	operationTimes map[string]*timeTracker
}

// New creates a profiler keeping at most maxSamples durations per operation
// for the mean. Zero selects DefaultMaxSamples.
func New(maxSamples int) *Profiler {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Profiler{
		maxSamples:     maxSamples,
		operationTimes: make(map[string]*timeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
//   - name: The name of the operation to track.
//
// Returns:
//   - A function to call when the operation completes.
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one duration for name.
func (p *Profiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operationTimes[name]
	if !exists {
		tracker = &timeTracker{minTime: duration, maxTime: duration}
		p.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > p.maxSamples {
		// Remove oldest sample
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Snapshot returns the statistics of every operation, sorted by name.
//
// Total and Mean cover the retained window; Count, Min and Max cover all
// recorded durations.
func (p *Profiler) Snapshot() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.operationTimes))
	for name, t := range p.operationTimes {
		s := Stats{Name: name, Count: t.count, Total: t.totalTime, Min: t.minTime, Max: t.maxTime}
		if n := len(t.durations); n > 0 {
			s.Mean = t.totalTime / time.Duration(n)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Reset clears all recorded durations.
func (p *Profiler) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.operationTimes = make(map[string]*timeTracker)
}
