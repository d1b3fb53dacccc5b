package statsd

import (
	"maps"
	"sync"
	"time"
)

// Sample is one metric recorded by a Recorder.
type Sample struct {
	Kind  string // "count", "gauge" or "timing"
	Name  string
	Value float64
	Tags  map[string]string
}

// Recorder is an in-memory Sink for tests and local debugging.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
}

var _ Sink = (*Recorder)(nil)

func (r *Recorder) add(s Sample) {
	s.Tags = maps.Clone(s.Tags)
	r.mu.Lock()
	r.samples = append(r.samples, s)
	r.mu.Unlock()
}

// Count records a counter increment.
func (r *Recorder) Count(name string, value int64, tags map[string]string) {
	r.add(Sample{Kind: "count", Name: name, Value: float64(value), Tags: tags})
}

// Gauge records a gauge value.
func (r *Recorder) Gauge(name string, value float64, tags map[string]string) {
	r.add(Sample{Kind: "gauge", Name: name, Value: value, Tags: tags})
}

// Timing records a duration in milliseconds.
func (r *Recorder) Timing(name string, value time.Duration, tags map[string]string) {
	r.add(Sample{Kind: "timing", Name: name, Value: float64(value) / float64(time.Millisecond), Tags: tags})
}

// Samples returns a copy of everything recorded so far.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sample, len(r.samples))
	copy(out, r.samples)
	return out
}

// Total sums the counter named name whose tags include every pair in match.
func (r *Recorder) Total(name string, match map[string]string) int64 {
	var total int64
	for _, s := range r.Samples() {
		if s.Kind != "count" || s.Name != name || !hasTags(s.Tags, match) {
			continue
		}
		total += int64(s.Value)
	}
	return total
}

func hasTags(tags, match map[string]string) bool {
	for k, v := range match {
		if tags[k] != v {
			return false
		}
	}
	return true
}
