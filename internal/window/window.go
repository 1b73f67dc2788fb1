// Package window keeps a rolling jank percentage over a trailing time window.
package window

import "time"

const (
	// DefaultDuration is the trailing window the jank percentage covers.
	DefaultDuration = 30 * time.Second

	initialCapacity = 64
)

// Sample is a single timestamped observation.
type Sample struct {
	Timestamp time.Time
	IsJank    bool
}

// Aggregator is a ring buffer of samples ordered by timestamp.
// Not safe for concurrent use; each instance has exactly one owner.
type Aggregator struct {
	duration time.Duration
	buf      []Sample
	head     int
	count    int
	jank     int
}

// New creates an aggregator over the given trailing duration.
func New(duration time.Duration) *Aggregator {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Aggregator{
		duration: duration,
		buf:      make([]Sample, initialCapacity),
	}
}

// Duration returns the window length.
func (a *Aggregator) Duration() time.Duration {
	return a.duration
}

// Record appends a sample and evicts everything older than the window
// relative to it. A timestamp earlier than the current tail is clamped to
// the tail so the buffer stays sorted.
func (a *Aggregator) Record(ts time.Time, isJank bool) {
	if a.count > 0 {
		if tail := a.at(a.count - 1).Timestamp; ts.Before(tail) {
			ts = tail
		}
	}

	if a.count == len(a.buf) {
		a.grow()
	}
	a.buf[(a.head+a.count)%len(a.buf)] = Sample{Timestamp: ts, IsJank: isJank}
	a.count++
	if isJank {
		a.jank++
	}

	a.evict(ts)
}

// Percentage returns 100*jank/total, or 0 for an empty window.
func (a *Aggregator) Percentage() float64 {
	if a.count == 0 {
		return 0.0
	}
	return 100.0 * float64(a.jank) / float64(a.count)
}

// Len returns the number of retained samples.
func (a *Aggregator) Len() int {
	return a.count
}

// JankCount returns the number of retained jank samples.
func (a *Aggregator) JankCount() int {
	return a.jank
}

// Samples returns the retained samples, oldest first.
func (a *Aggregator) Samples() []Sample {
	out := make([]Sample, a.count)
	for i := range out {
		out[i] = a.at(i)
	}
	return out
}

// Reset drops all samples.
func (a *Aggregator) Reset() {
	clear(a.buf)
	a.head, a.count, a.jank = 0, 0, 0
}

func (a *Aggregator) at(i int) Sample {
	return a.buf[(a.head+i)%len(a.buf)]
}

func (a *Aggregator) evict(now time.Time) {
	for a.count > 0 {
		oldest := a.buf[a.head]
		if now.Sub(oldest.Timestamp) <= a.duration {
			return
		}
		if oldest.IsJank {
			a.jank--
		}
		a.buf[a.head] = Sample{}
		a.head = (a.head + 1) % len(a.buf)
		a.count--
	}
}

func (a *Aggregator) grow() {
	next := make([]Sample, len(a.buf)*2)
	for i := 0; i < a.count; i++ {
		next[i] = a.at(i)
	}
	a.buf = next
	a.head = 0
}
