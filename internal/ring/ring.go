// Package ring implements the fixed-capacity circular sample buffer used
// by the metric sampler: no allocation on the hot append path, and
// rolling-mean helpers over the most recent W entries.
package ring

import (
	"github.com/oarkflow/processguard/internal/model"
)

// Buffer is a fixed-capacity circular array of metric samples. The zero
// value is not usable; construct with New.
type Buffer struct {
	items []model.MetricSample
	next int
	len int
}

// New allocates a buffer holding up to capacity samples.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{items: make([]model.MetricSample, capacity)}
}

// Push appends a sample, overwriting the oldest entry once the buffer is
// full.
func (b *Buffer) Push(s model.MetricSample) {
	b.items[b.next] = s
	b.next = (b.next + 1) % len(b.items)
	if b.len < len(b.items) {
		b.len++
	}
}

// Len reports how many samples are currently stored.
func (b *Buffer) Len() int { return b.len }

// Reset discards every stored sample, used when a process is disabled and
// its prior resource history is no longer meaningful.
func (b *Buffer) Reset() {
	b.next = 0
	b.len = 0
}

// Latest returns the most recently pushed sample, if any.
func (b *Buffer) Latest() (model.MetricSample, bool) {
	if b.len == 0 {
		return model.MetricSample{}, false
	}
	idx := (b.next - 1 + len(b.items)) % len(b.items)
	return b.items[idx], true
}

// Snapshot returns the stored samples in chronological order, oldest
// first. It allocates; callers on a hot path should prefer Latest or
// MeanOverLast.
func (b *Buffer) Snapshot() []model.MetricSample {
	out := make([]model.MetricSample, 0, b.len)
	if b.len < len(b.items) {
		out = append(out, b.items[:b.len]...)
		return out
	}
	out = append(out, b.items[b.next:]...)
	out = append(out, b.items[:b.next]...)
	return out
}

// MeanOverLast computes the rolling mean of CPU% and memory% across the
// last w samples (or fewer, if the buffer holds less than w). It returns
// ok=false if there are no samples at all.
func (b *Buffer) MeanOverLast(w int) (cpuMean, memMean float64, ok bool) {
	if b.len == 0 {
		return 0, 0, false
	}
	n := w
	if n > b.len {
		n = b.len
	}
	var cpuSum, memSum float64
	idx := (b.next - 1 + len(b.items)) % len(b.items)
	for i := 0; i < n; i++ {
		s := b.items[idx]
		cpuSum += s.CPUPercent
		memSum += s.MemoryPercent
		idx = (idx - 1 + len(b.items)) % len(b.items)
	}
	return cpuSum / float64(n), memSum / float64(n), true
}
