// Package alert implements the deduplicating fan-out alert bus: threshold
// violations and lifecycle events in, notification sinks out. Grounded on
// core/alerting.py's AlertManager, reshaped into Go with a bounded
// per-sink worker queue instead of asyncio.gather.
package alert

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oarkflow/processguard/internal/metrics"
	"github.com/oarkflow/processguard/internal/model"
)

const defaultHistoryCapacity = 1000

// Sink delivers an alert to an external notification channel. Sinks MUST
// NOT retry on their own; they report success or failure once.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, a model.AlertRecord) error
}

// Bus is the alert record store plus notification fan-out.
type Bus struct {
	mu sync.Mutex
	history []*model.AlertRecord // newest last, bounded to capacity
	capacity int
	dedup map[dedupKey]*model.AlertRecord
	cooldown time.Duration

	workers []*sinkWorker
}

type dedupKey struct {
	kind model.AlertKind
	process string
}

// Options configures the bus's cooldown window, history size, and queue
// depth (spec.md §5's back-pressure policy).
type Options struct {
	CooldownSeconds float64
	HistoryCapacity int
	SinkQueueDepth int
}

// New constructs a Bus wired to sinks, each backed by its own bounded
// worker queue so slow notification I/O never blocks another sink or
// subsequent alerts.
func New(opts Options, sinks ...Sink) *Bus {
	if opts.HistoryCapacity <= 0 {
		opts.HistoryCapacity = defaultHistoryCapacity
	}
	cooldown := time.Duration(opts.CooldownSeconds * float64(time.Second))
	if cooldown <= 0 {
		cooldown = 300 * time.Second
	}
	depth := opts.SinkQueueDepth
	if depth <= 0 {
		depth = 256
	}

	b := &Bus{
		capacity: opts.HistoryCapacity,
		dedup: map[dedupKey]*model.AlertRecord{},
		cooldown: cooldown,
	}
	for _, s := range sinks {
		w := newSinkWorker(s, depth)
		go w.run()
		b.workers = append(b.workers, w)
	}
	return b
}

// Publish records a new alert, deduplicating against any unresolved alert
// with the same (kind, process) within the cooldown window. On a
// duplicate it refreshes the existing record's timestamp and returns it
// without enqueueing a new one or notifying sinks again.
func (b *Bus) Publish(kind model.AlertKind, severity model.AlertSeverity, process, message string, metadata map[string]any) *model.AlertRecord {
	b.mu.Lock()
	key := dedupKey{kind: kind, process: process}
	now := time.Now()
	if existing, ok := b.dedup[key]; ok && !existing.Resolved() && now.Sub(existing.CreatedAt) < b.cooldown {
		existing.CreatedAt = now
		b.mu.Unlock()
		metrics.AlertsSuppressed.WithLabelValues(string(kind)).Inc()
		return existing
	}

	rec := &model.AlertRecord{
		ID: uuid.NewString(),
		Kind: kind,
		Severity: severity,
		Process: process,
		Message: message,
		Metadata: metadata,
		CreatedAt: now,
	}
	b.dedup[key] = rec
	b.history = append(b.history, rec)
	if len(b.history) > b.capacity {
		b.history = b.history[len(b.history)-b.capacity:]
	}
	b.mu.Unlock()

	metrics.AlertsPublished.WithLabelValues(string(kind), string(severity)).Inc()
	b.fanout(*rec)
	return rec
}

func (b *Bus) fanout(rec model.AlertRecord) {
	for _, w := range b.workers {
		w.enqueue(rec)
	}
}

// Acknowledge marks id acknowledged; idempotent.
func (b *Bus) Acknowledge(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(id)
	if rec == nil {
		return &model.NotFoundError{Kind: "alert", ID: id}
	}
	if rec.AcknowledgedAt.IsZero() {
		rec.AcknowledgedAt = time.Now()
	}
	return nil
}

// Resolve marks id resolved; idempotent. Clears the dedup entry so a fresh
// occurrence of the same (kind, process) is not suppressed.
func (b *Bus) Resolve(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec := b.find(id)
	if rec == nil {
		return &model.NotFoundError{Kind: "alert", ID: id}
	}
	if rec.ResolvedAt.IsZero() {
		rec.ResolvedAt = time.Now()
	}
	key := dedupKey{kind: rec.Kind, process: rec.Process}
	if b.dedup[key] == rec {
		delete(b.dedup, key)
	}
	return nil
}

func (b *Bus) find(id string) *model.AlertRecord {
	for _, r := range b.history {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// List returns alerts in reverse chronological order, optionally
// restricted to unresolved ones.
func (b *Bus) List(activeOnly bool) []model.AlertRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.AlertRecord, 0, len(b.history))
	for i := len(b.history) - 1; i >= 0; i-- {
		r := b.history[i]
		if activeOnly && r.Resolved() {
			continue
		}
		out = append(out, *r)
	}
	return out
}

// SweepExpiredDedup clears dedup entries whose cooldown has aged out, per
// spec.md §9's design note. The daemon does not call it on a schedule;
// Publish already ignores an entry whose cooldown has passed.
func (b *Bus) SweepExpiredDedup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	for k, rec := range b.dedup {
		if rec.Resolved() || now.Sub(rec.CreatedAt) >= b.cooldown {
			delete(b.dedup, k)
		}
	}
}

// sinkWorker drains a bounded queue for one sink; overflow drops the
// oldest warning/info alert but never a critical one, per spec.md §5.
type sinkWorker struct {
	sink Sink
	mu sync.Mutex
	cond *sync.Cond
	queue []model.AlertRecord
	depth int
	closed bool
}

func newSinkWorker(sink Sink, depth int) *sinkWorker {
	w := &sinkWorker{sink: sink, depth: depth}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *sinkWorker) enqueue(rec model.AlertRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.queue) >= w.depth {
		if evictIdx, ok := findEvictable(w.queue); ok {
			w.queue = append(w.queue[:evictIdx], w.queue[evictIdx+1:]...)
		} else if rec.Severity != model.SeverityCritical {
			// Queue is full of criticals and this one isn't: drop it rather
			// than evict a critical alert.
			return
		}
	}
	w.queue = append(w.queue, rec)
	w.cond.Signal()
}

func findEvictable(queue []model.AlertRecord) (int, bool) {
	for i, r := range queue {
		if r.Severity != model.SeverityCritical {
			return i, true
		}
	}
	return 0, false
}

func (w *sinkWorker) run() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed && len(w.queue) == 0 {
			w.mu.Unlock()
			return
		}
		rec := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := w.sink.Deliver(ctx, rec)
		cancel()
		if err != nil {
			metrics.SinkFailures.WithLabelValues(w.sink.Name()).Inc()
			slog.Warn("notification sink delivery failed", slog.String("sink", w.sink.Name()), slog.String("alert", rec.ID), slog.String("err", err.Error()))
		}
	}
}

func (w *sinkWorker) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.cond.Broadcast()
}

// Close stops all sink workers after draining their current queues.
func (b *Bus) Close() {
	for _, w := range b.workers {
		w.close()
	}
}
