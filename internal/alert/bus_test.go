package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/processguard/internal/model"
)

type recordingSink struct {
	mu sync.Mutex
	delivered []model.AlertRecord
	fail bool
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Deliver(ctx context.Context, a model.AlertRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return context.DeadlineExceeded
	}
	s.delivered = append(s.delivered, a)
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func TestPublishDeduplicatesWithinCooldown(t *testing.T) {
	sink := &recordingSink{}
	b := New(Options{CooldownSeconds: 300}, sink)
	defer b.Close()

	first := b.Publish(model.AlertCPUHigh, model.SeverityWarning, "web", "cpu high", nil)
	second := b.Publish(model.AlertCPUHigh, model.SeverityWarning, "web", "cpu high again", nil)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, b.List(false), 1)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
}

func TestPublishDistinctAfterResolve(t *testing.T) {
	sink := &recordingSink{}
	b := New(Options{CooldownSeconds: 300}, sink)
	defer b.Close()

	first := b.Publish(model.AlertCPUHigh, model.SeverityWarning, "web", "cpu high", nil)
	require.NoError(t, b.Resolve(first.ID))
	second := b.Publish(model.AlertCPUHigh, model.SeverityWarning, "web", "cpu high again", nil)
	require.NotEqual(t, first.ID, second.ID)
}

func TestAcknowledgeAndResolveAreIdempotent(t *testing.T) {
	b := New(Options{CooldownSeconds: 300})
	defer b.Close()

	rec := b.Publish(model.AlertMemoryHigh, model.SeverityWarning, "api", "mem high", nil)
	require.NoError(t, b.Acknowledge(rec.ID))
	require.NoError(t, b.Acknowledge(rec.ID))
	require.NoError(t, b.Resolve(rec.ID))
	require.NoError(t, b.Resolve(rec.ID))

	err := b.Acknowledge("missing")
	require.Error(t, err)
}

func TestListActiveOnlyExcludesResolved(t *testing.T) {
	b := New(Options{CooldownSeconds: 300})
	defer b.Close()

	a := b.Publish(model.AlertCPUHigh, model.SeverityWarning, "web", "a", nil)
	_ = b.Publish(model.AlertMemoryHigh, model.SeverityWarning, "api", "b", nil)
	require.NoError(t, b.Resolve(a.ID))

	active := b.List(true)
	require.Len(t, active, 1)
	all := b.List(false)
	require.Len(t, all, 2)
	// Reverse chronological: most recent (api/b) first.
	require.Equal(t, "b", all[0].Message)
}
