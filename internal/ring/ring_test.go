package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oarkflow/processguard/internal/model"
)

func sample(cpu, mem float64) model.MetricSample {
	return model.MetricSample{Timestamp: time.Now(), CPUPercent: cpu, MemoryPercent: mem}
}

func TestBufferOverwritesOldest(t *testing.T) {
	b := New(3)
	b.Push(sample(1, 1))
	b.Push(sample(2, 2))
	b.Push(sample(3, 3))
	b.Push(sample(4, 4))

	require.Equal(t, 3, b.Len())
	snap := b.Snapshot()
	require.Equal(t, []float64{2, 3, 4}, []float64{snap[0].CPUPercent, snap[1].CPUPercent, snap[2].CPUPercent})
}

func TestMeanOverLast(t *testing.T) {
	b := New(10)
	for _, v := range []float64{10, 20, 30, 90, 90, 90} {
		b.Push(sample(v, v))
	}
	mean, _, ok := b.MeanOverLast(6)
	require.True(t, ok)
	require.InDelta(t, (10.0+20+30+90+90+90)/6, mean, 0.0001)

	mean3, _, ok := b.MeanOverLast(3)
	require.True(t, ok)
	require.InDelta(t, 90, mean3, 0.0001)
}

func TestMeanOverLastEmpty(t *testing.T) {
	b := New(5)
	_, _, ok := b.MeanOverLast(6)
	require.False(t, ok)
}

func TestLatest(t *testing.T) {
	b := New(2)
	_, ok := b.Latest()
	require.False(t, ok)
	b.Push(sample(5, 5))
	v, ok := b.Latest()
	require.True(t, ok)
	require.Equal(t, 5.0, v.CPUPercent)
}
