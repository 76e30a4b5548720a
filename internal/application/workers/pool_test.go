package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	metrics "github.com/aescanero/varflow/pkg/adapters/metrics/prometheus"
)

func newTestPool(t *testing.T, size, queue int) *Pool {
	t.Helper()
	p := NewPool(size, queue, metrics.NewCollector(prometheus.NewRegistry()), zaptest.NewLogger(t), 0)
	require.NoError(t, p.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestPoolRunsTasks(t *testing.T) {
	p := newTestPool(t, 4, 16)

	var count atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(context.Context) {
			defer wg.Done()
			count.Add(1)
		}))
	}

	wg.Wait()
	assert.Equal(t, int32(50), count.Load())
}

func TestPoolNestedSubmitDoesNotDeadlock(t *testing.T) {
	p := newTestPool(t, 1, 0)

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		inner := make(chan struct{})
		assert.NoError(t, p.Submit(func(context.Context) { close(inner) }))
		<-inner
		close(done)
	}))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("nested submit deadlocked")
	}
}

func TestPoolRecoversFromPanics(t *testing.T) {
	p := newTestPool(t, 1, 4)

	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestPoolSubmitAfterShutdown(t *testing.T) {
	p := NewPool(1, 1, metrics.NewCollector(prometheus.NewRegistry()), zaptest.NewLogger(t), 0)
	require.NoError(t, p.Start())
	require.NoError(t, p.Shutdown(context.Background()))

	err := p.Submit(func(context.Context) {})
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestHealthStatus(t *testing.T) {
	p := newTestPool(t, 3, 2)

	status := p.Health().GetStatus()
	assert.Equal(t, 3, status.TotalWorkers)
	assert.Equal(t, 2, status.QueueCapacity)
	assert.True(t, status.Healthy)
}
