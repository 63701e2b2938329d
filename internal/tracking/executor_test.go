package tracking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/coverfinder-server/internal/logger"
)

func TestExecutor_RunsInOrder(t *testing.T) {
	e := newExecutor(16, logger.Discard())
	t.Cleanup(func() { _ = e.stop(context.Background()) })

	var got []int
	for i := range 10 {
		require.True(t, e.submit(func() { got = append(got, i) }))
	}
	require.NoError(t, e.call(context.Background(), func() {}))

	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestExecutor_SurvivesPanics(t *testing.T) {
	e := newExecutor(4, logger.Discard())
	t.Cleanup(func() { _ = e.stop(context.Background()) })

	require.True(t, e.submit(func() { panic("boom") }))

	ran := false
	require.NoError(t, e.call(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestExecutor_StopDrainsQueue(t *testing.T) {
	e := newExecutor(64, logger.Discard())

	count := 0
	for range 50 {
		e.submit(func() {
			time.Sleep(time.Millisecond)
			count++
		})
	}
	require.NoError(t, e.stop(context.Background()))
	assert.Equal(t, 50, count)

	assert.False(t, e.submit(func() {}), "closed executor rejects work")

	ran := false
	require.NoError(t, e.call(context.Background(), func() { ran = true }))
	assert.True(t, ran, "calls run inline after stop")
}

func TestExecutor_CallHonoursContext(t *testing.T) {
	e := newExecutor(1, logger.Discard())
	block := make(chan struct{})
	t.Cleanup(func() {
		close(block)
		_ = e.stop(context.Background())
	})

	require.True(t, e.submit(func() { <-block }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := e.call(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecutor_SubmitDoesNotBlockWhileStopWaitsOnFullQueue(t *testing.T) {
	e := newExecutor(1, logger.Discard())
	block := make(chan struct{})
	started := make(chan struct{})

	require.True(t, e.submit(func() {
		close(started)
		<-block
	}))
	<-started
	require.True(t, e.submit(func() {})) // fills the single slot

	ran := make(chan error, 1)
	go func() { ran <- e.call(context.Background(), func() {}) }()

	stopped := make(chan error, 1)
	time.Sleep(5 * time.Millisecond)
	go func() { stopped <- e.stop(context.Background()) }()
	time.Sleep(5 * time.Millisecond)

	submitted := make(chan bool, 1)
	go func() { submitted <- e.submit(func() {}) }()
	select {
	case ok := <-submitted:
		assert.False(t, ok, "full or closed queue rejects work")
	case <-time.After(time.Second):
		t.Fatal("submit blocked while a read waited on the full queue")
	}

	close(block)
	require.NoError(t, <-stopped)
	require.NoError(t, <-ran)
}
