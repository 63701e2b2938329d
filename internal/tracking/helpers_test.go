package tracking

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/coverfinder-server/internal/logger"
)

// memoryBackend is an in-memory Backend with failure injection and write counting.
type memoryBackend struct {
	mu     sync.Mutex
	data   map[string][]byte
	sets   map[string]int
	getErr error
	setErr error
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{data: make(map[string][]byte), sets: make(map[string]int)}
}

func (b *memoryBackend) Get(_ context.Context, key string, dest any) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return false, b.getErr
	}
	raw, ok := b.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (b *memoryBackend) Set(_ context.Context, key string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sets[key]++
	if b.setErr != nil {
		return b.setErr
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	b.data[key] = raw
	return nil
}

func (b *memoryBackend) setCount(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sets[key]
}

func (b *memoryBackend) failWrites(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setErr = err
}

func (b *memoryBackend) failReads(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.getErr = err
}

func (b *memoryBackend) put(t *testing.T, key string, value any) {
	t.Helper()
	raw, err := json.Marshal(value)
	require.NoError(t, err)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data[key] = raw
}

func (b *memoryBackend) decode(t *testing.T, key string, dest any) {
	t.Helper()
	b.mu.Lock()
	raw, ok := b.data[key]
	b.mu.Unlock()
	require.True(t, ok, "nothing stored under %s", key)
	require.NoError(t, json.Unmarshal(raw, dest))
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger(w *syncBuffer) *slog.Logger {
	if w == nil {
		return logger.Discard()
	}
	return logger.New(logger.Config{Writer: w, Format: "json", Level: slog.LevelWarn}).Logger
}

// newTestTracker builds a tracker whose timers never fire on their own unless opts says so.
func newTestTracker(t *testing.T, backend Backend, clock *fakeClock, opts Options) *Tracker {
	t.Helper()
	if opts.BatchSaveInterval == 0 {
		opts.BatchSaveInterval = time.Hour
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	tr := New(backend, opts, logger.Discard())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tr.Close(ctx)
	})
	return tr
}

// drain waits until every tracking call issued so far has been applied.
func drain(t *testing.T, tr *Tracker) {
	t.Helper()
	require.NoError(t, tr.exec.call(context.Background(), func() {}))
}
