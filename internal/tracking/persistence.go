package tracking

import (
	"context"
	"log/slog"
	"sync"
)

// Backend is the durable key-value store the logs are written to.
// *store.Store satisfies it.
type Backend interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}

// Persistence isolates the tracker from store outages. A nil backend means the store is not
// configured: loads report nothing stored and saves succeed without writing.
type Persistence struct {
	backend  Backend
	logger   *slog.Logger
	warnOnce sync.Once
}

// NewPersistence wraps backend, which may be nil.
func NewPersistence(backend Backend, logger *slog.Logger) *Persistence {
	return &Persistence{backend: backend, logger: logger}
}

// Configured reports whether a backend is present.
func (p *Persistence) Configured() bool {
	return p.backend != nil
}

// Load decodes the value stored under key into dest. It returns false when the store is
// unconfigured, the key is absent, or the read fails. A failure is logged and whatever was
// partially decoded into dest must be discarded.
func (p *Persistence) Load(ctx context.Context, key string, dest any) bool {
	found, err := p.load(ctx, key, dest)
	if err != nil {
		p.logger.Warn("tracking log load failed, using empty log", "key", key, "error", err)
		return false
	}
	return found
}

// load is Load without logging, so callers can tell a failure from an absent key.
func (p *Persistence) load(ctx context.Context, key string, dest any) (bool, error) {
	if !p.Configured() {
		p.warnUnconfigured()
		return false, nil
	}
	return p.backend.Get(ctx, key, dest)
}

// Save writes value under key. It is a no-op when the store is unconfigured.
func (p *Persistence) Save(ctx context.Context, key string, value any) error {
	if !p.Configured() {
		p.warnUnconfigured()
		return nil
	}
	return p.backend.Set(ctx, key, value)
}

func (p *Persistence) warnUnconfigured() {
	p.warnOnce.Do(func() {
		p.logger.Warn("tracking store not configured; activity is kept in memory only")
	})
}
