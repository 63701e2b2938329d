package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/store"
)

// StoreHandle wraps the store with shutdown capability.
type StoreHandle struct {
	*store.Store
}

// Shutdown implements do.Shutdownable.
func (h *StoreHandle) Shutdown() error {
	return h.Close()
}

// ProvideStore provides the database store.
func ProvideStore(i do.Injector) (*StoreHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	dbPath := cfg.DatabasePath()
	db, err := store.New(dbPath, log.Component("store"))
	if err != nil {
		log.WithError(err).Error("Failed to open database", "path", dbPath)
		return nil, err
	}

	log.Info("Database initialized", "path", dbPath)

	return &StoreHandle{Store: db}, nil
}
