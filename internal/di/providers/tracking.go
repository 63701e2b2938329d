package providers

import (
	"context"

	"github.com/samber/do/v2"

	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/tracking"
)

// TrackerHandle wraps the activity tracker with shutdown capability.
type TrackerHandle struct {
	*tracking.Tracker
}

// Shutdown implements do.Shutdownable. Queued events are applied and pending
// activity is written before the store closes.
func (h *TrackerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Close(ctx)
}

// ProvideTracker provides the search activity tracker.
func ProvideTracker(i do.Injector) (*TrackerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)

	// A nil interface, not a nil *store.Store, marks the store as unconfigured.
	var backend tracking.Backend
	if cfg.Tracking.Persist {
		backend = storeHandle.Store
	}

	tracker := tracking.New(backend, tracking.Options{
		BatchSaveInterval:   cfg.Tracking.BatchSaveInterval,
		MinSaveInterval:     cfg.Tracking.MinSaveInterval,
		MaxPendingMutations: cfg.Tracking.MaxPendingMutations,
		MaxSearchQueries:    cfg.Tracking.MaxSearchQueries,
		MaxAlbumPages:       cfg.Tracking.MaxAlbumPages,
		QueueSize:           cfg.Tracking.QueueSize,
	}, log.Component("tracking"))

	log.Info("Activity tracker started",
		"persist", cfg.Tracking.Persist,
		"batch_save_interval", cfg.Tracking.BatchSaveInterval,
		"min_save_interval", cfg.Tracking.MinSaveInterval,
	)

	return &TrackerHandle{Tracker: tracker}, nil
}
