package providers

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/metadata/itunes"
	"github.com/listenupapp/coverfinder-server/internal/service"
)

// ITunesClientHandle wraps the iTunes client with shutdown capability.
type ITunesClientHandle struct {
	*itunes.Client
}

// Shutdown implements do.Shutdownable.
func (h *ITunesClientHandle) Shutdown() error {
	h.Client.Close()
	return nil
}

// ProvideITunesClient provides the iTunes Search API client.
func ProvideITunesClient(i do.Injector) (*ITunesClientHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	client := itunes.NewClient(itunes.Options{
		BaseURL:           cfg.ITunes.BaseURL,
		Country:           cfg.ITunes.Country,
		RequestsPerMinute: cfg.ITunes.RequestsPerMinute,
		Burst:             cfg.ITunes.Burst,
		Timeout:           cfg.ITunes.Timeout,
	}, log.Component("itunes"))

	log.Info("iTunes client initialized",
		"country", cfg.ITunes.Country,
		"requests_per_minute", cfg.ITunes.RequestsPerMinute,
	)

	return &ITunesClientHandle{Client: client}, nil
}

// ProvideCatalogService provides the catalog service.
func ProvideCatalogService(i do.Injector) (*service.CatalogService, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	clientHandle := do.MustInvoke[*ITunesClientHandle](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	trackerHandle := do.MustInvoke[*TrackerHandle](i)

	svc := service.NewCatalogService(
		clientHandle.Client,
		storeHandle.Store,
		trackerHandle.Tracker,
		cfg.ITunes.Country,
		log.Component("catalog"),
	)

	return svc, nil
}
