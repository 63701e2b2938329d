package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/listenupapp/coverfinder-server/internal/api"
	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/service"
	"github.com/listenupapp/coverfinder-server/internal/sitemap"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
	handler *api.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := h.Server.Shutdown(ctx)
	h.handler.Close()
	return err
}

// ProvideSitemapBuilder provides the sitemap builder.
func ProvideSitemapBuilder(i do.Injector) (*sitemap.Builder, error) {
	cfg := do.MustInvoke[*config.Config](i)
	trackerHandle := do.MustInvoke[*TrackerHandle](i)

	return sitemap.NewBuilder(trackerHandle.Tracker, sitemap.Options{
		BaseURL:    cfg.Server.PublicURL,
		MaxQueries: cfg.Sitemap.MaxQueries,
		MaxAlbums:  cfg.Sitemap.MaxAlbums,
	}), nil
}

// ProvideHTTPServer provides the HTTP server.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	storeHandle := do.MustInvoke[*StoreHandle](i)
	trackerHandle := do.MustInvoke[*TrackerHandle](i)

	services := &api.Services{
		Catalog: do.MustInvoke[*service.CatalogService](i),
		Tracker: trackerHandle.Tracker,
		Sitemap: do.MustInvoke[*sitemap.Builder](i),
	}

	handler := api.NewServer(storeHandle.Store, services, cfg, log.Component("http"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start in background
	go func() {
		log.Info("HTTP server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	log.Info("Server running", "addr", srv.Addr, "public_url", cfg.Server.PublicURL)

	return &HTTPServerHandle{Server: srv, handler: handler}, nil
}
