// Package di provides dependency injection configuration for the Cover Finder server.
package di

import (
	"github.com/samber/do/v2"

	"github.com/listenupapp/coverfinder-server/internal/config"
	"github.com/listenupapp/coverfinder-server/internal/di/providers"
	"github.com/listenupapp/coverfinder-server/internal/logger"
	"github.com/listenupapp/coverfinder-server/internal/service"
	"github.com/listenupapp/coverfinder-server/internal/sitemap"
)

// NewContainer creates and configures the DI container with all providers.
func NewContainer() *do.RootScope {
	injector := do.New()

	// Core infrastructure
	do.Provide(injector, providers.ProvideConfig)
	do.Provide(injector, providers.ProvideLogger)

	// Database layer
	do.Provide(injector, providers.ProvideStore)

	// Activity tracking
	do.Provide(injector, providers.ProvideTracker)

	// Metadata layer
	do.Provide(injector, providers.ProvideITunesClient)
	do.Provide(injector, providers.ProvideCatalogService)
	do.Provide(injector, providers.ProvideSitemapBuilder)

	// Workers
	do.Provide(injector, providers.ProvideRetentionJob)

	// Server
	do.Provide(injector, providers.ProvideHTTPServer)

	return injector
}

// Bootstrap initializes all services and returns handles for lifecycle management.
// This triggers lazy initialization of all core services.
func Bootstrap(injector *do.RootScope) error {
	if _, err := do.Invoke[*config.Config](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*logger.Logger](injector)
	if _, err := do.Invoke[*providers.StoreHandle](injector); err != nil {
		return err
	}
	_ = do.MustInvoke[*providers.TrackerHandle](injector)
	_ = do.MustInvoke[*providers.ITunesClientHandle](injector)
	_ = do.MustInvoke[*service.CatalogService](injector)
	_ = do.MustInvoke[*sitemap.Builder](injector)

	// Workers
	_ = do.MustInvoke[*providers.RetentionJob](injector)

	// Server
	_ = do.MustInvoke[*providers.HTTPServerHandle](injector)

	return nil
}
