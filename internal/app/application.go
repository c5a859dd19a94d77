package app

import (
	"context"
	"fmt"

	"github.com/halden-labs/application_layer/internal/app/auth"
	"github.com/halden-labs/application_layer/internal/app/clients"
	"github.com/halden-labs/application_layer/internal/app/services/applications"
	"github.com/halden-labs/application_layer/internal/app/storage"
	"github.com/halden-labs/application_layer/internal/app/storage/memory"
	"github.com/halden-labs/application_layer/internal/app/system"
	"github.com/halden-labs/application_layer/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Applications storage.ApplicationStore
	History      storage.HistoryStore
}

// Clients bundles the remote capability dependencies.
type Clients struct {
	Identity  clients.Identity
	Catalog   clients.Catalog
	Tagging   clients.Tagging
	Ownership clients.Ownership
}

// Application ties the coordinator together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Applications *applications.Service
}

// New builds a fully initialised application with the provided stores and
// remote clients.
func New(stores Stores, remote Clients, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}
	if remote.Identity == nil {
		return nil, fmt.Errorf("identity client is required")
	}
	if remote.Catalog == nil {
		return nil, fmt.Errorf("catalog client is required")
	}
	if remote.Tagging == nil {
		return nil, fmt.Errorf("tagging client is required")
	}

	if stores.Applications == nil || stores.History == nil {
		mem := memory.New()
		if stores.Applications == nil {
			stores.Applications = mem
		}
		if stores.History == nil {
			stores.History = mem
		}
	}

	manager := system.NewManager()

	resolver := auth.NewResolver(remote.Identity, auth.LocalOwner{})
	appService := applications.New(stores.Applications, stores.History, remote.Identity, remote.Catalog, remote.Tagging, resolver, log)

	if err := manager.Register(system.NoopService{ServiceName: "applications"}); err != nil {
		return nil, fmt.Errorf("register applications service: %w", err)
	}

	return &Application{
		manager:      manager,
		log:          log,
		Applications: appService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
