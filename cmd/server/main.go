// Package main runs the application lifecycle coordinator server.
package main

import (
	"context"
	"crypto/rsa"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	app "github.com/halden-labs/application_layer/internal/app"
	"github.com/halden-labs/application_layer/internal/app/clients"
	"github.com/halden-labs/application_layer/internal/app/httpapi"
	"github.com/halden-labs/application_layer/internal/app/metrics"
	"github.com/halden-labs/application_layer/internal/app/storage/postgres"
	"github.com/halden-labs/application_layer/internal/config"
	"github.com/halden-labs/application_layer/internal/httputil"
	"github.com/halden-labs/application_layer/internal/logging"
	"github.com/halden-labs/application_layer/internal/middleware"
	"github.com/halden-labs/application_layer/internal/platform/migrations"
	"github.com/halden-labs/application_layer/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to yaml config file")
	flag.Parse()

	log := logger.NewDefault("application-layer")
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Errorf("Server exited: %v", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	httpLog := logging.New("application-layer")

	var stores app.Stores
	if cfg.DatabaseURL != "" {
		db, err := sqlx.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			return fmt.Errorf("ping database: %w", err)
		}
		if err := migrations.Apply(context.Background(), db.DB); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		store := postgres.New(db)
		stores = app.Stores{Applications: store, History: store}
		log.Info("Connected to postgres")
	} else {
		log.Warn("DATABASE_URL not set; using in-memory store")
	}

	remote, err := buildClients(cfg)
	if err != nil {
		return err
	}

	application, err := app.New(stores, remote, log)
	if err != nil {
		return fmt.Errorf("build application: %w", err)
	}

	handler, err := httpapi.NewHandler(application, httpapi.Options{
		AuditMax:  cfg.Audit.Max,
		AuditFile: cfg.Audit.File,
	})
	if err != nil {
		return fmt.Errorf("build handler: %w", err)
	}

	root, err := buildRouter(cfg, httpLog, handler)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("start application: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      root,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Listening on %s", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case sig := <-sigCh:
		log.Infof("Received %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server shutdown: %v", err)
	}
	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop application: %w", err)
	}
	return nil
}

func buildClients(cfg *config.Config) (app.Clients, error) {
	if cfg.Remotes.IdentityURL == "" || cfg.Remotes.CatalogURL == "" || cfg.Remotes.TaggingURL == "" {
		return app.Clients{}, fmt.Errorf("identity, catalog and tagging URLs are required")
	}

	identity := httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: cfg.Remotes.IdentityURL})
	catalog := httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: cfg.Remotes.CatalogURL})
	tagging := httputil.NewServiceClient(httputil.ServiceClientConfig{BaseURL: cfg.Remotes.TaggingURL})

	return app.Clients{
		Identity:  clients.NewHTTPIdentity(identity),
		Catalog:   clients.NewHTTPCatalog(catalog),
		Tagging:   clients.NewHTTPTagging(tagging),
		Ownership: clients.NewHTTPOwnership(catalog),
	}, nil
}

// buildRouter wires the middleware chains. Internal cascade endpoints sit
// behind service token auth, everything else behind user JWT auth. Health
// and metrics are open.
func buildRouter(cfg *config.Config, httpLog *logging.Logger, handler http.Handler) (http.Handler, error) {
	authKey, err := loadPublicKey(cfg.AuthPublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load auth public key: %w", err)
	}

	serviceKeyFile := cfg.ServiceAuthPublicKeyFile
	if serviceKeyFile == "" {
		serviceKeyFile = cfg.AuthPublicKeyFile
	}
	serviceKey, err := loadPublicKey(serviceKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load service auth public key: %w", err)
	}

	authn := middleware.NewAuthMiddleware(authKey, httpLog, nil)
	serviceAuthn := middleware.NewServiceAuthMiddleware(middleware.ServiceAuthConfig{
		PublicKey:       serviceKey,
		Logger:          httpLog,
		AllowedServices: cfg.AllowedServices,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, httpLog)
	limiter.StartCleanup(5 * time.Minute)

	r := mux.NewRouter()
	r.Handle("/healthz", handler)
	r.Handle("/metrics", metrics.Handler())
	r.PathPrefix("/internal/").Handler(serviceAuthn.Handler(handler))
	r.PathPrefix("/").Handler(authn.Handler(limiter.Handler(handler)))

	tracing := middleware.NewTracingMiddleware(httpLog)
	cors := middleware.NewCORSMiddleware(cfg.AllowedOrigins)

	return tracing.Handler(cors.Handler(metrics.InstrumentHandler(r))), nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	if path == "" {
		return nil, fmt.Errorf("public key file not configured")
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return key, nil
}
