package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/grouplan/grouplan/internal/config"
	"github.com/grouplan/grouplan/internal/database"
	"github.com/grouplan/grouplan/internal/utils"
	"github.com/grouplan/grouplan/pkg/file"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Application wires configuration, database, router, and server lifecycle.
type Application struct {
	cfg  config.Application
	db   *pgxpool.Pool
	deps *Dependencies
	srv  *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(configPath string) (*Application, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}

	files, err := file.NewLocalStore(cfg.Storage)
	if err != nil {
		db.Close()
		return nil, err
	}

	deps := BuildDependencies(PostgresRepositories(db), files, cfg, utils.SystemClock{})

	srv := &http.Server{
		Handler:      NewRouter(deps),
		Addr:         cfg.Listen,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, deps: deps, srv: srv}, nil
}

// NewRouter builds the HTTP router with its middleware chain.
func NewRouter(deps *Dependencies) *mux.Router {
	root := mux.NewRouter()
	api := root.PathPrefix("/api").Subrouter()
	SetupMiddleware(root, api, deps)
	RegisterRoutes(root, api, deps)
	return root
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if a.deps.RateLimiter != nil {
		a.deps.RateLimiter.Start()
		defer a.deps.RateLimiter.Stop()
	}
	defer a.db.Close()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Starting %s %s on %s", a.cfg.System.Name, a.cfg.System.Version, a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.srv.Shutdown(shutdownCtx)
}
