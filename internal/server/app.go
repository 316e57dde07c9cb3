// Package server wires the auth core to its transports and runs them: the
// REST API, the websocket Session Channel, the gRPC health endpoint and the
// expired refresh token janitor. It handles signals and graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sparkbridge/server/internal/logging"
	"github.com/sparkbridge/server/internal/server/config"
	gs "github.com/sparkbridge/server/internal/server/grpc"
	"github.com/sparkbridge/server/internal/server/httpapi"
	"github.com/sparkbridge/server/internal/server/realtime"
	"github.com/sparkbridge/server/internal/server/repositories/repomanager"
	"github.com/sparkbridge/server/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

// Purger deletes refresh tokens that are past their expiry.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authService *services.AuthService
	hub         *realtime.Hub
}

// NewApp opens the database, applies migrations and builds the services.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := logging.NewJSON(os.Stdout, cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	warnInsecureSecrets(ctx, cfg, logger)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	return &App{
		config:      cfg,
		logger:      logger,
		db:          db,
		authService: services.NewAuthService(db, rm, cfg, logger),
		hub:         realtime.NewHub(logger.With("module", "realtime")),
	}, nil
}

func warnInsecureSecrets(ctx context.Context, cfg *config.Config, logger logging.Logger) {
	if cfg.DefaultSecrets() {
		logger.Warn(ctx, "JWT secrets use the built-in defaults, set JWT_ACCESS_SECRET and JWT_REFRESH_SECRET")
	}
	if cfg.WeakSecrets() {
		logger.Warn(ctx, "JWT secrets are shorter than recommended", "min_length", config.MinSecretLength)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	ws := realtime.NewHandler(app.hub, app.authService, app.config.AllowedOrigins, app.logger.With("module", "realtime"))

	return httpapi.NewRouter(app.authService, app.logger.With("module", "http"), httpapi.RouterOptions{
		AllowedOrigins: app.config.AllowedOrigins,
		Notifier:       app.hub,
		Extra: func(r *gin.Engine) {
			r.GET("/ws", ws.HandleConnection)
			r.GET("/socket", ws.HandleConnection)
		},
	})
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.HTTPAddr,
		Handler:           app.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(ctx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", app.config.HTTPAddr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewServer(app.config.GRPCAddr, app.authService, app.db, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// runJanitor purges expired refresh tokens every interval until ctx is done.
// Verification never relies on it; it only keeps the table small.
func runJanitor(ctx context.Context, p Purger, interval time.Duration, logger logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.PurgeExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn(ctx, "refresh token cleanup failed", "error", err)
				}
				continue
			}
			if n > 0 {
				logger.Info(ctx, "expired refresh tokens removed", "count", n)
			}
		}
	}
}

// Run starts every component and blocks until a signal arrives or one of
// them fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		app.hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		runJanitor(ctx, app.authService, app.config.TokenCleanupInterval, app.logger.With("module", "janitor"))
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
