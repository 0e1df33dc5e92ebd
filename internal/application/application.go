package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/psds-microservice/watchparty-service/internal/auth"
	"github.com/psds-microservice/watchparty-service/internal/config"
	"github.com/psds-microservice/watchparty-service/internal/database"
	"github.com/psds-microservice/watchparty-service/internal/handler"
	"github.com/psds-microservice/watchparty-service/internal/retention"
	"github.com/psds-microservice/watchparty-service/internal/router"
	"github.com/psds-microservice/watchparty-service/internal/rpc"
	"github.com/psds-microservice/watchparty-service/internal/service"
	"github.com/psds-microservice/watchparty-service/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket + gRPC application.
type API struct {
	cfg     *config.Config
	srv     *http.Server
	grpc    *grpc.Server
	db      *gorm.DB
	sweeper *retention.Sweeper
	logger  *zap.Logger
}

// NewAPI creates the API application: validates config, opens the store, builds router and gRPC server.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	logger, err := NewLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}

	st, db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	var ready handler.ReadyCheck
	if gs, ok := st.(*store.GormStore); ok {
		ready = gs.Ping
	}

	authn, err := auth.New(cfg)
	if err != nil {
		return nil, err
	}

	hub := service.NewPartyHub(cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	sessionSvc := service.NewSessionService(st, cfg, hub, logger)
	partyHandler := handler.NewPartyHandler(sessionSvc, cfg.WSBaseURL, logger)
	partyWS := handler.NewPartyWSHandler(hub, sessionSvc, logger)
	health := handler.NewHealthHandler(ready)

	r := router.New(partyHandler, partyWS, health, authn, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a := &API{cfg: cfg, srv: srv, db: db, logger: logger}
	if cfg.GRPCEnabled() {
		a.grpc = rpc.NewGRPCServer(rpc.NewServer(sessionSvc, authn, cfg.WSBaseURL, logger))
	}
	if cfg.RetentionEndedAfter > 0 {
		a.sweeper = retention.NewSweeper(st, cfg.RetentionEndedAfter, logger)
	}
	return a, nil
}

// OpenStore builds the session store selected by STORE_DRIVER. db is nil for the memory store.
func OpenStore(cfg *config.Config) (store.Store, *gorm.DB, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		db, err := database.Open(cfg.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		return store.NewGormStore(db), db, nil
	case config.StoreSQLite:
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("database: %w", err)
		}
		gs := store.NewGormStore(db)
		if err := gs.AutoMigrate(); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		return gs, db, nil
	default:
		return store.NewMemoryStore(), nil, nil
	}
}

// NewLogger builds a zap logger: development config in development, production otherwise.
func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.AppEnv == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Run starts the HTTP and gRPC servers and blocks until ctx is cancelled; then shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	defer func() { _ = a.logger.Sync() }()
	if a.db != nil {
		defer database.Close(a.db, a.logger)
	}

	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", a.srv.Addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Parties:       %s/parties", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/parties/:id", host, a.cfg.HTTPPort)

	errCh := make(chan error, 2)
	go func() {
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	if a.grpc != nil {
		lis, err := net.Listen("tcp", a.cfg.GRPCAddr())
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		log.Printf("gRPC server listening on %s (%s)", a.cfg.GRPCAddr(), rpc.ServiceName)
		go func() {
			if err := a.grpc.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	if a.sweeper != nil {
		go a.sweeper.Run(ctx)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	if a.grpc != nil {
		a.grpc.GracefulStop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return runErr
}
