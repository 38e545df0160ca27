// Package relayer implements app.Runner for the order registry process.
package relayer

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	apphttp "github.com/chainsafe/htlc-resolver/pkg/app/http"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/pgutil"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
)

const readyPingTimeout = 2 * time.Second

// Server holds configuration for the relayer process.
type Server struct {
	cfg *config.RelayerConfig
}

// NewServer initializes a new relayer Server.
func NewServer(cfg *config.RelayerConfig) *Server {
	return &Server{cfg: cfg}
}

// Run serves the order registry API until an OS shutdown signal is
// received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging, "relayer")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting HTLC order relayer",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
	)

	db, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect relayer db: %w", err)
	}
	defer func() { _ = db.Close() }()
	logger.Info("Database connection established")

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if !tokens.IsConfigured() {
		logger.Warn("auth.jwt_secret is empty, transition and execution endpoints are unauthenticated")
	}

	svc := registry.NewLog(registry.NewService(registry.NewStore(db), cfg.Registry), logger)

	router := apphttp.NewRouter(&cfg.Server, cfg.Monitoring, dbReady(db), logger)
	registry.RegisterRoutes(router, svc, tokens, logger)

	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}

func dbReady(db *bun.DB) func() bool {
	return func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), readyPingTimeout)
		defer cancel()
		return db.PingContext(ctx) == nil
	}
}
