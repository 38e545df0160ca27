// Package watcher implements app.Runner for the chain watcher process.
package watcher

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/app"
	apphttp "github.com/chainsafe/htlc-resolver/pkg/app/http"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/db"
	"github.com/chainsafe/htlc-resolver/pkg/pgutil"
	"github.com/chainsafe/htlc-resolver/pkg/publisher"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
	"github.com/chainsafe/htlc-resolver/pkg/watcher"
)

// Server holds configuration for the watcher process.
type Server struct {
	cfg *config.WatcherConfig
}

// NewServer initializes a new watcher Server.
func NewServer(cfg *config.WatcherConfig) *Server {
	return &Server{cfg: cfg}
}

// Run starts one poller per configured chain and the operational HTTP
// server. It blocks until an OS shutdown signal is received or a fatal
// server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging, "watcher")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting HTLC chain watcher", zap.Int("chains", len(cfg.Chains)))

	bunDB, err := pgutil.ConnectDB(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("connect watcher db: %w", err)
	}
	defer func() { _ = bunDB.Close() }()
	cursors := db.NewCursorStore(bunDB)

	pub, err := publisher.New(cfg.Kafka, logger)
	if err != nil {
		return fmt.Errorf("create publisher: %w", err)
	}
	defer pub.Close()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	reg := registry.NewClient(cfg.Registry, tokens, auth.RoleWatcher)

	// the watcher only reads chains, so no signing key
	clients, err := app.DialChains(ctx, cfg.Chains, config.EscrowConfig{SecurityDeposit: "0"}, nil, logger)
	if err != nil {
		return fmt.Errorf("dial chains: %w", err)
	}
	defer app.CloseChains(clients)

	escrows := app.EscrowAddresses(clients)
	pollers := make([]*watcher.Poller, 0, len(clients))
	for i, c := range clients {
		pollers = append(pollers, watcher.NewPoller(c, cfg.Chains[i], reg, cursors, pub, escrows, logger))
	}

	engine := watcher.NewEngine(pollers, reg, pub, cfg.ExpiryInterval, logger)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start watcher engine: %w", err)
	}
	defer engine.Stop()

	router := apphttp.NewRouter(&cfg.Server, cfg.Monitoring, engine.IsReady, logger)
	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}
