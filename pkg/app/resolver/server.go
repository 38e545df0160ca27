// Package resolver implements app.Runner for the resolver process.
package resolver

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
	"github.com/chainsafe/htlc-resolver/pkg/chain"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/keys"
	"github.com/chainsafe/htlc-resolver/pkg/registry"
	"github.com/chainsafe/htlc-resolver/pkg/resolver"
)

// Server holds configuration for the resolver process.
type Server struct {
	cfg *config.ResolverConfig
}

// NewServer initializes a new resolver Server.
func NewServer(cfg *config.ResolverConfig) *Server {
	return &Server{cfg: cfg}
}

// Run starts the resolver engine and the operational HTTP server.
// It blocks until an OS shutdown signal is received or a fatal server error occurs.
func (s *Server) Run() error {
	if s.cfg == nil {
		return fmt.Errorf("nil config")
	}
	cfg := s.cfg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.Logging, "resolver")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	key, err := keys.LoadSigningKey(cfg.Executor.PrivateKey, cfg.Executor.EncryptedKey, cfg.Executor.MasterKey)
	if err != nil {
		return fmt.Errorf("load resolver key: %w", err)
	}

	logger.Info("Starting HTLC resolver",
		zap.String("account", key.Address.Hex()),
		zap.Int("chains", len(cfg.Chains)),
		zap.Int("workers", cfg.Executor.Workers),
	)

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	reg := registry.NewClient(cfg.Registry, tokens, auth.RoleResolver)

	clients, err := app.DialChains(ctx, cfg.Chains, cfg.Escrow, key, logger)
	if err != nil {
		return fmt.Errorf("dial chains: %w", err)
	}
	defer app.CloseChains(clients)

	chains := make([]chain.Chain, 0, len(clients))
	for _, c := range clients {
		chains = append(chains, c)
	}

	executor := resolver.NewExecutor(chains, cfg.Chains, reg, cfg.Executor, logger)
	engine := resolver.NewEngine(
		reg,
		resolver.NewMapper(cfg.Chains, key.Address),
		executor,
		resolver.NewSweeper(executor, cfg.Escrow.RescueTimelock, logger),
		cfg.Executor,
		logger,
	)
	if err := engine.Start(ctx); err != nil {
		return fmt.Errorf("start resolver engine: %w", err)
	}
	defer engine.Stop()

	router := apphttp.NewRouter(&cfg.Server, cfg.Monitoring, engine.IsReady, logger)
	return apphttp.ServeAndWait(ctx, router, logger, &cfg.Server)
}
