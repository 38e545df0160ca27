package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/chainsafe/htlc-resolver/pkg/order"
)

const serviceName = "RegistryService"

const signatureDisplaySize = 16

// logService wraps Service with automatic logging of all method calls
type logService struct {
	svc    Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the registry Service.
// It logs method entry/exit, duration, errors, and redacts signatures and secrets.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		svc:    svc,
		logger: logger,
	}
}

func (ls *logService) done(method string, start time.Time, err error, fields ...zap.Field) {
	fields = append([]zap.Field{
		zap.String("service", serviceName),
		zap.String("method", method),
		zap.Duration("duration", time.Since(start)),
	}, fields...)
	if err != nil {
		ls.logger.Error(method+" failed", append(fields, zap.Error(err))...)
		return
	}
	ls.logger.Info(method+" completed", fields...)
}

// Submit wraps the service method with logging
func (ls *logService) Submit(ctx context.Context, o *order.Order) (hash common.Hash, err error) {
	start := time.Now()
	ls.logger.Info("Submit started",
		zap.String("service", serviceName),
		zap.String("method", "Submit"),
		zap.String("maker", o.Intent.Maker),
		zap.String("src_chain_id", o.Intent.SrcChainID),
		zap.String("dst_chain_id", o.Intent.DstChainID),
		zap.String("signature", redactSignature(o.Signature)),
	)
	defer func() {
		ls.done("Submit", start, err, zap.String("order_hash", hash.Hex()))
	}()

	return ls.svc.Submit(ctx, o)
}

// Get is a read path and only logs failures
func (ls *logService) Get(ctx context.Context, orderHash common.Hash) (*order.Order, error) {
	o, err := ls.svc.Get(ctx, orderHash)
	if err != nil {
		ls.logger.Debug("Get failed",
			zap.String("service", serviceName),
			zap.String("order_hash", orderHash.Hex()),
			zap.Error(err),
		)
	}
	return o, err
}

// GetActive wraps the service method with logging
func (ls *logService) GetActive(ctx context.Context, q ActiveQuery) (page *Page, err error) {
	start := time.Now()
	defer func() {
		if err != nil {
			ls.done("GetActive", start, err)
			return
		}
		ls.logger.Debug("GetActive completed",
			zap.String("service", serviceName),
			zap.Int("page", page.Meta.CurrentPage),
			zap.Int("items", len(page.Items)),
			zap.Int("total_items", page.Meta.TotalItems),
			zap.Duration("duration", time.Since(start)),
		)
	}()

	return ls.svc.GetActive(ctx, q)
}

// ApplyTransition wraps the service method with logging
func (ls *logService) ApplyTransition(ctx context.Context, t *Transition) (o *order.Order, err error) {
	start := time.Now()
	ls.logger.Info("ApplyTransition started",
		zap.String("service", serviceName),
		zap.String("method", "ApplyTransition"),
		zap.String("order_hash", t.OrderHash.Hex()),
		zap.String("to", string(t.To)),
		zap.String("event_id", t.EventID),
		zap.Bool("reveals_secret", t.Updates.Secret != ""),
	)
	defer func() {
		fields := []zap.Field{zap.String("order_hash", t.OrderHash.Hex())}
		if o != nil {
			fields = append(fields, zap.String("status", string(o.Status)))
		}
		ls.done("ApplyTransition", start, err, fields...)
	}()

	return ls.svc.ApplyTransition(ctx, t)
}

// RecordExecution wraps the service method with logging
func (ls *logService) RecordExecution(ctx context.Context, e *Execution) (o *order.Order, err error) {
	start := time.Now()
	defer func() {
		ls.done("RecordExecution", start, err,
			zap.String("order_hash", e.OrderHash.Hex()),
			zap.String("chain_id", e.ChainID),
			zap.String("stage", string(e.Stage)),
			zap.String("tx_hash", e.TxHash),
		)
	}()

	return ls.svc.RecordExecution(ctx, e)
}

// SubmitSecret wraps the service method with logging. The secret itself is
// never logged.
func (ls *logService) SubmitSecret(ctx context.Context, orderHash common.Hash, secret string) (entry *order.SecretEntry, err error) {
	start := time.Now()
	ls.logger.Info("SubmitSecret started",
		zap.String("service", serviceName),
		zap.String("method", "SubmitSecret"),
		zap.String("order_hash", orderHash.Hex()),
		zap.String("secret", redactSecret(secret)),
	)
	defer func() {
		fields := []zap.Field{zap.String("order_hash", orderHash.Hex())}
		if entry != nil {
			fields = append(fields, zap.Int("index", entry.Index), zap.String("secret_hash", entry.SecretHash.Hex()))
		}
		ls.done("SubmitSecret", start, err, fields...)
	}()

	return ls.svc.SubmitSecret(ctx, orderHash, secret)
}

// GetSecret wraps the service method with logging
func (ls *logService) GetSecret(ctx context.Context, orderHash common.Hash) (secrets []order.SecretEntry, err error) {
	start := time.Now()
	defer func() {
		ls.done("GetSecret", start, err,
			zap.String("order_hash", orderHash.Hex()),
			zap.Int("count", len(secrets)),
		)
	}()

	return ls.svc.GetSecret(ctx, orderHash)
}

// redactSignature redacts signature data to show only metadata
func redactSignature(sig string) string {
	if sig == "" {
		return "<empty>"
	}
	sigLen := len(sig)
	if sigLen > signatureDisplaySize {
		// Show first 8 and last 4 characters with length
		return fmt.Sprintf("%s...%s (%d bytes)", sig[:8], sig[sigLen-4:], sigLen)
	}
	return fmt.Sprintf("<%d bytes>", sigLen)
}

// redactSecret shows only the length of a secret
func redactSecret(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<redacted %d chars>", len(secret))
}
