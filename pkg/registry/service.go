package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/chainsafe/htlc-resolver/internal/metrics"
	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

type registryService struct {
	store Store
	cfg   config.RegistryConfig
	now   func() time.Time
}

// NewService creates the registry service over store.
func NewService(store Store, cfg config.RegistryConfig) Service {
	if cfg.DefaultPageLimit <= 0 {
		cfg.DefaultPageLimit = 100
	}
	if cfg.MaxPageLimit < cfg.DefaultPageLimit {
		cfg.MaxPageLimit = cfg.DefaultPageLimit
	}
	return &registryService{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Submit accepts a signed order into the registry.
//
// The order hash is recomputed from the intent and commitment; a supplied
// hash must match it. The signature must recover the maker.
func (s *registryService) Submit(ctx context.Context, in *order.Order) (common.Hash, error) {
	if in == nil {
		return common.Hash{}, apperrors.BadRequestError(nil, "order is required")
	}
	if in.Type == "" {
		in.Type = order.TypeSingleFill
	}

	now := s.now().UTC()
	if err := order.ValidateSubmission(in, now); err != nil {
		var verr *order.ValidationError
		if errors.As(err, &verr) {
			return common.Hash{}, apperrors.ValidationError(err, "invalid order", verr.Fields)
		}
		return common.Hash{}, apperrors.BadRequestError(err, "invalid order")
	}

	hash := in.Digest()
	if in.OrderHash != (common.Hash{}) && in.OrderHash != hash {
		return common.Hash{}, apperrors.ValidationError(
			fmt.Errorf("order hash %s does not match computed %s", in.OrderHash.Hex(), hash.Hex()),
			"invalid order",
			map[string]string{"order_hash": "does not match the order contents"},
		)
	}
	if err := auth.VerifyOrderSignature(hash, in.Signature, in.Intent.Maker); err != nil {
		return common.Hash{}, apperrors.ValidationError(err, "invalid order",
			map[string]string{"signature": "does not recover the maker"})
	}

	o := &order.Order{
		OrderHash:         hash,
		Intent:            in.Intent,
		Commitment:        in.Commitment,
		Signature:         in.Signature,
		Type:              in.Type,
		Status:            order.StatusUnmatched,
		FilledMakerAmount: decimal.Zero,
		FilledTakerAmount: decimal.Zero,
		Secrets:           []order.SecretEntry{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.store.CreateOrder(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateOrder) {
			return common.Hash{}, apperrors.ConflictError(err, ErrDuplicateOrder.Error())
		}
		return common.Hash{}, fmt.Errorf("failed to save order: %w", err)
	}

	metrics.OrdersSubmitted.Inc()
	metrics.ActiveOrders.Inc()
	return hash, nil
}

func (s *registryService) Get(ctx context.Context, orderHash common.Hash) (*order.Order, error) {
	o, err := s.store.GetOrder(ctx, orderHash)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return o, nil
}

// GetActive lists non-terminal orders newest first. A status filter narrows
// the listing to that status.
func (s *registryService) GetActive(ctx context.Context, q ActiveQuery) (*Page, error) {
	page, limit := q.Page, q.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = s.cfg.DefaultPageLimit
	}
	if limit > s.cfg.MaxPageLimit {
		limit = s.cfg.MaxPageLimit
	}

	statuses := activeStatuses()
	if q.Status != "" {
		if !q.Status.IsValid() {
			return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown status %q", q.Status))
		}
		if q.Status.IsTerminal() {
			return nil, apperrors.BadRequestError(nil, fmt.Sprintf("status %q is not active", q.Status))
		}
		statuses = []order.Status{q.Status}
	}

	items, total, err := s.store.ListOrders(ctx, ListQuery{
		Statuses: statuses,
		Offset:   (page - 1) * limit,
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list active orders: %w", err)
	}

	return &Page{
		Items: items,
		Meta: Meta{
			TotalItems:   total,
			ItemsPerPage: limit,
			TotalPages:   (total + limit - 1) / limit,
			CurrentPage:  page,
		},
	}, nil
}

// ApplyTransition moves an order along the status lattice and writes the
// transition's field updates in the same row update.
//
// A transition to the current status, or with no target, only writes the
// updates; it is still rejected on a terminal order.
func (s *registryService) ApplyTransition(ctx context.Context, t *Transition) (*order.Order, error) {
	if t == nil {
		return nil, apperrors.BadRequestError(nil, "transition is required")
	}
	if t.To != "" && !t.To.IsValid() {
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown status %q", t.To))
	}
	if t.Updates.Secret != "" {
		if _, err := order.DecodeSecret(t.Updates.Secret); err != nil {
			return nil, apperrors.ValidationError(err, "invalid transition", map[string]string{"updates.secret": err.Error()})
		}
	}

	var from order.Status
	updated, err := s.store.UpdateOrder(ctx, t.OrderHash, t.EventID, func(o *order.Order) error {
		from = o.Status
		if t.To == "" || t.To == o.Status {
			if o.Status.IsTerminal() {
				return fmt.Errorf("%w: order is %s", ErrTransitionConflict, o.Status)
			}
		} else if !order.CanTransition(o.Status, t.To) {
			return fmt.Errorf("%w: %s -> %s", ErrTransitionConflict, o.Status, t.To)
		}

		if err := t.Updates.apply(o); err != nil {
			return err
		}
		if t.To != "" {
			o.Status = t.To
		}
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}

	if updated.Status != from {
		metrics.TransitionsTotal.WithLabelValues(string(from), string(updated.Status)).Inc()
		if updated.Status.IsTerminal() {
			metrics.ActiveOrders.Dec()
		}
	}
	return updated, nil
}

// RecordExecution stores the resolver's escrow address and transaction
// hash on the leg ChainID serves.
func (s *registryService) RecordExecution(ctx context.Context, e *Execution) (*order.Order, error) {
	if e == nil || e.TxHash == "" {
		return nil, apperrors.BadRequestError(nil, "tx_hash is required")
	}
	switch e.Stage {
	case StageDeploy, StageWithdraw, StageRescue:
	default:
		return nil, apperrors.BadRequestError(nil, fmt.Sprintf("unknown stage %q", e.Stage))
	}

	updated, err := s.store.UpdateOrder(ctx, e.OrderHash, "", func(o *order.Order) error {
		side := o.SideOf(e.ChainID)
		if side == order.SideNone {
			return apperrors.BadRequestError(nil, fmt.Sprintf("chain %s is not part of the order", e.ChainID))
		}

		u := Updates{}
		switch {
		case e.Stage == StageDeploy && side == order.SideSource:
			u.SrcTxHash, u.SrcEscrowAddress = e.TxHash, e.EscrowAddress
		case e.Stage == StageDeploy:
			u.DstTxHash, u.DstEscrowAddress = e.TxHash, e.EscrowAddress
		case side == order.SideSource:
			u.SrcWithdrawTxHash = e.TxHash
		default:
			u.DstWithdrawTxHash = e.TxHash
		}
		if err := u.apply(o); err != nil {
			return err
		}
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return updated, nil
}

// SubmitSecret discloses a secret once both escrows exist.
//
// Single-fill orders only accept the secret behind the commitment; a
// repeated secret returns the entry recorded earlier.
func (s *registryService) SubmitSecret(ctx context.Context, orderHash common.Hash, secretHex string) (*order.SecretEntry, error) {
	secret, err := order.DecodeSecret(secretHex)
	if err != nil {
		return nil, apperrors.ValidationError(err, "invalid secret", map[string]string{"secret": err.Error()})
	}

	var entry order.SecretEntry
	_, err = s.store.UpdateOrder(ctx, orderHash, "", func(o *order.Order) error {
		if !acceptsSecret(o.Status) {
			return fmt.Errorf("%w: order is %s", ErrSecretRejected, o.Status)
		}
		for _, existing := range o.Secrets {
			if strings.EqualFold(existing.Secret, secretHex) {
				entry = existing
				return nil
			}
		}
		if o.Type == order.TypeSingleFill && order.SecretHash(secret) != o.Commitment.SecretHash {
			return fmt.Errorf("%w: secret does not match the order hashlock", ErrSecretRejected)
		}
		entry = o.AppendSecret(secret)
		o.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return &entry, nil
}

func (s *registryService) GetSecret(ctx context.Context, orderHash common.Hash) ([]order.SecretEntry, error) {
	o, err := s.store.GetOrder(ctx, orderHash)
	if err != nil {
		return nil, s.mapStoreError(err)
	}
	return o.Secrets, nil
}

// acceptsSecret reports whether both escrows of an order in status st exist
// and the order is still live.
func acceptsSecret(st order.Status) bool {
	switch st {
	case order.StatusUnmatched, order.StatusSourceFilled:
		return false
	default:
		return !st.IsTerminal()
	}
}

func (s *registryService) mapStoreError(err error) error {
	var svcErr *apperrors.ServiceError
	switch {
	case errors.As(err, &svcErr):
		return err
	case errors.Is(err, ErrOrderNotFound):
		return apperrors.ResourceNotFoundError(err, ErrOrderNotFound.Error())
	case errors.Is(err, ErrTransitionConflict):
		return apperrors.ConflictError(err, ErrTransitionConflict.Error())
	case errors.Is(err, ErrEventAlreadyApplied):
		return apperrors.ConflictError(err, ErrEventAlreadyApplied.Error())
	case errors.Is(err, ErrSecretRejected):
		return apperrors.ValidationError(err, ErrSecretRejected.Error(), map[string]string{"secret": err.Error()})
	default:
		return fmt.Errorf("registry store failure: %w", err)
	}
}

// apply writes the non-zero fields of u into o.
func (u Updates) apply(o *order.Order) error {
	setString(&o.SrcEscrowAddress, u.SrcEscrowAddress)
	setString(&o.DstEscrowAddress, u.DstEscrowAddress)
	setString(&o.SrcTxHash, u.SrcTxHash)
	setString(&o.DstTxHash, u.DstTxHash)
	setString(&o.SrcWithdrawTxHash, u.SrcWithdrawTxHash)
	setString(&o.DstWithdrawTxHash, u.DstWithdrawTxHash)

	if u.SrcImmutables != nil {
		o.SrcImmutables = u.SrcImmutables
	}
	if u.DstImmutables != nil {
		o.DstImmutables = u.DstImmutables
	}
	if u.SrcWithdrawImmutables != nil {
		o.SrcWithdrawImmutables = u.SrcWithdrawImmutables
	}
	if u.DstWithdrawImmutables != nil {
		o.DstWithdrawImmutables = u.DstWithdrawImmutables
	}

	if u.FilledMakerAmount != "" {
		d, err := decimal.NewFromString(u.FilledMakerAmount)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid filled_maker_amount")
		}
		o.FilledMakerAmount = d
	}
	if u.FilledTakerAmount != "" {
		d, err := decimal.NewFromString(u.FilledTakerAmount)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid filled_taker_amount")
		}
		o.FilledTakerAmount = d
	}

	if u.Secret != "" && !o.HasSecret(u.Secret) {
		secret, err := order.DecodeSecret(u.Secret)
		if err != nil {
			return apperrors.BadRequestError(err, "invalid secret")
		}
		o.AppendSecret(secret)
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
