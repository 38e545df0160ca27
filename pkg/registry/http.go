package registry

import (
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	apphttp "github.com/chainsafe/htlc-resolver/pkg/app/http"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

// BasePath is the prefix of every registry endpoint
const BasePath = "/relayer/v1"

// SubmitResponse is returned by a successful order submission
type SubmitResponse struct {
	OrderHash common.Hash `json:"order_hash"`
}

// SecretRequest discloses a secret for an order
type SecretRequest struct {
	Secret string `json:"secret"`
}

// SecretsResponse lists the secrets disclosed for an order
type SecretsResponse struct {
	OrderHash common.Hash         `json:"order_hash"`
	Secrets   []order.SecretEntry `json:"secrets"`
}

// HTTP wraps the Service to provide HTTP endpoints
type HTTP struct {
	service Service
	logger  *zap.Logger
}

// RegisterRoutes registers the registry endpoints on the given chi router.
// Status transitions require a watcher token and execution reports a
// resolver token.
func RegisterRoutes(r chi.Router, service Service, tokens *auth.TokenManager, logger *zap.Logger) {
	h := &HTTP{
		service: service,
		logger:  logger,
	}

	r.Route(BasePath+"/orders", func(r chi.Router) {
		r.Post("/", apphttp.HandleError(h.submit))
		r.Get("/active", apphttp.HandleError(h.active))
		r.Route("/{orderHash}", func(r chi.Router) {
			r.Get("/", apphttp.HandleError(h.get))
			r.Get("/secret", apphttp.HandleError(h.getSecret))
			r.Post("/secret", apphttp.HandleError(h.submitSecret))
			r.With(auth.RequireRole(tokens, auth.RoleWatcher)).
				Post("/transition", apphttp.HandleError(h.transition))
			r.With(auth.RequireRole(tokens, auth.RoleResolver)).
				Post("/execution", apphttp.HandleError(h.execution))
		})
	})
}

func (h *HTTP) submit(w http.ResponseWriter, r *http.Request) error {
	var o order.Order
	if err := decodeBody(r, &o); err != nil {
		return err
	}

	hash, err := h.service.Submit(r.Context(), &o)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusCreated, &SubmitResponse{OrderHash: hash})
}

func (h *HTTP) active(w http.ResponseWriter, r *http.Request) error {
	q := ActiveQuery{}
	var err error
	if v := r.URL.Query().Get("page"); v != "" {
		if q.Page, err = strconv.Atoi(v); err != nil || q.Page < 1 {
			return apperrors.BadRequestError(err, "invalid page")
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if q.Limit, err = strconv.Atoi(v); err != nil || q.Limit < 1 {
			return apperrors.BadRequestError(err, "invalid limit")
		}
	}
	if v := r.URL.Query().Get("status"); v != "" {
		if q.Status, err = order.ParseStatus(v); err != nil {
			return apperrors.BadRequestError(err, "invalid status")
		}
	}

	page, err := h.service.GetActive(r.Context(), q)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, page)
}

func (h *HTTP) get(w http.ResponseWriter, r *http.Request) error {
	hash, err := orderHashParam(r)
	if err != nil {
		return err
	}

	o, err := h.service.Get(r.Context(), hash)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, o)
}

func (h *HTTP) getSecret(w http.ResponseWriter, r *http.Request) error {
	hash, err := orderHashParam(r)
	if err != nil {
		return err
	}

	secrets, err := h.service.GetSecret(r.Context(), hash)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, &SecretsResponse{OrderHash: hash, Secrets: secrets})
}

func (h *HTTP) submitSecret(w http.ResponseWriter, r *http.Request) error {
	hash, err := orderHashParam(r)
	if err != nil {
		return err
	}
	var req SecretRequest
	if err := decodeBody(r, &req); err != nil {
		return err
	}

	entry, err := h.service.SubmitSecret(r.Context(), hash, req.Secret)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, entry)
}

func (h *HTTP) transition(w http.ResponseWriter, r *http.Request) error {
	hash, err := orderHashParam(r)
	if err != nil {
		return err
	}
	var t Transition
	if err := decodeBody(r, &t); err != nil {
		return err
	}
	t.OrderHash = hash

	if svc, ok := auth.ServiceFromContext(r.Context()); ok {
		h.logger.Debug("Transition requested",
			zap.String("caller", svc),
			zap.String("order_hash", hash.Hex()),
			zap.String("to", string(t.To)),
			zap.String("event_id", t.EventID),
		)
	}

	o, err := h.service.ApplyTransition(r.Context(), &t)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, o)
}

func (h *HTTP) execution(w http.ResponseWriter, r *http.Request) error {
	hash, err := orderHashParam(r)
	if err != nil {
		return err
	}
	var e Execution
	if err := decodeBody(r, &e); err != nil {
		return err
	}
	e.OrderHash = hash

	o, err := h.service.RecordExecution(r.Context(), &e)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, o)
}

func decodeBody(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20)) // 1MB limit
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	return nil
}

func orderHashParam(r *http.Request) (common.Hash, error) {
	raw := chi.URLParam(r, "orderHash")
	hash, ok := ParseOrderHash(raw)
	if !ok {
		return common.Hash{}, apperrors.BadRequestError(nil, "invalid order hash")
	}
	return hash, nil
}

// ParseOrderHash accepts a 0x-prefixed 32-byte hex hash.
func ParseOrderHash(s string) (common.Hash, bool) {
	if !strings.HasPrefix(s, "0x") || len(s) != 2+2*common.HashLength {
		return common.Hash{}, false
	}
	if _, err := hex.DecodeString(s[2:]); err != nil {
		return common.Hash{}, false
	}
	return common.HexToHash(s), true
}
