package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

var testHash = common.HexToHash("0x1111111111111111111111111111111111111111111111111111111111111111")

func newRegistryTestServer(svc Service, tokens *auth.TokenManager) http.Handler {
	if tokens == nil {
		tokens = auth.NewTokenManager("", "", 0)
	}
	r := chi.NewRouter()
	RegisterRoutes(r, svc, tokens, zap.NewNop())
	return r
}

type errorBody struct {
	Error   string            `json:"error"`
	Code    int               `json:"code"`
	Details map[string]string `json:"details"`
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var got errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("failed to decode response JSON: %v", err)
	}
	return got
}

func TestSubmitHTTP_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	handler := newRegistryTestServer(&MockService{}, nil)

	req := httptest.NewRequest(http.MethodPost, BasePath+"/orders", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	if got := decodeError(t, rec); got.Error != "invalid JSON" {
		t.Fatalf("expected error %q, got %q", "invalid JSON", got.Error)
	}
}

func TestSubmitHTTP_ValidationDetailsRendered(t *testing.T) {
	svc := &MockService{
		SubmitFunc: func(context.Context, *order.Order) (common.Hash, error) {
			return common.Hash{}, apperrors.ValidationError(nil, "invalid order", map[string]string{"order.maker": "is required"})
		},
	}
	handler := newRegistryTestServer(svc, nil)

	req := httptest.NewRequest(http.MethodPost, BasePath+"/orders", bytes.NewBufferString(`{}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
	got := decodeError(t, rec)
	if got.Details["order.maker"] != "is required" {
		t.Fatalf("expected field detail for order.maker, got %v", got.Details)
	}
}

func TestSubmitHTTP_Created(t *testing.T) {
	svc := &MockService{
		SubmitFunc: func(context.Context, *order.Order) (common.Hash, error) {
			return testHash, nil
		},
	}
	handler := newRegistryTestServer(svc, nil)

	req := httptest.NewRequest(http.MethodPost, BasePath+"/orders", bytes.NewBufferString(`{"order_type":"single_fill"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}
	var resp SubmitResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderHash != testHash {
		t.Fatalf("expected hash %s, got %s", testHash.Hex(), resp.OrderHash.Hex())
	}
}

func TestGetHTTP_InvalidHash(t *testing.T) {
	handler := newRegistryTestServer(&MockService{}, nil)

	for _, path := range []string{"/orders/0x1234", "/orders/1111111111111111111111111111111111111111111111111111111111111111"} {
		req := httptest.NewRequest(http.MethodGet, BasePath+path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", path, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestGetHTTP_NotFound(t *testing.T) {
	handler := newRegistryTestServer(&MockService{
		GetFunc: func(context.Context, common.Hash) (*order.Order, error) {
			return nil, apperrors.ResourceNotFoundError(ErrOrderNotFound, ErrOrderNotFound.Error())
		},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, BasePath+"/orders/"+testHash.Hex(), nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestActiveHTTP_ParsesQuery(t *testing.T) {
	var seen ActiveQuery
	svc := &MockService{
		GetActiveFunc: func(_ context.Context, q ActiveQuery) (*Page, error) {
			seen = q
			return &Page{Items: []*order.Order{}, Meta: Meta{CurrentPage: q.Page, ItemsPerPage: q.Limit}}, nil
		},
	}
	handler := newRegistryTestServer(svc, nil)

	req := httptest.NewRequest(http.MethodGet, BasePath+"/orders/active?page=3&limit=25&status=source_filled", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	want := ActiveQuery{Page: 3, Limit: 25, Status: order.StatusSourceFilled}
	if seen != want {
		t.Fatalf("expected query %+v, got %+v", want, seen)
	}

	for _, bad := range []string{"page=0", "limit=abc", "status=bogus"} {
		req := httptest.NewRequest(http.MethodGet, BasePath+"/orders/active?"+bad, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status %d, got %d", bad, http.StatusBadRequest, rec.Code)
		}
	}
}

func TestTransitionHTTP_RequiresWatcherToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", "htlc-relayer", time.Hour)
	var applied *Transition
	svc := &MockService{
		ApplyTransitionFunc: func(_ context.Context, tr *Transition) (*order.Order, error) {
			applied = tr
			return &order.Order{OrderHash: tr.OrderHash, Status: tr.To}, nil
		},
	}
	handler := newRegistryTestServer(svc, tokens)
	body := `{"to":"source_filled","event_id":"evt"}`

	send := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, BasePath+"/orders/"+testHash.Hex()+"/transition", bytes.NewBufferString(body))
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := send(""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d without token, got %d", http.StatusUnauthorized, rec.Code)
	}

	resolverToken, err := tokens.Issue("resolver-1", auth.RoleResolver)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	if rec := send(resolverToken); rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d with resolver token, got %d", http.StatusForbidden, rec.Code)
	}
	if applied != nil {
		t.Fatal("transition reached the service without a watcher token")
	}

	watcherToken, err := tokens.Issue("watcher-1", auth.RoleWatcher)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	if rec := send(watcherToken); rec.Code != http.StatusOK {
		t.Fatalf("expected status %d with watcher token, got %d", http.StatusOK, rec.Code)
	}
	if applied == nil || applied.OrderHash != testHash || applied.To != order.StatusSourceFilled || applied.EventID != "evt" {
		t.Fatalf("unexpected transition passed to service: %+v", applied)
	}
}

func TestExecutionHTTP_RequiresResolverToken(t *testing.T) {
	tokens := auth.NewTokenManager("test-secret", "htlc-relayer", time.Hour)
	handler := newRegistryTestServer(&MockService{}, tokens)

	watcherToken, err := tokens.Issue("watcher-1", auth.RoleWatcher)
	if err != nil {
		t.Fatalf("Issue() failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, BasePath+"/orders/"+testHash.Hex()+"/execution",
		bytes.NewBufferString(`{"chain_id":"1","stage":"deploy","tx_hash":"0x1"}`))
	req.Header.Set("Authorization", "Bearer "+watcherToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d", http.StatusForbidden, rec.Code)
	}
}
