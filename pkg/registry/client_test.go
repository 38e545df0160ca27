package registry

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/order"
	"github.com/chainsafe/htlc-resolver/pkg/order/ordertest"
)

func newClientPair(t *testing.T) (watcher, resolver *Client) {
	t.Helper()
	tokens := auth.NewTokenManager("client-test-secret", "htlc-relayer", time.Hour)

	r := chi.NewRouter()
	RegisterRoutes(r, NewLog(newTestService(), zap.NewNop()), tokens, zap.NewNop())
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	cfg := config.RegistryClientConfig{URL: srv.URL + "/", Timeout: 5 * time.Second}
	cfg.ServiceName = "watcher-test"
	watcher = NewClient(cfg, tokens, auth.RoleWatcher)
	cfg.ServiceName = "resolver-test"
	resolver = NewClient(cfg, tokens, auth.RoleResolver)
	return watcher, resolver
}

func TestClient_RoundTrip(t *testing.T) {
	watcher, resolver := newClientPair(t)
	ctx := context.Background()

	o := ordertest.New(ordertest.Key(), nil)
	hash, err := watcher.Submit(ctx, o)
	require.NoError(t, err)
	assert.Equal(t, o.Digest(), hash)

	got, err := resolver.Get(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, order.StatusUnmatched, got.Status)
	assert.Equal(t, o.Intent.Maker, got.Intent.Maker)
	assert.True(t, o.Intent.MakingAmount.Equal(got.Intent.MakingAmount))

	page, err := resolver.GetActive(ctx, ActiveQuery{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, 1, page.Meta.TotalItems)

	got, err = resolver.RecordExecution(ctx, &Execution{
		OrderHash: hash, ChainID: ordertest.SrcChain, Stage: StageDeploy, TxHash: "0xfeed",
	})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", got.SrcTxHash)

	for _, st := range []order.Status{order.StatusSourceFilled, order.StatusDestinationFilled} {
		_, err = watcher.ApplyTransition(ctx, &Transition{OrderHash: hash, To: st, EventID: string(st)})
		require.NoError(t, err)
	}

	entry, err := resolver.SubmitSecret(ctx, hash, hex.EncodeToString(ordertest.Secret))
	require.NoError(t, err)
	assert.Equal(t, order.SecretHash(ordertest.Secret), entry.SecretHash)

	secrets, err := watcher.GetSecret(ctx, hash)
	require.NoError(t, err)
	require.Len(t, secrets, 1)
	assert.Equal(t, hex.EncodeToString(ordertest.Secret), secrets[0].Secret)
}

func TestClient_MapsErrorsToSentinels(t *testing.T) {
	watcher, resolver := newClientPair(t)
	ctx := context.Background()

	hash, err := watcher.Submit(ctx, ordertest.New(ordertest.Key(), nil))
	require.NoError(t, err)

	_, err = watcher.Submit(ctx, ordertest.New(ordertest.Key(), nil))
	assert.True(t, errors.Is(err, ErrDuplicateOrder), "got %v", err)

	_, err = watcher.ApplyTransition(ctx, &Transition{OrderHash: hash, To: order.StatusFulfilled})
	assert.True(t, errors.Is(err, ErrTransitionConflict), "got %v", err)
	assert.True(t, apperrors.Is(err, apperrors.CategoryDataConflict))

	_, err = watcher.ApplyTransition(ctx, &Transition{OrderHash: hash, To: order.StatusSourceFilled, EventID: "e"})
	require.NoError(t, err)
	_, err = watcher.ApplyTransition(ctx, &Transition{OrderHash: hash, To: order.StatusSourceFilled, EventID: "e"})
	assert.True(t, errors.Is(err, ErrEventAlreadyApplied), "got %v", err)

	_, err = resolver.Get(ctx, testHash)
	assert.True(t, errors.Is(err, ErrOrderNotFound), "got %v", err)

	// the resolver role may not move status
	_, err = resolver.ApplyTransition(ctx, &Transition{OrderHash: hash, To: order.StatusExpired})
	assert.True(t, apperrors.Is(err, apperrors.CategoryForbidden), "got %v", err)
}
