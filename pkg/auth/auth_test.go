package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainsafe/htlc-resolver/pkg/order/ordertest"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyOrderSignature(t *testing.T) {
	key := ordertest.Key()
	o := ordertest.New(key, nil)

	require.NoError(t, VerifyOrderSignature(o.OrderHash, o.Signature, o.Intent.Maker))

	err := VerifyOrderSignature(o.OrderHash, o.Signature, ordertest.Resolver.Hex())
	require.ErrorIs(t, err, ErrSignerMismatch)

	_, err = VerifyEIP191Signature(o.OrderHash.Hex(), "0x1234")
	require.Error(t, err)
}

func TestDigestVerifier(t *testing.T) {
	key := ordertest.Key()
	o := ordertest.New(key, nil)
	sig, err := DecodeSignature(o.Signature)
	require.NoError(t, err)

	maker := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, DigestVerifier{}.Verify(o.OrderHash, sig, maker))
	require.ErrorIs(t, DigestVerifier{}.Verify(o.OrderHash, sig, ordertest.Resolver), ErrSignerMismatch)

	// recovery must not mutate the caller's signature bytes
	assert.GreaterOrEqual(t, sig[64], byte(27))
}

func TestValidateEVMAddress(t *testing.T) {
	assert.True(t, ValidateEVMAddress("0x2222222222222222222222222222222222222222"))
	assert.False(t, ValidateEVMAddress("2222222222222222222222222222222222222222"))
	assert.False(t, ValidateEVMAddress("0x22"))
	assert.False(t, ValidateEVMAddress("0xzz22222222222222222222222222222222222222"))
}

func TestTokenManager(t *testing.T) {
	m := NewTokenManager("s3cret", "htlc-relayer", time.Minute)
	token, err := m.Issue("watcher-1", RoleWatcher)
	require.NoError(t, err)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "watcher-1", claims.Subject)
	assert.Equal(t, RoleWatcher, claims.Role)

	other := NewTokenManager("different", "htlc-relayer", time.Minute)
	_, err = other.ValidateToken(token)
	require.Error(t, err)

	m.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = m.ValidateToken(token)
	require.Error(t, err, "expired token must be rejected")
}

func TestRequireRole(t *testing.T) {
	m := NewTokenManager("s3cret", "", time.Minute)
	var seen string
	h := RequireRole(m, RoleWatcher)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ServiceFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	watcherToken, err := m.Issue("watcher-1", RoleWatcher)
	require.NoError(t, err)
	resolverToken, err := m.Issue("resolver-1", RoleResolver)
	require.NoError(t, err)
	operatorToken, err := m.Issue("ops", RoleOperator)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", http.StatusUnauthorized},
		{"wrong role", "Bearer " + resolverToken, http.StatusForbidden},
		{"watcher", "Bearer " + watcherToken, http.StatusNoContent},
		{"operator", "bearer " + operatorToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
	assert.Equal(t, "ops", seen)

	open := RequireRole(NewTokenManager("", "", 0), RoleWatcher)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	open.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
