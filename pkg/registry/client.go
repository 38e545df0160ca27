package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	apperrors "github.com/chainsafe/htlc-resolver/pkg/app/errors"
	apphttp "github.com/chainsafe/htlc-resolver/pkg/app/http"
	"github.com/chainsafe/htlc-resolver/pkg/auth"
	"github.com/chainsafe/htlc-resolver/pkg/config"
	"github.com/chainsafe/htlc-resolver/pkg/order"
)

var _ Service = (*Client)(nil)

// Limit error-body reads so a misbehaving server cannot blow up memory.
const maxErrBodyBytes = 4096

// Client talks to a remote registry over HTTP. It implements Service, so
// services can run against a local registry in tests and a remote one in
// production.
type Client struct {
	baseURL    string
	service    string
	role       auth.Role
	tokens     *auth.TokenManager
	httpClient *http.Client
}

// NewClient creates a registry client. Requests carry a service token for
// role when tokens is configured.
func NewClient(cfg config.RegistryClientConfig, tokens *auth.TokenManager, role auth.Role) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		service:    cfg.ServiceName,
		role:       role,
		tokens:     tokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

func (c *Client) Submit(ctx context.Context, o *order.Order) (common.Hash, error) {
	var resp SubmitResponse
	if err := c.do(ctx, http.MethodPost, "/orders", o, &resp); err != nil {
		return common.Hash{}, err
	}
	return resp.OrderHash, nil
}

func (c *Client) Get(ctx context.Context, orderHash common.Hash) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderHash.Hex(), nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) GetActive(ctx context.Context, q ActiveQuery) (*Page, error) {
	params := url.Values{}
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Status != "" {
		params.Set("status", string(q.Status))
	}
	path := "/orders/active"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var page Page
	if err := c.do(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) ApplyTransition(ctx context.Context, t *Transition) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodPost, "/orders/"+t.OrderHash.Hex()+"/transition", t, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) RecordExecution(ctx context.Context, e *Execution) (*order.Order, error) {
	var o order.Order
	if err := c.do(ctx, http.MethodPost, "/orders/"+e.OrderHash.Hex()+"/execution", e, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (c *Client) SubmitSecret(ctx context.Context, orderHash common.Hash, secret string) (*order.SecretEntry, error) {
	var entry order.SecretEntry
	if err := c.do(ctx, http.MethodPost, "/orders/"+orderHash.Hex()+"/secret", &SecretRequest{Secret: secret}, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (c *Client) GetSecret(ctx context.Context, orderHash common.Hash) ([]order.SecretEntry, error) {
	var resp SecretsResponse
	if err := c.do(ctx, http.MethodGet, "/orders/"+orderHash.Hex()+"/secret", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Secrets, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+BasePath+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.tokens != nil && c.tokens.IsConfigured() {
		token, err := c.tokens.Issue(c.service, c.role)
		if err != nil {
			return fmt.Errorf("issue service token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call registry %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return readError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode registry response: %w", err)
	}
	return nil
}

// readError rebuilds the ServiceError the registry rendered, so callers can
// match it against this package's sentinel errors.
func readError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))

	var body apphttp.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.ErrMsg == "" {
		body.ErrMsg = strings.TrimSpace(string(raw))
	}
	return &apperrors.ServiceError{
		Category: apperrors.CategoryFromStatus(resp.StatusCode),
		Message:  body.ErrMsg,
		Err:      fmt.Errorf("registry returned %d: %s", resp.StatusCode, body.ErrMsg),
		Details:  body.Details,
	}
}
