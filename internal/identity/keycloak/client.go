// Package keycloak adapts the Keycloak admin REST API to the identity
// Gateway interface. The client authenticates with a password grant against
// the master realm and caches the admin token until shortly before expiry.
package keycloak

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"onboard/internal/identity"
	"onboard/internal/platform/config"
	"onboard/internal/platform/metrics"
	"onboard/pkg/platform/sentinel"
)

// tokenSkew refreshes the admin token this long before it expires.
const tokenSkew = 30 * time.Second

// Client is a Gateway implementation over the Keycloak admin API.
type Client struct {
	http    *http.Client
	cfg     config.KeycloakConfig
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

type Option func(*Client)

// WithMetrics enables the identity-gateway latency histogram.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New builds a Keycloak admin client with a bounded HTTP timeout.
func New(cfg config.KeycloakConfig, logger *slog.Logger, opts ...Option) *Client {
	c := &Client{
		http:   &http.Client{Timeout: cfg.Timeout},
		cfg:    cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// adminToken returns a cached admin access token, refreshing it when within
// tokenSkew of expiry. Expiry comes from the token's exp claim (unverified
// parse; the token came straight from the issuer over TLS), falling back to
// the expires_in hint.
func (c *Client) adminToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExp.Add(-tokenSkew)) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {c.cfg.ClientID},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	endpoint := c.cfg.BaseURL + "/realms/master/protocol/openid-connect/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request admin token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("admin token request returned %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	c.token = token.AccessToken
	c.tokenExp = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)

	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token.AccessToken, &claims); err == nil && claims.ExpiresAt != nil {
		c.tokenExp = claims.ExpiresAt.Time
	}

	return c.token, nil
}

// do performs an authenticated admin API call and maps transport-level
// failures. Callers own response body handling on success.
func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	start := time.Now()
	defer func() {
		if c.metrics != nil {
			c.metrics.IdentityLatency.Observe(time.Since(start).Seconds())
		}
	}()

	token, err := c.adminToken(ctx)
	if err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	endpoint := c.cfg.BaseURL + "/admin/realms/" + c.cfg.Realm + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s returned %d: %w", method, path, resp.StatusCode, sentinel.ErrUnavailable)
	}
	return resp, nil
}

func (c *Client) searchUsers(ctx context.Context, query url.Values) ([]identity.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user search returned %d", resp.StatusCode)
	}

	var users []identity.User
	if err := json.NewDecoder(resp.Body).Decode(&users); err != nil {
		return nil, fmt.Errorf("decode user search: %w", err)
	}
	return users, nil
}

func (c *Client) FindByPhone(ctx context.Context, phone string) (*identity.User, error) {
	users, err := c.searchUsers(ctx, url.Values{"username": {phone}, "exact": {"true"}})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		// Accounts created outside this flow carry the phone as an
		// attribute rather than the username.
		users, err = c.searchUsers(ctx, url.Values{"q": {identity.AttrPhoneNumber + ":" + phone}})
		if err != nil {
			return nil, err
		}
	}
	if len(users) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &users[0], nil
}

func (c *Client) FindByEmail(ctx context.Context, email string) (*identity.User, error) {
	users, err := c.searchUsers(ctx, url.Values{"email": {email}, "exact": {"true"}})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &users[0], nil
}

func (c *Client) FindByID(ctx context.Context, id string) (*identity.User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/users/"+id, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, sentinel.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get user returned %d", resp.StatusCode)
	}

	var user identity.User
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &user, nil
}

func (c *Client) Create(ctx context.Context, user *identity.User) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/users", user)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		// The new user's id is the trailing segment of the Location header.
		location := resp.Header.Get("Location")
		if idx := strings.LastIndexByte(location, '/'); idx >= 0 && idx < len(location)-1 {
			return location[idx+1:], nil
		}
		return "", fmt.Errorf("create user: missing id in location %q", location)
	case http.StatusConflict:
		return "", sentinel.ErrConflict
	default:
		return "", fmt.Errorf("create user returned %d", resp.StatusCode)
	}
}

func (c *Client) Update(ctx context.Context, user *identity.User) error {
	resp, err := c.do(ctx, http.MethodPut, "/users/"+user.ID, user)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK:
		return nil
	case http.StatusNotFound:
		return sentinel.ErrNotFound
	default:
		return fmt.Errorf("update user returned %d", resp.StatusCode)
	}
}

// Health probes the realm's public endpoint, which needs no admin token.
func (c *Client) Health(ctx context.Context) error {
	endpoint := c.cfg.BaseURL + "/realms/" + c.cfg.Realm
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("realm endpoint returned %d", resp.StatusCode)
	}
	return nil
}
