// Package thingsboard is the client for the upstream ThingsBoard REST
// API. It authenticates with tenant credentials, keeps the JWT pair in
// memory only and refreshes the access token shortly before it expires.
// Credentials and tokens are never logged.
package thingsboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// tokenRefreshGuard refreshes the access token this long before its real
// expiry to avoid racing the upstream clock.
const tokenRefreshGuard = 30 * time.Second

// AuthError is returned when the gateway cannot authenticate against the
// upstream platform.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return "thingsboard auth: " + e.Message
}

// UpstreamStatus reports the upstream failure as a gateway error.
func (e *AuthError) UpstreamStatus() int {
	return http.StatusBadGateway
}

// UpstreamError is any non-2xx answer from the upstream platform.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("thingsboard: upstream status %d: %s", e.StatusCode, e.Message)
}

func (e *UpstreamError) UpstreamStatus() int {
	return e.StatusCode
}

type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	throttle *rate.Limiter // nil when no client-side throttle is configured

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

func NewClient(host, username, password string, timeout time.Duration, uploadRPS int) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var throttle *rate.Limiter
	if uploadRPS > 0 {
		throttle = rate.NewLimiter(rate.Limit(uploadRPS), uploadRPS)
	}

	return &Client{
		baseURL:  strings.TrimRight(host, "/"),
		username: username,
		password: password,
		http:     &http.Client{Timeout: timeout},
		throttle: throttle,
	}
}

// token returns a fresh access token, refreshing or re-logging-in while
// holding the lock so concurrent callers trigger a single handshake.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Add(tokenRefreshGuard).Before(c.expiresAt) {
		return c.accessToken, nil
	}

	if c.refreshToken != "" {
		if err := c.refreshLocked(ctx); err == nil {
			return c.accessToken, nil
		}
		// refresh failed, fall through to a full login
	}

	if err := c.loginLocked(ctx); err != nil {
		return "", err
	}
	return c.accessToken, nil
}

type tokenPair struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (c *Client) loginLocked(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{
		"username": c.username,
		"password": c.password,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &AuthError{Message: "login request failed"}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &AuthError{Message: fmt.Sprintf("login rejected with status %d", resp.StatusCode)}
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return &AuthError{Message: "malformed login response"}
	}

	c.storeTokensLocked(pair)
	return nil
}

func (c *Client) refreshLocked(ctx context.Context) error {
	body, _ := json.Marshal(map[string]string{"refreshToken": c.refreshToken})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/token", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("refresh rejected with status %d", resp.StatusCode)
	}

	var pair tokenPair
	if err := json.NewDecoder(resp.Body).Decode(&pair); err != nil {
		return err
	}

	c.storeTokensLocked(pair)
	return nil
}

func (c *Client) storeTokensLocked(pair tokenPair) {
	c.accessToken = pair.Token
	c.refreshToken = pair.RefreshToken

	// Expiry comes from the unverified exp claim; the token is upstream's,
	// we only schedule its renewal. ThingsBoard defaults to 2.5h when the
	// claim cannot be read.
	c.expiresAt = time.Now().Add(150 * time.Minute)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(pair.Token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			c.expiresAt = exp.Time
		}
	}
}

// invalidate drops the cached access token so the next call re-auths.
func (c *Client) invalidate() {
	c.mu.Lock()
	c.accessToken = ""
	c.mu.Unlock()
}

// do performs one authorized call. A single retry covers the case where
// upstream revoked our token before its recorded expiry.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if c.throttle != nil {
		if err := c.throttle.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := c.doOnce(ctx, method, path, payload)
	var upstream *UpstreamError
	if errors.As(err, &upstream) && upstream.StatusCode == http.StatusUnauthorized {
		c.invalidate()
		return c.doOnce(ctx, method, path, payload)
	}
	return body, err
}

func (c *Client) doOnce(ctx context.Context, method, path string, payload any) ([]byte, error) {
	token, err := c.token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &UpstreamError{StatusCode: 0, Message: "connection to upstream failed"}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	return raw, nil
}
