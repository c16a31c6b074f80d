package ojcloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"thermosync/internal/logger"

	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 15 * time.Second

// Config holds the already-validated primitives the client needs.
type Config struct {
	BaseURL    string
	APIKey     string
	Username   string
	Password   string
	CustomerID int
	Timeout    time.Duration
}

// Client owns the authenticated vendor session. Poll cycles and user-triggered
// commands can overlap in time, so session creation is single-flight and
// expiry recovery retries at most once.
type Client struct {
	cfg  Config
	http *http.Client
	log  *logger.Logger

	mu      sync.Mutex
	session string
	sf      singleflight.Group
}

// NewClient constructs a vendor API client. No login is performed until the
// first authenticated call needs a session.
func NewClient(cfg Config, log *logger.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
	}
}

// SignIn performs a fresh login and returns the session token. It does not
// touch the cached session; EnsureSession owns that.
func (c *Client) SignIn(ctx context.Context) (string, error) {
	body, err := json.Marshal(signInRequest{
		APIKey:     c.cfg.APIKey,
		Username:   c.cfg.Username,
		Password:   c.cfg.Password,
		CustomerID: c.cfg.CustomerID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal sign-in request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/UserProfile/SignIn", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build sign-in request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &AuthError{Reason: "login endpoint unreachable", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Reason: fmt.Sprintf("login returned status %d", resp.StatusCode)}
	}

	var res signInResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", &AuthError{Reason: "malformed sign-in response", Err: err}
	}
	if res.ErrorCode != 0 || res.SessionToken == "" {
		return "", &AuthError{Reason: fmt.Sprintf("credentials rejected (error code %d)", res.ErrorCode)}
	}
	return res.SessionToken, nil
}

// EnsureSession returns a valid session token, logging in if necessary.
// Concurrent callers with no session share one in-flight login attempt and
// its outcome; duplicate authentication requests are never issued.
func (c *Client) EnsureSession(ctx context.Context) (string, error) {
	c.mu.Lock()
	session := c.session
	c.mu.Unlock()
	if session != "" {
		return session, nil
	}

	v, err, _ := c.sf.Do("sign-in", func() (any, error) {
		// Re-check: a caller that queued behind a finished login reuses it.
		c.mu.Lock()
		cached := c.session
		c.mu.Unlock()
		if cached != "" {
			return cached, nil
		}

		token, err := c.SignIn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.session = token
		c.mu.Unlock()
		c.log.Infow("signed in to vendor cloud")
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// invalidate drops the cached session, but only if it is still the one the
// failing call used. A token refreshed by a concurrent caller survives.
func (c *Client) invalidate(session string) {
	c.mu.Lock()
	if c.session == session {
		c.session = ""
	}
	c.mu.Unlock()
}

// withRetryOnExpiry runs fn with a valid session. If fn reports an expired
// session, the client invalidates it, performs exactly one fresh login and
// retries fn exactly once. Any other failure, or a second expiry, propagates
// unchanged.
func (c *Client) withRetryOnExpiry(ctx context.Context, label string, fn func(session string) error) error {
	session, err := c.EnsureSession(ctx)
	if err != nil {
		return err
	}

	err = fn(session)
	if err == nil || !errors.Is(err, ErrSessionExpired) {
		return err
	}

	c.invalidate(session)
	c.log.Infow("session expired, re-authenticating", "op", label)

	session, err = c.EnsureSession(ctx)
	if err != nil {
		return err
	}
	return fn(session)
}

// GroupContents reads the full group→thermostat structure in one call,
// recovering transparently from a stale session.
func (c *Client) GroupContents(ctx context.Context) ([]Group, error) {
	const op = "GroupContents"

	var groups []Group
	err := c.withRetryOnExpiry(ctx, op, func(session string) error {
		u := fmt.Sprintf("%s/api/Group/GroupContents?sessionid=%s&apiKey=%s",
			c.cfg.BaseURL, url.QueryEscape(session), url.QueryEscape(c.cfg.APIKey))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("build %s request: %w", op, err)
		}

		var res groupContentsResponse
		if err := c.doJSON(op, req, &res); err != nil {
			return err
		}
		if res.ErrorCode != 0 {
			return &BusinessError{Op: op, Code: res.ErrorCode}
		}
		groups = res.GroupContents
		return nil
	})
	return groups, err
}

// UpdateThermostat writes one device-update payload, recovering transparently
// from a stale session. A vendor-reported non-zero error code is a business
// error; the caller decides what to do with it.
func (c *Client) UpdateThermostat(ctx context.Context, payload SetThermostat) error {
	const op = "UpdateThermostat"

	return c.withRetryOnExpiry(ctx, op, func(session string) error {
		body, err := json.Marshal(updateThermostatRequest{
			APIKey:        c.cfg.APIKey,
			SetThermostat: payload,
		})
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}

		u := fmt.Sprintf("%s/api/Group/UpdateThermostat?sessionid=%s", c.cfg.BaseURL, url.QueryEscape(session))
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("build %s request: %w", op, err)
		}
		req.Header.Set("Content-Type", "application/json")

		var res updateThermostatResponse
		if err := c.doJSON(op, req, &res); err != nil {
			return err
		}
		if res.ErrorCode != 0 {
			return &BusinessError{Op: op, Code: res.ErrorCode}
		}
		return nil
	})
}

// doJSON executes an authenticated request and classifies the failure modes:
// transport errors and 5xx are communication failures, 401/403 is expiry.
func (c *Client) doJSON(op string, req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &CommunicationError{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrSessionExpired
	case resp.StatusCode >= 500:
		return &CommunicationError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode != http.StatusOK:
		return &CommunicationError{Op: op, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &CommunicationError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
