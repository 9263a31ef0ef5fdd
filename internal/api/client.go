package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"practicum/pkg/interfaces"
)

const maxResponseBytes = 8 << 20

// Options configures a Client.
type Options struct {
	AuthURL    string
	MainURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the auth and main REST services.
// ARCHITECTURAL DISCOVERY: The token source is attached after construction
// because the session manager itself needs the client for login and refresh
type Client struct {
	authURL string
	mainURL string
	http    *http.Client
	logger  *slog.Logger

	mu     sync.RWMutex
	tokens interfaces.TokenSource
}

var _ interfaces.AuthBackend = (*Client)(nil)

// NewClient creates a client for the two base URLs.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		authURL: strings.TrimRight(opts.AuthURL, "/"),
		mainURL: strings.TrimRight(opts.MainURL, "/"),
		http:    httpClient,
		logger:  logger,
	}
}

// SetTokenSource installs the provider of bearer tokens for authorized calls.
func (c *Client) SetTokenSource(ts interfaces.TokenSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = ts
}

func (c *Client) tokenSource() interfaces.TokenSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

// request describes one call; body is marshalled once so it can be resent.
type request struct {
	method     string
	base       string
	path       string
	query      url.Values
	body       any
	authorized bool
	bearer     string // explicit token for unauthorized calls such as refresh
}

// do sends the request and decodes a 2xx body into out.
// FUNCTIONAL DISCOVERY: A 401 on an authorized call triggers exactly one
// renewal and one retry; whatever the retry returns is final, including another 401
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	token := req.bearer
	var ts interfaces.TokenSource
	if req.authorized {
		ts = c.tokenSource()
		if ts == nil {
			return ErrNoTokenSource
		}
		token = ts.AccessToken()
	}

	status, body, requestID, err := c.send(ctx, req, payload, token)
	if err != nil {
		return err
	}

	if status == http.StatusUnauthorized && req.authorized {
		c.logger.Debug("access token rejected, renewing", "path", req.path, "request_id", requestID)
		newToken, renewErr := ts.RenewAccessToken(ctx)
		if renewErr != nil {
			c.logger.Info("token renewal failed, session ended", "error", renewErr)
			return fmt.Errorf("%w: %v", ErrSessionExpired, renewErr)
		}
		status, body, requestID, err = c.send(ctx, req, payload, newToken)
		if err != nil {
			return err
		}
	}

	if status < 200 || status > 299 {
		return decodeError(status, body, requestID)
	}

	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode %s %s response: %w", req.method, req.path, err)
		}
	}
	return nil
}

// send performs a single HTTP round trip.
func (c *Client) send(ctx context.Context, req request, payload []byte, token string) (int, []byte, string, error) {
	target := req.base + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, reader)
	if err != nil {
		return 0, nil, "", fmt.Errorf("failed to build request: %w", err)
	}

	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, requestID, ctxErr
		}
		return 0, nil, requestID, fmt.Errorf("%w: %s %s: %v", ErrNetwork, req.method, req.path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, requestID, fmt.Errorf("%w: reading %s response: %v", ErrNetwork, req.path, err)
	}

	c.logger.Debug("api request",
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"request_id", requestID)

	return resp.StatusCode, body, requestID, nil
}

func decodeError(status int, body []byte, requestID string) error {
	apiErr := &APIError{StatusCode: status, RequestID: requestID}
	var envelope struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Message = envelope.Msg
	}
	return apiErr
}

// IsSessionExpired reports whether err ended the session.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}
