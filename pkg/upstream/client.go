package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admission-api/pkg/middleware/requestid"
)

// ErrNotFound is returned when the collaborator answers 404.
var ErrNotFound = errors.New("upstream resource not found")

// Envelope is the response contract shared by sibling services.
type Envelope struct {
	StatusCode int             `json:"statusCode"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
}

// StatusError reports a non-success collaborator response.
type StatusError struct {
	URL        string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d: %s", e.URL, e.StatusCode, e.Message)
}

// Config tunes the HTTP client and its retry policy.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Logger         *zap.Logger
	HTTPClient     *http.Client
}

// Client performs JSON GET lookups with bounded exponential backoff on transient failures.
type Client struct {
	baseURL        string
	http           *http.Client
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *zap.Logger
}

// NewClient builds a collaborator client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 200 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		http:           httpClient,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         cfg.Logger,
	}
}

// GetJSON fetches path and decodes the envelope's data into dest.
// The bearer token stored in ctx, if any, is forwarded.
func (c *Client) GetJSON(ctx context.Context, path string, dest interface{}) error {
	url := c.baseURL + "/" + strings.TrimLeft(path, "/")

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.MaxInterval = c.maxBackoff

	attempt := 0
	env, err := backoff.Retry(ctx, func() (*Envelope, error) {
		attempt++
		return c.do(ctx, url)
	},
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries)),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.Sugar().Warnw("upstream call failed, retrying", "url", url, "attempt", attempt, "next_in", next, "error", err)
		}),
	)
	if err != nil {
		return err
	}
	if dest == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Data, dest); err != nil {
		return fmt.Errorf("decode upstream data from %s: %w", url, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, url string) (*Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build upstream request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if token := TokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if id := requestid.FromContext(ctx); id != "" {
		req.Header.Set(requestid.Header, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}

	var env Envelope
	if len(body) > 0 {
		if err := json.Unmarshal(body, &env); err != nil {
			if resp.StatusCode >= http.StatusInternalServerError {
				return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Message: string(body)}
			}
			return nil, backoff.Permanent(fmt.Errorf("decode envelope from %s: %w", url, err))
		}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Message: env.Message}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, backoff.Permanent(&StatusError{URL: url, StatusCode: resp.StatusCode, Message: env.Message})
	}
	return &env, nil
}
