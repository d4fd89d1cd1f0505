// Package sapi is a client for the D-Wave solver API: it lists solvers,
// submits Ising problems in the qp wire format and polls for answers.
package sapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/copyleftdev/fmchain/internal/errors"
)

const component = "sapi"

// Options configures a Client.
type Options struct {
	// Endpoint is the base URL of the API, e.g.
	// https://na-west-1.cloud.dwavesys.com/sapi/v2/.
	Endpoint string
	// Token authenticates every request.
	Token string
	// Proxy, when set, routes requests through this URL.
	Proxy string
	// RequestTimeout bounds a single HTTP exchange. Defaults to 60s.
	RequestTimeout time.Duration
	// PollInterval is the first delay between status polls. Defaults to 1s.
	PollInterval time.Duration
	// PollMaxInterval caps the poll backoff. Defaults to 30s.
	PollMaxInterval time.Duration
	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
	// Logger receives request diagnostics. Defaults to a no-op logger.
	Logger *zap.Logger
}

// Client talks to one solver API endpoint.
type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	backoff backoff
	logger  *zap.Logger
}

// NewClient validates opts and builds a Client.
func NewClient(opts Options) (*Client, error) {
	if opts.Token == "" {
		return nil, apperrors.New("an API token is required").
			WithComponent(component).WithOperation("NewClient").WithKind(apperrors.KindInvalid)
	}
	endpoint := opts.Endpoint
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	base, err := url.Parse(endpoint)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperrors.Errorf("invalid endpoint %q", opts.Endpoint).
			WithComponent(component).WithOperation("NewClient").WithKind(apperrors.KindInvalid)
	}

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.PollMaxInterval < opts.PollInterval {
		opts.PollMaxInterval = max(30*time.Second, opts.PollInterval)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if opts.Proxy != "" {
			proxy, err := url.Parse(opts.Proxy)
			if err != nil {
				return nil, apperrors.Wrap(err, "invalid proxy").
					WithComponent(component).WithOperation("NewClient").WithKind(apperrors.KindInvalid)
			}
			transport.Proxy = http.ProxyURL(proxy)
		}
		hc = &http.Client{Timeout: opts.RequestTimeout, Transport: transport}
	}

	return &Client{
		base:    base,
		token:   opts.Token,
		http:    hc,
		backoff: backoff{initial: opts.PollInterval, max: opts.PollMaxInterval},
		logger:  opts.Logger.Named(component).With(zap.String("endpoint", base.Host)),
	}, nil
}

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("solver API returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("solver API returned %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the request may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// do sends a request relative to the base URL and decodes a JSON response
// into out when out is non-nil.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	ref, err := url.Parse(path)
	if err != nil {
		return err
	}
	target := c.base.ResolveReference(ref)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("X-Auth-Token", c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	c.logger.Debug("solver API request",
		zap.String("method", method),
		zap.String("path", target.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Code    int    `json:"error_code"`
			Message string `json:"error_msg"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
			apiErr.Message = payload.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", target.Path, err)
	}
	return nil
}

// classify wraps err with the component, op and a Kind derived from the
// failure.
func classify(err error, op, msg string) error {
	if err == nil {
		return nil
	}
	kind := apperrors.KindTransport
	var apiErr *APIError
	switch {
	case apperrors.As(err, &apiErr):
		kind = apperrors.KindRemote
		if apiErr.StatusCode == http.StatusNotFound {
			kind = apperrors.KindUnavailable
		}
	case apperrors.Is(err, context.Canceled), apperrors.Is(err, context.DeadlineExceeded):
		kind = apperrors.KindUnknown
	}
	return apperrors.Wrap(err, msg).WithComponent(component).WithOperation(op).WithKind(kind)
}

// backoff doubles the delay after every attempt up to max.
type backoff struct {
	initial time.Duration
	max     time.Duration
}

// delay returns the wait before the given attempt, counted from 1.
func (b backoff) delay(attempt int) time.Duration {
	d := b.initial
	for i := 1; i < attempt && d < b.max; i++ {
		d *= 2
	}
	return min(d, b.max)
}
