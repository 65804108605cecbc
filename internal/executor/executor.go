package executor

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/studiowebux/halcrud/internal/hal"
	"github.com/studiowebux/halcrud/internal/logging"
	"github.com/studiowebux/halcrud/internal/oauth"
	"github.com/studiowebux/halcrud/internal/types"
)

// DefaultTimeout applies when the API config does not set one
const DefaultTimeout = 30 * time.Second

// Header names used by the conditional-write protocol
const (
	HeaderIfMatch   = "If-Match"
	HeaderETag      = "ETag"
	HeaderRequestID = "X-Request-Id"
)

// Options configures a Client
type Options struct {
	API    types.APIConfig
	Logger *slog.Logger
	// HTTPClient replaces the client built from API.TLS and API.Timeout
	HTTPClient *http.Client
}

// Client issues HAL-aware requests against one API
type Client struct {
	base    *url.URL
	headers map[string]string
	http    *http.Client
	logger  *slog.Logger
}

// Response is a completed request with a 2xx status
type Response struct {
	Method     string
	URL        string
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	// Data is the decoded JSON body, nil when the body is empty or not JSON
	Data     interface{}
	Duration time.Duration
}

// ETag returns the version tag of the response, "" when the server sent none
func (r *Response) ETag() string {
	if r == nil {
		return ""
	}
	return r.Header.Get(HeaderETag)
}

// Payload returns what a debug view should show for this response
func (r *Response) Payload() interface{} {
	if r == nil {
		return nil
	}
	if r.Data != nil {
		return r.Data
	}
	if len(r.Body) > 0 {
		return string(r.Body)
	}
	return nil
}

// Fresh is the current representation of an entity and its version tag
type Fresh struct {
	Entity hal.Entity
	ETag   string
}

// New creates a Client. The context is only used to fetch OAuth tokens.
func New(ctx context.Context, opts Options) (*Client, error) {
	c := &Client{
		headers: opts.API.Headers,
		logger:  opts.Logger,
	}
	if c.logger == nil {
		c.logger = logging.Nop()
	}

	if opts.API.BaseURL != "" {
		base, err := url.Parse(opts.API.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base URL %q: %w", opts.API.BaseURL, err)
		}
		c.base = base
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		built, err := buildHTTPClient(opts.API.TLS, opts.API.Timeout.Std())
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
		httpClient = built
	}

	if opts.API.OAuth != nil {
		authed, err := oauth.Client(ctx, opts.API.OAuth, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to configure OAuth: %w", err)
		}
		httpClient = authed
	}

	c.http = httpClient
	return c, nil
}

// Resolve turns a possibly relative address into an absolute URL
func (c *Client) Resolve(address string) (string, error) {
	ref, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", address, err)
	}
	if c.base == nil || ref.IsAbs() {
		return ref.String(), nil
	}
	return c.base.ResolveReference(ref).String(), nil
}

// Get fetches address
func (c *Client) Get(ctx context.Context, address string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, address, nil, nil)
}

// FetchFresh fetches the current representation of an entity, bypassing caches.
// It returns (nil, nil) when the server reports 404.
func (c *Client) FetchFresh(ctx context.Context, address string) (*Fresh, error) {
	resp, err := c.Do(ctx, http.MethodGet, address, nil, map[string]string{
		"Cache-Control": "no-cache",
		"Pragma":        "no-cache",
	})
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}

	return &Fresh{
		Entity: hal.AsEntity(resp.Data),
		ETag:   resp.ETag(),
	}, nil
}

// Post sends body as JSON to address
func (c *Client) Post(ctx context.Context, address string, body interface{}) (*Response, error) {
	return c.Do(ctx, http.MethodPost, address, body, nil)
}

// WriteWithFallback sends a PATCH and retries as PUT when the server answers 405.
// Both attempts carry the same body and headers.
func (c *Client) WriteWithFallback(ctx context.Context, address string, body interface{}, headers map[string]string) (*Response, error) {
	resp, err := c.Do(ctx, http.MethodPatch, address, body, headers)
	if err == nil || !IsMethodNotAllowed(err) {
		return resp, err
	}
	c.logger.Debug("PATCH not allowed, retrying as PUT", "url", address)
	return c.Do(ctx, http.MethodPut, address, body, headers)
}

// Delete removes the entity at address
func (c *Client) Delete(ctx context.Context, address string, headers map[string]string) (*Response, error) {
	return c.Do(ctx, http.MethodDelete, address, nil, headers)
}

// Do performs one request. A non-nil body is sent as JSON.
// Any status outside 2xx is returned as an *APIError.
func (c *Client) Do(ctx context.Context, method, address string, body interface{}, headers map[string]string) (*Response, error) {
	startTime := time.Now()

	target, err := c.Resolve(address)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	for key, value := range c.headers {
		httpReq.Header.Set(key, value)
	}
	httpReq.Header.Set("Accept", hal.MediaType)
	httpReq.Header.Set(HeaderRequestID, requestID)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug("request failed", "method", method, "url", target, "request_id", requestID, "error", err)
		return nil, fmt.Errorf("failed to execute %s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	duration := time.Since(startTime)
	c.logger.Debug("request",
		"method", method,
		"url", target,
		"status", resp.StatusCode,
		"duration", FormatDuration(duration.Milliseconds()),
		"size", FormatSize(len(bodyBytes)),
		"request_id", requestID,
	)

	data, decodeErr := hal.Decode(bodyBytes)

	if !IsSuccessStatus(resp.StatusCode) {
		apiErr := &APIError{
			Method:     method,
			URL:        target,
			Status:     resp.StatusCode,
			StatusText: resp.Status,
			Body:       bodyBytes,
			Data:       data,
		}
		if decodeErr != nil {
			apiErr.Data = strings.TrimSpace(string(bodyBytes))
		}
		return nil, apiErr
	}

	result := &Response{
		Method:     method,
		URL:        target,
		Status:     resp.StatusCode,
		StatusText: resp.Status,
		Header:     resp.Header,
		Body:       bodyBytes,
		Duration:   duration,
	}
	if decodeErr == nil {
		result.Data = data
	}
	return result, nil
}

// buildHTTPClient creates an HTTP client with optional TLS/mTLS configuration
func buildHTTPClient(tlsConfig *types.TLSConfig, timeout time.Duration) (*http.Client, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	if tlsConfig != nil {
		tlsCfg := &tls.Config{
			InsecureSkipVerify: tlsConfig.InsecureSkipVerify,
		}

		// Client certificate for mTLS
		if tlsConfig.CertFile != "" && tlsConfig.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(tlsConfig.CertFile, tlsConfig.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load client certificate: %w", err)
			}
			tlsCfg.Certificates = []tls.Certificate{cert}
		}

		if tlsConfig.CAFile != "" {
			caCert, err := os.ReadFile(tlsConfig.CAFile)
			if err != nil {
				return nil, fmt.Errorf("failed to read CA certificate: %w", err)
			}
			caCertPool := x509.NewCertPool()
			if !caCertPool.AppendCertsFromPEM(caCert) {
				return nil, fmt.Errorf("failed to parse CA certificate")
			}
			tlsCfg.RootCAs = caCertPool
		}

		transport.TLSClientConfig = tlsCfg
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}, nil
}

// FormatDuration formats duration in milliseconds to human-readable string
func FormatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	seconds := float64(ms) / 1000.0
	return fmt.Sprintf("%.2fs", seconds)
}

// FormatSize formats byte size to human-readable string
func FormatSize(bytes int) string {
	if bytes < 1024 {
		return fmt.Sprintf("%dB", bytes)
	}
	if bytes < 1024*1024 {
		return fmt.Sprintf("%.2fKB", float64(bytes)/1024.0)
	}
	return fmt.Sprintf("%.2fMB", float64(bytes)/(1024.0*1024.0))
}

// IsSuccessStatus returns true if status code is 2xx
func IsSuccessStatus(status int) bool {
	return status >= 200 && status < 300
}
