package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// maxResponseBytes caps how much of a response body is read. ACME documents
// are small; anything larger is a misbehaving server.
const maxResponseBytes = 1024 * 1024

var logger *zap.Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize zap logger: %v", err))
	}
	logger = l.With(zap.String("package", "httpclient"))
}

// Response is a fully buffered HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Succeeded reports whether the status code is in the 2xx range.
func (r *Response) Succeeded() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client issues blocking HTTP requests with buffered, size-capped responses.
// Each request carries a generated id correlating its log lines.
type Client struct {
	hc *http.Client
}

// New creates a Client with the given per-request timeout.
func New(timeout time.Duration) *Client {
	return &Client{
		hc: &http.Client{Timeout: timeout},
	}
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, url string, headers http.Header) (*Response, error) {
	return c.do(ctx, http.MethodGet, url, headers, "", nil)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, url string, headers http.Header) (*Response, error) {
	return c.do(ctx, http.MethodHead, url, headers, "", nil)
}

// Post issues a POST request with the given content type and body.
func (c *Client) Post(ctx context.Context, url string, headers http.Header, contentType string, body []byte) (*Response, error) {
	return c.do(ctx, http.MethodPost, url, headers, contentType, body)
}

func (c *Client) do(ctx context.Context, method, url string, headers http.Header, contentType string, body []byte) (*Response, error) {
	reqID := uuid.NewString()
	l := logger.With(zap.String("request_id", reqID), zap.String("method", method), zap.String("url", url))

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		l.Error("failed to build request", zap.Error(err))
		return nil, fmt.Errorf("httpclient: failed to build %s %s: %w", method, url, err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	l.Debug("sending request", zap.Int("body_bytes", len(body)))
	res, err := c.hc.Do(req)
	if err != nil {
		l.Error("request failed", zap.Error(err))
		return nil, fmt.Errorf("httpclient: %s %s: %w", method, url, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes+1))
	if err != nil {
		l.Error("failed to read response body", zap.Error(err))
		return nil, fmt.Errorf("httpclient: reading response of %s %s: %w", method, url, err)
	}
	if len(data) > maxResponseBytes {
		l.Error("response exceeds size limit", zap.Int("limit", maxResponseBytes))
		return nil, fmt.Errorf("httpclient: response of %s %s exceeds %d bytes", method, url, maxResponseBytes)
	}

	l.Debug("received response", zap.Int("status", res.StatusCode), zap.Int("body_bytes", len(data)))
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}
