package acme

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/httpclient"
	"github.com/blockadesystems/certproof/internal/model"
)

// Handler routes a successful response. JSON is preferred when the body
// parses as JSON; Raw is the fallback. At least one must be set.
type Handler struct {
	JSON func(header http.Header, body json.RawMessage) error
	Raw  func(res *httpclient.Response) error
}

// Post sends a signed ACME request. The payload is marshaled to compact
// JSON, wrapped in a JWS envelope carrying the current replay nonce, and
// dispatched; the response refills the nonce slot before being routed to the
// handler. The directory is fetched lazily before the first signed request.
func (c *Client) Post(ctx context.Context, url string, payload interface{}, h Handler) error {
	if h.JSON == nil && h.Raw == nil {
		return NewError(KindInvalid, url, "no response handler supplied")
	}
	if err := c.setup(ctx); err != nil {
		return err
	}
	if c.nonce == "" {
		if err := c.newNonce(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return NewError(KindInvalid, url, "unmarshalable request payload")
	}

	// The nonce is single-use: consume it before dispatch, refill from the
	// response.
	nonce := c.nonce
	c.nonce = ""

	signed, err := signPayload(body, c.AccountKey, nonce, url, c.Version)
	if err != nil {
		return err
	}

	contentType := "application/json"
	if c.Version >= 2 {
		contentType = "application/jose+json"
	}

	logger.Debug("acme POST", zap.String("url", url))
	res, err := c.HTTP.Post(ctx, url, nil, contentType, signed)
	if err != nil {
		return err
	}
	c.absorbNonce(res)
	return c.route(url, res, h)
}

// Get fetches an unauthenticated resource and routes the response like Post.
func (c *Client) Get(ctx context.Context, url string, h Handler) error {
	if h.JSON == nil && h.Raw == nil {
		return NewError(KindInvalid, url, "no response handler supplied")
	}
	logger.Debug("acme GET", zap.String("url", url))
	res, err := c.HTTP.Get(ctx, url, nil)
	if err != nil {
		return err
	}
	c.absorbNonce(res)
	return c.route(url, res, h)
}

// GetJSON fetches a resource and returns its JSON body.
func (c *Client) GetJSON(ctx context.Context, url string) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.Get(ctx, url, Handler{
		JSON: func(_ http.Header, body json.RawMessage) error {
			out = append(json.RawMessage(nil), body...)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// route dispatches a 2xx response to the handler and classifies everything
// else.
func (c *Client) route(url string, res *httpclient.Response, h Handler) error {
	if !res.Succeeded() {
		return c.problemError(url, res)
	}

	if h.JSON != nil && len(res.Body) > 0 && json.Valid(res.Body) {
		return h.JSON(res.Header, res.Body)
	}
	if h.Raw != nil {
		return h.Raw(res)
	}

	logger.Error("unprocessable response",
		zap.String("url", url),
		zap.Int("status", res.StatusCode),
		zap.String("content_type", res.Header.Get("Content-Type")))
	return NewError(KindInvalid, url, "response was consumed by no handler")
}

// problemError turns a non-2xx response into a classified error. Problem
// documents (RFC 7807) take precedence over the bare HTTP status.
func (c *Client) problemError(url string, res *httpclient.Response) error {
	ctype := res.Header.Get("Content-Type")
	if strings.HasPrefix(ctype, "application/problem+json") {
		var problem model.ProblemDetails
		if err := json.Unmarshal(res.Body, &problem); err == nil {
			kind := ClassifyProblem(problem.Type)
			logger.Warn("acme problem",
				zap.String("url", url),
				zap.String("problem_type", problem.Type),
				zap.String("detail", problem.Detail),
				zap.String("kind", kind.String()))
			return &Error{Kind: kind, ProblemType: problem.Type, Detail: problem.Detail, URL: url}
		}
	}

	var kind Kind
	switch res.StatusCode {
	case http.StatusBadRequest:
		kind = KindInvalid
	case http.StatusForbidden:
		kind = KindAccessDenied
	case http.StatusNotFound:
		kind = KindNotFound
	default:
		logger.Warn("acme problem unknown", zap.String("url", url), zap.Int("status", res.StatusCode))
		kind = KindGeneral
	}
	return NewError(kind, url, http.StatusText(res.StatusCode))
}
