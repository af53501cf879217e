package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/httpclient"
	"github.com/blockadesystems/certproof/internal/model"
)

var logger *zap.Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize zap logger: %v", err))
	}
	logger = l.With(zap.String("package", "authz"))
}

// newAuthzPayload is the new-authz request body.
type newAuthzPayload struct {
	Resource   string           `json:"resource"`
	Identifier model.Identifier `json:"identifier"`
}

// Register creates a new authorization resource for domain on the server.
// The returned record carries the server-assigned URL from the Location
// header and the response body as its resource snapshot.
func Register(ctx context.Context, ac *acme.Client, domain string) (*model.Authorization, error) {
	dir, err := ac.Directory(ctx)
	if err != nil {
		return nil, err
	}

	domain = strings.ToLower(domain)
	payload := newAuthzPayload{
		Resource:   "new-authz",
		Identifier: model.Identifier{Type: "dns", Value: domain},
	}

	var a *model.Authorization
	err = ac.Post(ctx, dir.NewAuthz, payload, acme.Handler{
		JSON: func(header http.Header, body json.RawMessage) error {
			location := header.Get("Location")
			if location == "" {
				logger.Warn("new authz, no location header", zap.String("domain", domain), zap.String("url", dir.NewAuthz))
				return acme.NewError(acme.KindInvalid, dir.NewAuthz, "server sent no Location header")
			}
			a = &model.Authorization{
				Domain:   domain,
				URL:      location,
				State:    model.AuthzStateUnknown,
				Resource: append(json.RawMessage(nil), body...),
			}
			logger.Debug("new authz created", zap.String("domain", domain), zap.String("location", location))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// authzResource is the subset of the authorization document Update reads.
type authzResource struct {
	Status     string           `json:"status"`
	Identifier model.Identifier `json:"identifier"`
}

// Update polls the authorization resource and refreshes domain, resource
// snapshot and state. The state transitions are server-driven; a terminal
// state is preserved on later polls.
func Update(ctx context.Context, ac *acme.Client, a *model.Authorization) error {
	body, err := ac.GetJSON(ctx, a.URL)
	if err != nil {
		return err
	}

	var res authzResource
	if err := json.Unmarshal(body, &res); err != nil {
		logger.Error("unable to parse authz response", zap.Error(err), zap.String("domain", a.Domain), zap.String("url", a.URL))
		return acme.NewError(acme.KindInvalid, a.URL, "unparseable authorization document")
	}

	if res.Identifier.Value != "" {
		a.Domain = strings.ToLower(res.Identifier.Value)
	}
	a.Resource = body

	prev := a.State
	switch res.Status {
	case "pending":
		a.State = model.AuthzStatePending
	case "valid":
		a.State = model.AuthzStateValid
	case "invalid":
		a.State = model.AuthzStateInvalid
	default:
		a.State = model.AuthzStateUnknown
	}
	if prev == model.AuthzStateValid || prev == model.AuthzStateInvalid {
		a.State = prev
	}

	switch a.State {
	case model.AuthzStatePending, model.AuthzStateValid:
		logger.Info("authz state", zap.String("state", a.State.String()), zap.String("domain", a.Domain), zap.String("url", a.URL))
	case model.AuthzStateInvalid:
		logger.Error("authz state", zap.String("state", a.State.String()), zap.String("domain", a.Domain), zap.String("url", a.URL))
	default:
		logger.Error("unable to understand authz response", zap.String("domain", a.Domain), zap.String("url", a.URL), zap.String("status", res.Status))
		return acme.NewError(acme.KindInvalid, a.URL, fmt.Sprintf("unrecognized authorization status %q", res.Status))
	}
	return nil
}

// Retrieve constructs an authorization record from its bare URL and fetches
// its current state.
func Retrieve(ctx context.Context, ac *acme.Client, url string) (*model.Authorization, error) {
	a := &model.Authorization{URL: url}
	if err := Update(ctx, ac, a); err != nil {
		return nil, err
	}
	return a, nil
}

// deactivatePayload asks the server to deactivate the authorization.
type deactivatePayload struct {
	Status string `json:"status"`
}

// Deactivate tells the server to drop the authorization. The in-memory
// record is left untouched; the caller is expected to discard it.
func Deactivate(ctx context.Context, ac *acme.Client, a *model.Authorization) error {
	logger.Debug("deactivate authz", zap.String("domain", a.Domain), zap.String("url", a.URL))
	return ac.Post(ctx, a.URL, deactivatePayload{Status: "deactivated"}, acme.Handler{
		JSON: func(_ http.Header, _ json.RawMessage) error {
			logger.Info("deactivated authz", zap.String("domain", a.Domain), zap.String("url", a.URL))
			return nil
		},
		Raw: func(_ *httpclient.Response) error {
			logger.Info("deactivated authz", zap.String("domain", a.Domain), zap.String("url", a.URL))
			return nil
		},
	})
}
