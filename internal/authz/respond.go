package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/httpclient"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
)

// preparer produces and persists the local proof artifact for one challenge
// type, then notifies the server when the artifact is new or changed.
type preparer func(ctx context.Context, cha *model.Challenge, a *model.Authorization, ac *acme.Client, store storage.Storage, keySpec cryptoutil.KeySpec) error

// preparers is the closed table of compiled-in challenge types. A future
// dns-01 adds an entry.
var preparers = []struct {
	name    string
	prepare preparer
}{
	{TypeHTTP01, prepareHTTP01},
	{TypeTLSALPN01, prepareTLSALPN01},
	{TypeTLSSNI01, prepareTLSSNI01},
}

// Respond selects a challenge from the authorization's offer according to
// the caller's preference order and runs the matching preparer.
func Respond(ctx context.Context, ac *acme.Client, store storage.Storage, a *model.Authorization, preferred []string, keySpec cryptoutil.KeySpec) error {
	cha, err := selectChallenge(a, preferred)
	if err != nil {
		return err
	}

	for _, p := range preparers {
		if strings.EqualFold(p.name, cha.Type) {
			return p.prepare(ctx, cha, a, ac, store, keySpec)
		}
	}

	logger.Error("no implementation for challenge type",
		zap.String("domain", a.Domain), zap.String("type", cha.Type))
	return acme.NewError(acme.KindNotImplemented, a.URL,
		fmt.Sprintf("no implementation found for challenge %q", cha.Type))
}

// setupKeyAuthz derives the key authorization "token.thumbprint" for the
// challenge. A stale value carried by the server is discarded. Returns true
// when the challenge value was (re)set and the server needs to be told.
func setupKeyAuthz(cha *model.Challenge, ac *acme.Client) (bool, error) {
	thumb, err := acme.Thumbprint(ac.AccountKey)
	if err != nil {
		return false, err
	}
	keyAuthz := cha.Token + "." + thumb
	if cha.KeyAuthz != "" && cha.KeyAuthz != keyAuthz {
		// Did the account change key?
		cha.KeyAuthz = ""
	}
	if cha.KeyAuthz == "" {
		cha.KeyAuthz = keyAuthz
		return true, nil
	}
	return false, nil
}

// challengeResponse is the body POSTed to the challenge URI. ACMEv1 wants
// the resource marker; the key authorization rides along when set.
type challengeResponse struct {
	Resource string `json:"resource,omitempty"`
	KeyAuthz string `json:"keyAuthorization,omitempty"`
}

// notifyServer tells the server the proof artifact is in place so it may
// (re)try verification. Must run only after the artifact is persisted.
func notifyServer(ctx context.Context, ac *acme.Client, cha *model.Challenge, a *model.Authorization) error {
	payload := challengeResponse{KeyAuthz: cha.KeyAuthz}
	if ac.Version <= 1 {
		payload.Resource = "challenge"
	}
	return ac.Post(ctx, cha.URI, payload, acme.Handler{
		JSON: func(_ http.Header, _ json.RawMessage) error {
			logger.Info("updated challenge", zap.String("domain", a.Domain), zap.String("url", cha.URI))
			return nil
		},
		Raw: func(_ *httpclient.Response) error {
			logger.Info("updated challenge", zap.String("domain", a.Domain), zap.String("url", cha.URI))
			return nil
		},
	})
}
