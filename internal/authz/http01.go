package authz

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
)

const fileHTTP01 = "http-01"

// prepareHTTP01 persists the key authorization as a text artifact under the
// domain, for the HTTP responder to serve at
// /.well-known/acme-challenge/<token>.
func prepareHTTP01(ctx context.Context, cha *model.Challenge, a *model.Authorization, ac *acme.Client, store storage.Storage, keySpec cryptoutil.KeySpec) error {
	notify, err := setupKeyAuthz(cha, ac)
	if err != nil {
		return err
	}

	data, err := store.Load(ctx, storage.GroupChallenges, a.Domain, fileHTTP01, storage.KindText)
	switch {
	case err == nil && string(data) == cha.KeyAuthz:
		// artifact is current
	case err == nil || errors.Is(err, storage.ErrNotFound):
		if err := store.Save(ctx, storage.GroupChallenges, a.Domain, fileHTTP01, storage.KindText, []byte(cha.KeyAuthz)); err != nil {
			return err
		}
		logger.Debug("http-01 artifact written", zap.String("domain", a.Domain))
		notify = true
	default:
		return err
	}
	a.Dir = a.Domain

	if notify {
		return notifyServer(ctx, ac, cha, a)
	}
	return nil
}
