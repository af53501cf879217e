package authz

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
)

const (
	fileTLSALPN01Key  = "tls-alpn-01.key"
	fileTLSALPN01Cert = "tls-alpn-01.crt"

	challengeCertValidity = 7 * 24 * time.Hour
)

// prepareTLSALPN01 persists a self-signed certificate for the domain whose
// critical acmeIdentifier extension carries the SHA-256 digest of the key
// authorization. The TLS responder answers SNI == domain with ALPN protocol
// "acme-tls/1" using this certificate.
func prepareTLSALPN01(ctx context.Context, cha *model.Challenge, a *model.Authorization, ac *acme.Client, store storage.Storage, keySpec cryptoutil.KeySpec) error {
	notify, err := setupKeyAuthz(cha, ac)
	if err != nil {
		return err
	}

	stale, err := storedCertStale(ctx, store, a.Domain, fileTLSALPN01Cert, a.Domain)
	if err != nil {
		return err
	}
	if stale {
		key, err := cryptoutil.GenerateKey(keySpec)
		if err != nil {
			logger.Error("create tls-alpn-01 challenge key", zap.Error(err), zap.String("domain", a.Domain))
			return err
		}
		cert, err := cryptoutil.SelfSignedALPN(a.Domain, cha.KeyAuthz, key, challengeCertValidity)
		if err != nil {
			logger.Error("create tls-alpn-01 cert", zap.Error(err), zap.String("domain", a.Domain))
			return err
		}

		keyPEM, err := cryptoutil.EncodePrivateKey(key)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, storage.GroupChallenges, a.Domain, fileTLSALPN01Key, storage.KindKey, keyPEM); err != nil {
			return err
		}
		if err := store.Save(ctx, storage.GroupChallenges, a.Domain, fileTLSALPN01Cert, storage.KindCert, cryptoutil.EncodeCertificate(cert)); err != nil {
			return err
		}
		logger.Debug("tls-alpn-01 artifacts written", zap.String("domain", a.Domain))
		notify = true
	}
	a.Dir = a.Domain

	if notify {
		return notifyServer(ctx, ac, cha, a)
	}
	return nil
}

// storedCertStale reports whether the certificate under (challenges, dir,
// name) is missing, unparseable, or no longer covers domain.
func storedCertStale(ctx context.Context, store storage.Storage, dir, name, domain string) (bool, error) {
	certPEM, err := store.Load(ctx, storage.GroupChallenges, dir, name, storage.KindCert)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	cert, err := cryptoutil.ParseCertificate(certPEM)
	if err != nil || !cryptoutil.CoversDomain(cert, domain) {
		return true, nil
	}
	return false, nil
}
