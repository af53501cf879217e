package authz

import (
	"context"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
)

const (
	fileTLSSNI01Key  = "tls-sni-01.key"
	fileTLSSNI01Cert = "tls-sni-01.crt"

	tlsSNI01DNSSuffix = ".acme.invalid"
)

// challengeDNS derives the tls-sni-01 hostname from the key authorization:
// the lowercase hex SHA-256 digest split in half and joined with a dot,
// under the fixed acme.invalid suffix.
func challengeDNS(keyAuthz string) string {
	hexDigest := cryptoutil.SHA256Hex([]byte(keyAuthz))
	return hexDigest[:32] + "." + hexDigest[32:] + tlsSNI01DNSSuffix
}

// prepareTLSSNI01 persists a self-signed certificate whose SAN is the
// derived challenge hostname. The TLS responder answers SNI == that hostname
// with this certificate. The artifact directory is keyed by the derived
// name, not the domain.
func prepareTLSSNI01(ctx context.Context, cha *model.Challenge, a *model.Authorization, ac *acme.Client, store storage.Storage, keySpec cryptoutil.KeySpec) error {
	notify, err := setupKeyAuthz(cha, ac)
	if err != nil {
		return err
	}
	dns := challengeDNS(cha.KeyAuthz)

	stale, err := storedCertStale(ctx, store, dns, fileTLSSNI01Cert, dns)
	if err != nil {
		return err
	}
	if stale {
		key, err := cryptoutil.GenerateKey(keySpec)
		if err != nil {
			logger.Error("create tls-sni-01 challenge key", zap.Error(err), zap.String("domain", a.Domain))
			return err
		}
		cert, err := cryptoutil.SelfSigned(a.Domain, []string{dns}, key, challengeCertValidity)
		if err != nil {
			logger.Error("create tls-sni-01 cert", zap.Error(err), zap.String("domain", a.Domain), zap.String("dns", dns))
			return err
		}

		keyPEM, err := cryptoutil.EncodePrivateKey(key)
		if err != nil {
			return err
		}
		if err := store.Save(ctx, storage.GroupChallenges, dns, fileTLSSNI01Key, storage.KindKey, keyPEM); err != nil {
			return err
		}
		if err := store.Save(ctx, storage.GroupChallenges, dns, fileTLSSNI01Cert, storage.KindCert, cryptoutil.EncodeCertificate(cert)); err != nil {
			return err
		}
		logger.Debug("tls-sni-01 artifacts written", zap.String("domain", a.Domain), zap.String("dns", dns))
		notify = true
	}
	a.Dir = dns

	if notify {
		return notifyServer(ctx, ac, cha, a)
	}
	return nil
}
