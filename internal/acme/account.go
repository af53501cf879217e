package acme

import (
	"context"
	"crypto"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/storage"
)

const accountKeyFile = "account.key"

// LoadOrCreateAccountKey loads the account key from the store, generating
// and saving a fresh RSA key on first run.
func LoadOrCreateAccountKey(ctx context.Context, store storage.Storage, bits int) (crypto.Signer, error) {
	pemBytes, err := store.Load(ctx, storage.GroupAccounts, "default", accountKeyFile, storage.KindKey)
	if err == nil {
		key, err := cryptoutil.ParsePrivateKey(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("acme: failed to parse stored account key: %w", err)
		}
		logger.Info("account key loaded from storage")
		return key, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("acme: failed to load account key: %w", err)
	}

	logger.Info("account key not found in storage, generating new one", zap.Int("bits", bits))
	key, err := cryptoutil.GenerateKey(cryptoutil.KeySpec{Type: "rsa", Bits: bits})
	if err != nil {
		return nil, err
	}
	pemBytes, err = cryptoutil.EncodePrivateKey(key)
	if err != nil {
		return nil, err
	}
	if err := store.Save(ctx, storage.GroupAccounts, "default", accountKeyFile, storage.KindKey, pemBytes); err != nil {
		return nil, fmt.Errorf("acme: failed to save generated account key: %w", err)
	}
	logger.Info("new account key generated and saved")
	return key, nil
}
