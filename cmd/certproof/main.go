package main

import (
	"context"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/authz"
	"github.com/blockadesystems/certproof/internal/config"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/httpclient"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
)

const (
	pollInterval = 5 * time.Second
	pollAttempts = 24
)

var logger *zap.Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	logger = l.With(zap.String("package", "main"))
}

func main() {
	if len(os.Args) != 2 {
		logger.Fatal("usage: certproof <domain>")
	}
	domain := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger.Info("certproof starting...", zap.String("domain", domain), zap.String("directory", cfg.DirectoryURL))

	store, err := storage.NewStorage(
		cfg.StorageType,
		cfg.DataDir,
		cfg.DBHost,
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBName,
		cfg.DBPort,
		cfg.DBSSLMode,
	)
	if err != nil {
		logger.Fatal("failed to initialize storage", zap.Error(err), zap.String("storage_type", cfg.StorageType))
	}
	defer store.Close()

	ctx := context.Background()

	accountKey, err := acme.LoadOrCreateAccountKey(ctx, store, cfg.AccountKeyBits)
	if err != nil {
		logger.Fatal("failed to set up account key", zap.Error(err))
	}

	client, err := acme.NewClient(cfg.DirectoryURL, cfg.ACMEVersion, httpclient.New(cfg.HTTPTimeout), store, accountKey)
	if err != nil {
		logger.Fatal("failed to create ACME client", zap.Error(err))
	}

	a, err := authz.Register(ctx, client, domain)
	if err != nil {
		logger.Fatal("failed to register authorization", zap.Error(err), zap.String("domain", domain))
	}
	logger.Info("authorization registered", zap.String("domain", a.Domain), zap.String("url", a.URL))

	if err := authz.Update(ctx, client, a); err != nil {
		logger.Fatal("failed to fetch authorization state", zap.Error(err), zap.String("url", a.URL))
	}

	keySpec := cryptoutil.KeySpec{Type: cfg.ChallengeKeyType, Bits: cfg.ChallengeKeyBits}
	if err := authz.Respond(ctx, client, store, a, cfg.ChallengeTypes, keySpec); err != nil {
		logger.Fatal("failed to prepare challenge", zap.Error(err), zap.String("domain", a.Domain))
	}
	logger.Info("challenge prepared", zap.String("domain", a.Domain), zap.String("dir", a.Dir))

	for i := 0; i < pollAttempts; i++ {
		if err := authz.Update(ctx, client, a); err != nil {
			logger.Fatal("failed to poll authorization", zap.Error(err), zap.String("url", a.URL))
		}
		if a.State == model.AuthzStateValid || a.State == model.AuthzStateInvalid {
			break
		}
		time.Sleep(pollInterval)
	}

	switch a.State {
	case model.AuthzStateValid:
		logger.Info("authorization valid", zap.String("domain", a.Domain))
	case model.AuthzStateInvalid:
		logger.Fatal("authorization invalid", zap.String("domain", a.Domain), zap.String("url", a.URL))
	default:
		logger.Fatal("authorization still pending, giving up", zap.String("domain", a.Domain), zap.String("url", a.URL))
	}
}
