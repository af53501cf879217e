package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// init initializes the package logger.
func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize zap logger: %v", err))
	}
	logger = l.With(zap.String("package", "storage"))
}

// ErrNotFound is returned by Load when no blob exists under the given key.
var ErrNotFound = errors.New("storage: object not found")

// Kind describes the content class of a stored blob. It selects the file
// permissions of the filesystem backend and lets callers keep key material
// apart from public artifacts.
type Kind int

const (
	KindText Kind = iota // UTF-8 text, e.g. a key authorization
	KindKey              // PEM private key, stored with restricted permissions
	KindCert             // PEM certificate
)

func (k Kind) String() string {
	switch k {
	case KindKey:
		return "key"
	case KindCert:
		return "cert"
	default:
		return "text"
	}
}

// Well-known blob groups.
const (
	GroupChallenges = "challenges"
	GroupAccounts   = "accounts"
)

// Storage is a keyed blob store. Blobs are addressed by (group, dir, name);
// the store serializes its own writes and the content under a key is
// replaced atomically from the caller's point of view.
type Storage interface {
	Load(ctx context.Context, group, dir, name string, kind Kind) ([]byte, error)
	Save(ctx context.Context, group, dir, name string, kind Kind, value []byte) error
	Close() error
}

// NewStorage is the factory function.
func NewStorage(storageType string, dataDir string, dbHost string, dbUser string, dbPassword string, dbName string, dbPort int, dbSSLMode string) (Storage, error) {
	switch strings.ToLower(storageType) {
	case "file":
		return NewFileStorage(dataDir)
	case "postgres":
		return NewPostgreSQLStorage(dbHost, dbUser, dbPassword, dbName, dbPort, dbSSLMode)
	default:
		logger.Error("Invalid storage type specified", zap.String("storage_type", storageType))
		return nil, fmt.Errorf("storage: invalid storage type: %s", storageType)
	}
}

// --- Filesystem Implementation ---

// FileStorage keeps blobs as files laid out dataDir/group/dir/name.
type FileStorage struct {
	root string
}

// Ensure FileStorage implements Storage (compile-time check).
var _ Storage = (*FileStorage)(nil)

// NewFileStorage creates a FileStorage rooted at dataDir, creating the
// directory when missing.
func NewFileStorage(dataDir string) (*FileStorage, error) {
	if dataDir == "" {
		return nil, errors.New("storage: data directory must not be empty")
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		logger.Error("Failed to create data directory", zap.Error(err), zap.String("data_dir", dataDir))
		return nil, fmt.Errorf("storage: failed to create data directory %s: %w", dataDir, err)
	}
	logger.Info("FileStorage initialized", zap.String("data_dir", dataDir))
	return &FileStorage{root: dataDir}, nil
}

func (s *FileStorage) path(group, dir, name string) (string, error) {
	for _, part := range []string{group, dir, name} {
		if part == "" || strings.ContainsAny(part, "/\\") || part == "." || part == ".." {
			return "", fmt.Errorf("storage: invalid key component %q", part)
		}
	}
	return filepath.Join(s.root, group, dir, name), nil
}

func (s *FileStorage) Load(ctx context.Context, group, dir, name string, kind Kind) ([]byte, error) {
	p, err := s.path(group, dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		logger.Error("Failed to read blob", zap.Error(err), zap.String("path", p))
		return nil, fmt.Errorf("storage: failed to read %s: %w", p, err)
	}
	return data, nil
}

func (s *FileStorage) Save(ctx context.Context, group, dir, name string, kind Kind, value []byte) error {
	p, err := s.path(group, dir, name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		logger.Error("Failed to create blob directory", zap.Error(err), zap.String("path", p))
		return fmt.Errorf("storage: failed to create directory for %s: %w", p, err)
	}
	perm := os.FileMode(0644)
	if kind == KindKey {
		perm = 0600
	}
	// Write to a temp file in the same directory, then rename over the target.
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+name+".*")
	if err != nil {
		return fmt.Errorf("storage: failed to create temp file for %s: %w", p, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to write %s: %w", p, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to set permissions on %s: %w", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("storage: failed to close temp file for %s: %w", p, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		logger.Error("Failed to save blob", zap.Error(err), zap.String("path", p))
		return fmt.Errorf("storage: failed to save %s: %w", p, err)
	}
	logger.Debug("Saved blob", zap.String("path", p), zap.String("kind", kind.String()), zap.Int("bytes", len(value)))
	return nil
}

func (s *FileStorage) Close() error {
	return nil
}
