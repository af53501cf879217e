package acme

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/blockadesystems/certproof/internal/httpclient"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
)

var logger *zap.Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize zap logger: %v", err))
	}
	logger = l.With(zap.String("package", "acme"))
}

// Client is the shared context for all operations against one ACME
// authority: the directory endpoints, the single-slot replay nonce, the
// account key and the HTTP transport. Operations on the same Client must be
// serialized by the caller; the nonce cache holds exactly one value.
type Client struct {
	DirectoryURL string
	Version      int // protocol major version, 1 or 2
	HTTP         *httpclient.Client
	Store        storage.Storage
	AccountKey   crypto.Signer

	dir        model.Directory
	dirFetched bool
	nonce      string
}

// NewClient creates an ACME client context for the authority at directoryURL.
func NewClient(directoryURL string, version int, http *httpclient.Client, store storage.Storage, accountKey crypto.Signer) (*Client, error) {
	if directoryURL == "" {
		logger.Error("create ACME client without directory URL")
		return nil, NewError(KindInvalid, "", "directory URL must not be empty")
	}
	u, err := url.Parse(directoryURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		logger.Error("invalid ACME directory URL", zap.String("url", directoryURL))
		return nil, NewError(KindInvalid, directoryURL, "directory URL must be absolute")
	}
	if version == 0 {
		version = 1
	}
	return &Client{
		DirectoryURL: directoryURL,
		Version:      version,
		HTTP:         http,
		Store:        store,
		AccountKey:   accountKey,
	}, nil
}

// Directory returns the endpoint document, fetching it on first use.
func (c *Client) Directory(ctx context.Context) (model.Directory, error) {
	if err := c.setup(ctx); err != nil {
		return model.Directory{}, err
	}
	return c.dir, nil
}

// setup fetches the directory document. The document must name all four
// workflow endpoints or setup fails.
func (c *Client) setup(ctx context.Context) error {
	if c.dirFetched {
		return nil
	}
	logger.Debug("fetching directory", zap.String("url", c.DirectoryURL))

	body, err := c.GetJSON(ctx, c.DirectoryURL)
	if err != nil {
		return err
	}
	var dir model.Directory
	if err := json.Unmarshal(body, &dir); err != nil {
		logger.Error("failed to parse directory document", zap.Error(err), zap.String("url", c.DirectoryURL))
		return NewError(KindInvalid, c.DirectoryURL, "unparseable directory document")
	}
	if !dir.Complete() {
		logger.Error("directory document is missing endpoints", zap.String("url", c.DirectoryURL))
		return NewError(KindInvalid, c.DirectoryURL, "directory document is missing endpoints")
	}
	c.dir = dir
	c.dirFetched = true
	return nil
}

// newNonce fetches a fresh replay nonce with a HEAD request against the
// new-reg endpoint.
func (c *Client) newNonce(ctx context.Context) error {
	res, err := c.HTTP.Head(ctx, c.dir.NewReg, nil)
	if err != nil {
		return err
	}
	nonce := res.Header.Get("Replay-Nonce")
	if nonce == "" {
		logger.Error("no Replay-Nonce header on nonce request", zap.String("url", c.dir.NewReg))
		return NewError(KindInvalid, c.dir.NewReg, "server sent no Replay-Nonce header")
	}
	c.nonce = nonce
	return nil
}

// absorbNonce refills the nonce slot from a response, success or failure.
func (c *Client) absorbNonce(res *httpclient.Response) {
	if nonce := res.Header.Get("Replay-Nonce"); nonce != "" {
		c.nonce = nonce
	}
}
