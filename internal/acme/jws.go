package acme

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"fmt"

	jose "github.com/go-jose/go-jose/v4"
)

// signatureAlgorithm picks the JWS algorithm matching the account key type.
func signatureAlgorithm(key crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch k := key.Public().(type) {
	case *rsa.PublicKey:
		return jose.RS256, nil
	case *ecdsa.PublicKey:
		switch k.Curve {
		case elliptic.P256():
			return jose.ES256, nil
		case elliptic.P384():
			return jose.ES384, nil
		case elliptic.P521():
			return jose.ES512, nil
		}
		return "", fmt.Errorf("acme: unsupported ECDSA curve: %s", k.Curve.Params().Name)
	default:
		return "", fmt.Errorf("acme: unsupported account key type %T", k)
	}
}

// signPayload wraps payload in a flattened JWS JSON envelope signed with the
// account key. The protected header embeds the public JWK and carries the
// replay nonce; ACMEv2 additionally requires the request URL.
func signPayload(payload []byte, key crypto.Signer, nonce, url string, version int) ([]byte, error) {
	alg, err := signatureAlgorithm(key)
	if err != nil {
		return nil, err
	}

	opts := &jose.SignerOptions{EmbedJWK: true}
	opts.WithHeader("nonce", nonce)
	if version >= 2 {
		opts.WithHeader("url", url)
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	if err != nil {
		return nil, fmt.Errorf("acme: failed to create JWS signer: %w", err)
	}
	obj, err := signer.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("acme: failed to sign payload: %w", err)
	}
	return []byte(obj.FullSerialize()), nil
}

// Thumbprint computes the base64url SHA-256 thumbprint of the account key's
// canonical JWK, as used in challenge key authorizations.
func Thumbprint(key crypto.Signer) (string, error) {
	jwk := jose.JSONWebKey{Key: key.Public()}
	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("acme: failed to compute key thumbprint: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sum), nil
}
