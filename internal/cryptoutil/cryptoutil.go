package cryptoutil

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const defaultSerialBits = 128 // Bit size for serial number randomness

// idPeACMEIdentifier is the X.509 extension OID carrying the SHA-256 digest
// of the key authorization in a tls-alpn-01 validation certificate
// (RFC 8737, id-pe-acmeIdentifier).
var idPeACMEIdentifier = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 31}

// KeySpec describes the key pair to generate for a challenge certificate.
type KeySpec struct {
	Type string // "rsa" or "ecdsa"
	Bits int    // RSA modulus size; ignored for ECDSA (P-256)
}

// GenerateKey creates a key pair according to spec.
func GenerateKey(spec KeySpec) (crypto.Signer, error) {
	switch strings.ToLower(spec.Type) {
	case "", "rsa":
		bits := spec.Bits
		if bits == 0 {
			bits = 2048
		}
		key, err := rsa.GenerateKey(rand.Reader, bits)
		if err != nil {
			return nil, fmt.Errorf("cryptoutil: failed to generate RSA key: %w", err)
		}
		return key, nil
	case "ecdsa":
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("cryptoutil: failed to generate ECDSA key: %w", err)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("cryptoutil: unsupported key type: %s", spec.Type)
	}
}

// generateSerialNumber creates a secure random serial number.
func generateSerialNumber() (*big.Int, error) {
	serialNumberLimit := new(big.Int).Lsh(big.NewInt(1), defaultSerialBits)
	serialNumber, err := rand.Int(rand.Reader, serialNumberLimit)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: failed to generate serial number: %w", err)
	}
	if serialNumber.Sign() != 1 {
		return nil, errors.New("cryptoutil: generated non-positive serial number")
	}
	return serialNumber, nil
}

// SelfSigned creates a self-signed certificate with the given subject common
// name and SAN list.
func SelfSigned(commonName string, sans []string, key crypto.Signer, validity time.Duration) (*x509.Certificate, error) {
	return selfSign(commonName, sans, key, validity, nil)
}

// SelfSignedALPN creates a self-signed tls-alpn-01 validation certificate for
// domain. The certificate carries the critical acmeIdentifier extension whose
// value is the DER OCTET STRING of the SHA-256 digest of the key
// authorization.
func SelfSignedALPN(domain string, keyAuthz string, key crypto.Signer, validity time.Duration) (*x509.Certificate, error) {
	digest := sha256.Sum256([]byte(keyAuthz))
	extValue, err := asn1.Marshal(digest[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: failed to marshal acmeIdentifier value: %w", err)
	}
	ext := pkix.Extension{
		Id:       idPeACMEIdentifier,
		Critical: true,
		Value:    extValue,
	}
	return selfSign(domain, []string{domain}, key, validity, []pkix.Extension{ext})
}

func selfSign(commonName string, sans []string, key crypto.Signer, validity time.Duration, extraExts []pkix.Extension) (*x509.Certificate, error) {
	serialNumber, err := generateSerialNumber()
	if err != nil {
		return nil, err
	}

	notBefore := time.Now().Add(-1 * time.Minute)
	template := x509.Certificate{
		SerialNumber:          serialNumber,
		Subject:               pkix.Name{CommonName: commonName},
		DNSNames:              sans,
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
		ExtraExtensions:       extraExts,
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: failed to create self-signed certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(derBytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: failed to parse created certificate: %w", err)
	}
	return cert, nil
}

// CoversDomain reports whether cert is valid for the given domain name.
func CoversDomain(cert *x509.Certificate, domain string) bool {
	return cert.VerifyHostname(domain) == nil
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// EncodePrivateKey encodes a crypto.Signer (RSA or ECDSA) into PEM format.
func EncodePrivateKey(key crypto.Signer) ([]byte, error) {
	var pemType string
	var keyBytes []byte
	var err error

	switch k := key.(type) {
	case *rsa.PrivateKey:
		pemType = "RSA PRIVATE KEY"
		keyBytes = x509.MarshalPKCS1PrivateKey(k)
	case *ecdsa.PrivateKey:
		pemType = "EC PRIVATE KEY"
		keyBytes, err = x509.MarshalECPrivateKey(k)
		if err != nil {
			return nil, fmt.Errorf("cryptoutil: unable to marshal ECDSA private key: %w", err)
		}
	default:
		return nil, errors.New("cryptoutil: unsupported private key type")
	}

	return pem.EncodeToMemory(&pem.Block{Type: pemType, Bytes: keyBytes}), nil
}

// ParsePrivateKey parses a PEM-encoded private key (RSA or ECDSA).
func ParsePrivateKey(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("cryptoutil: failed to decode PEM block containing private key")
	}

	var privKey crypto.Signer
	var err error

	switch block.Type {
	case "RSA PRIVATE KEY":
		privKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "EC PRIVATE KEY":
		privKey, err = x509.ParseECPrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("cryptoutil: unsupported private key type: %s", block.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("cryptoutil: failed to parse private key: %w", err)
	}
	return privKey, nil
}

// EncodeCertificate encodes an x509 certificate into PEM format.
func EncodeCertificate(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// ParseCertificate parses a PEM-encoded x509 certificate.
func ParseCertificate(pemBytes []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("cryptoutil: failed to decode PEM block containing certificate")
	}
	if block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("cryptoutil: unexpected PEM block type: %s", block.Type)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("cryptoutil: failed to parse certificate: %w", err)
	}
	return cert, nil
}
