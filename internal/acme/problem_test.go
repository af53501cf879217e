package acme_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/blockadesystems/certproof/internal/acme"
)

func TestClassifyProblem(t *testing.T) {
	cases := []struct {
		problemType string
		want        acme.Kind
	}{
		{"urn:ietf:params:acme:error:badCSR", acme.KindInvalid},
		{"urn:ietf:params:acme:error:badNonce", acme.KindRetryable},
		{"urn:ietf:params:acme:error:badSignatureAlgorithm", acme.KindInvalid},
		{"urn:ietf:params:acme:error:invalidContact", acme.KindBadArgument},
		{"urn:ietf:params:acme:error:unsupportedContact", acme.KindBadArgument},
		{"urn:ietf:params:acme:error:malformed", acme.KindInvalid},
		{"urn:ietf:params:acme:error:rateLimited", acme.KindBadArgument},
		{"urn:ietf:params:acme:error:rejectedIdentifier", acme.KindBadArgument},
		{"urn:ietf:params:acme:error:serverInternal", acme.KindGeneral},
		{"urn:ietf:params:acme:error:unauthorized", acme.KindAccessDenied},
		{"urn:ietf:params:acme:error:unsupportedIdentifier", acme.KindBadArgument},
		{"urn:ietf:params:acme:error:userActionRequired", acme.KindTryAgain},
		{"urn:ietf:params:acme:error:badRevocationReason", acme.KindInvalid},
		{"urn:ietf:params:acme:error:caa", acme.KindGeneral},
		{"urn:ietf:params:acme:error:dns", acme.KindGeneral},
		{"urn:ietf:params:acme:error:connection", acme.KindGeneral},
		{"urn:ietf:params:acme:error:tls", acme.KindGeneral},
		{"urn:ietf:params:acme:error:incorrectResponse", acme.KindGeneral},

		// ACMEv1 servers use the shorter urn: prefix.
		{"urn:acme:error:unauthorized", acme.KindAccessDenied},
		{"urn:acme:error:rateLimited", acme.KindBadArgument},

		// Matching is case-insensitive.
		{"urn:ietf:params:acme:error:BADNONCE", acme.KindRetryable},

		// Unknown types are generic protocol errors.
		{"urn:ietf:params:acme:error:somethingNew", acme.KindGeneral},
		{"completely:different", acme.KindGeneral},
		{"", acme.KindGeneral},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, acme.ClassifyProblem(tc.problemType), "type %q", tc.problemType)
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "general", acme.KindGeneral.String())
	assert.Equal(t, "invalid", acme.KindInvalid.String())
	assert.Equal(t, "not-found", acme.KindNotFound.String())
	assert.Equal(t, "access-denied", acme.KindAccessDenied.String())
	assert.Equal(t, "try-again", acme.KindTryAgain.String())
	assert.Equal(t, "bad-argument", acme.KindBadArgument.String())
	assert.Equal(t, "retryable", acme.KindRetryable.String())
	assert.Equal(t, "not-implemented", acme.KindNotImplemented.String())
}

func TestErrorMessage(t *testing.T) {
	err := &acme.Error{
		Kind:        acme.KindBadArgument,
		ProblemType: "urn:ietf:params:acme:error:rateLimited",
		Detail:      "slow down",
		URL:         "https://ca.example/new-authz",
	}
	msg := err.Error()
	assert.Contains(t, msg, "bad-argument")
	assert.Contains(t, msg, "rateLimited")
	assert.Contains(t, msg, "slow down")
	assert.Contains(t, msg, "https://ca.example/new-authz")
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, acme.KindNotFound, acme.ErrorKind(acme.NewError(acme.KindNotFound, "", "")))
	assert.Equal(t, acme.KindGeneral, acme.ErrorKind(assert.AnError))
}
