package authz

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/model"
)

func TestChallengeDNSDerivation(t *testing.T) {
	// SHA-256("hello") = 2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824
	assert.Equal(t,
		"2cf24dba5fb0a30e26e83b2ac5b9e29e.1b161e5c1fa7425e73043362938b9824.acme.invalid",
		challengeDNS("hello"))
}

func TestSelectChallengeCallerOrderWins(t *testing.T) {
	a := &model.Authorization{
		Domain: "example.org",
		URL:    "https://ca.example/authz/abc",
		Resource: json.RawMessage(`{
			"status": "pending",
			"challenges": [
				{"type": "dns-01", "uri": "https://ca.example/chall/0", "token": "t0"},
				{"type": "tls-alpn-01", "uri": "https://ca.example/chall/1", "token": "t1"},
				{"type": "http-01", "uri": "https://ca.example/chall/2", "token": "t2"}
			]
		}`),
	}

	cha, err := selectChallenge(a, []string{"http-01", "tls-alpn-01"})
	require.NoError(t, err)
	assert.Equal(t, "http-01", cha.Type)
	assert.Equal(t, 2, cha.Index)
	assert.Equal(t, "https://ca.example/chall/2", cha.URI)
	assert.Equal(t, "t2", cha.Token)
}

func TestSelectChallengeCaseInsensitive(t *testing.T) {
	a := &model.Authorization{
		URL:      "https://ca.example/authz/abc",
		Resource: json.RawMessage(`{"challenges":[{"type":"HTTP-01","uri":"u","token":"t"}]}`),
	}

	cha, err := selectChallenge(a, []string{"http-01"})
	require.NoError(t, err)
	assert.Equal(t, "HTTP-01", cha.Type)
}

func TestSelectChallengeNoMatch(t *testing.T) {
	a := &model.Authorization{
		URL:      "https://ca.example/authz/abc",
		Resource: json.RawMessage(`{"challenges":[{"type":"dns-01","uri":"u","token":"t"}]}`),
	}

	_, err := selectChallenge(a, []string{"http-01"})
	require.Error(t, err)
	assert.Equal(t, acme.KindInvalid, acme.ErrorKind(err))
}

func TestSetupKeyAuthz(t *testing.T) {
	key, err := cryptoutil.GenerateKey(cryptoutil.KeySpec{Type: "ecdsa"})
	require.NoError(t, err)
	client := &acme.Client{AccountKey: key}

	thumb, err := acme.Thumbprint(key)
	require.NoError(t, err)
	want := "TOK." + thumb

	t.Run("unset value is derived and flags notify", func(t *testing.T) {
		cha := &model.Challenge{Token: "TOK"}
		changed, err := setupKeyAuthz(cha, client)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, want, cha.KeyAuthz)
	})

	t.Run("matching value is kept without notify", func(t *testing.T) {
		cha := &model.Challenge{Token: "TOK", KeyAuthz: want}
		changed, err := setupKeyAuthz(cha, client)
		require.NoError(t, err)
		assert.False(t, changed)
		assert.Equal(t, want, cha.KeyAuthz)
	})

	t.Run("stale value is replaced and flags notify", func(t *testing.T) {
		cha := &model.Challenge{Token: "TOK", KeyAuthz: "TOK.other-thumbprint"}
		changed, err := setupKeyAuthz(cha, client)
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, want, cha.KeyAuthz)
	})
}
