package authz_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/authz"
	"github.com/blockadesystems/certproof/internal/cryptoutil"
	"github.com/blockadesystems/certproof/internal/httpclient"
	"github.com/blockadesystems/certproof/internal/model"
	"github.com/blockadesystems/certproof/internal/storage"
	"github.com/blockadesystems/certproof/internal/testutils"
)

func newTestSetup(t *testing.T) (*testutils.CAServer, *acme.Client, storage.Storage) {
	t.Helper()
	ca := testutils.NewCAServer(t)
	store, err := storage.NewFileStorage(t.TempDir())
	require.NoError(t, err)
	key, err := cryptoutil.GenerateKey(cryptoutil.KeySpec{Type: "ecdsa"})
	require.NoError(t, err)
	client, err := acme.NewClient(ca.DirectoryURL(), 1, httpclient.New(5*time.Second), store, key)
	require.NoError(t, err)
	return ca, client, store
}

func TestRegisterHappyPath(t *testing.T) {
	ca, client, _ := newTestSetup(t)

	a, err := authz.Register(context.Background(), client, "www.example.com")
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.Equal(t, "www.example.com", a.Domain)
	assert.Equal(t, ca.AuthzURL("www.example.com"), a.URL)
	assert.Equal(t, model.AuthzStateUnknown, a.State)
	assert.NotEmpty(t, a.Resource, "the response body becomes the resource snapshot")
	assert.Contains(t, string(a.Resource), `"pending"`)
}

func TestRegisterLowercasesDomain(t *testing.T) {
	_, client, _ := newTestSetup(t)

	a, err := authz.Register(context.Background(), client, "WWW.Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", a.Domain)
}

func TestRegisterMissingLocation(t *testing.T) {
	ca, client, _ := newTestSetup(t)
	ca.OmitLocation = true

	a, err := authz.Register(context.Background(), client, "www.example.com")
	require.Error(t, err)
	assert.Equal(t, acme.KindInvalid, acme.ErrorKind(err))
	assert.Nil(t, a)
}

func TestUpdateStates(t *testing.T) {
	cases := []struct {
		status string
		want   model.AuthzState
	}{
		{"pending", model.AuthzStatePending},
		{"valid", model.AuthzStateValid},
		{"invalid", model.AuthzStateInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.status, func(t *testing.T) {
			ca, client, _ := newTestSetup(t)
			ca.AuthzStatus = tc.status

			a := &model.Authorization{URL: ca.AuthzURL("www.example.com")}
			require.NoError(t, authz.Update(context.Background(), client, a))
			assert.Equal(t, tc.want, a.State)
			assert.Equal(t, "www.example.com", a.Domain)
			assert.NotEmpty(t, a.Resource)
		})
	}
}

func TestUpdateUnknownStatus(t *testing.T) {
	ca, client, _ := newTestSetup(t)
	ca.AuthzStatus = "processing-maybe"

	a := &model.Authorization{URL: ca.AuthzURL("www.example.com")}
	err := authz.Update(context.Background(), client, a)
	require.Error(t, err)
	assert.Equal(t, acme.KindInvalid, acme.ErrorKind(err))
	assert.Equal(t, model.AuthzStateUnknown, a.State)
}

func TestUpdateTerminalStateIsSticky(t *testing.T) {
	ca, client, _ := newTestSetup(t)

	a := &model.Authorization{URL: ca.AuthzURL("www.example.com")}
	ca.AuthzStatus = "valid"
	require.NoError(t, authz.Update(context.Background(), client, a))
	require.Equal(t, model.AuthzStateValid, a.State)

	ca.AuthzStatus = "pending"
	require.NoError(t, authz.Update(context.Background(), client, a))
	assert.Equal(t, model.AuthzStateValid, a.State)
}

func TestRetrieve(t *testing.T) {
	ca, client, _ := newTestSetup(t)

	a, err := authz.Retrieve(context.Background(), client, ca.AuthzURL("www.example.com"))
	require.NoError(t, err)
	assert.Equal(t, "www.example.com", a.Domain)
	assert.Equal(t, model.AuthzStatePending, a.State)
}

func TestDeactivate(t *testing.T) {
	ca, client, _ := newTestSetup(t)

	a, err := authz.Register(context.Background(), client, "www.example.com")
	require.NoError(t, err)

	prevState := a.State
	require.NoError(t, authz.Deactivate(context.Background(), client, a))

	assert.Equal(t, []string{"www.example.com"}, ca.Deactivations)
	assert.Equal(t, prevState, a.State, "deactivation does not mutate the record")
}
