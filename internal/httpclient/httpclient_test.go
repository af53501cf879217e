package httpclient_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockadesystems/certproof/internal/httpclient"
)

func TestPostCarriesHeadersAndBody(t *testing.T) {
	var gotContentType, gotHeader, gotBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotHeader = r.Header.Get("X-Test")
		buf, _ := io.ReadAll(r.Body)
		gotBody = string(buf)
		w.Header().Set("Replay-Nonce", "abc")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	client := httpclient.New(5 * time.Second)
	headers := http.Header{"X-Test": []string{"yes"}}
	res, err := client.Post(context.Background(), ts.URL, headers, "application/json", []byte(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotContentType)
	assert.Equal(t, "yes", gotHeader)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
	assert.True(t, res.Succeeded())
	assert.Equal(t, "abc", res.Header.Get("Replay-Nonce"))
	assert.Equal(t, []byte(`{"ok":true}`), res.Body)
}

func TestHeadReturnsHeadersOnly(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Replay-Nonce", "nonce-1")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	client := httpclient.New(5 * time.Second)
	res, err := client.Head(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "nonce-1", res.Header.Get("Replay-Nonce"))
	assert.Empty(t, res.Body)
}

func TestResponseSizeCap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 1024*1024+1)))
	}))
	defer ts.Close()

	client := httpclient.New(5 * time.Second)
	_, err := client.Get(context.Background(), ts.URL, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestNon2xxIsNotATransportError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer ts.Close()

	client := httpclient.New(5 * time.Second)
	res, err := client.Get(context.Background(), ts.URL, nil)
	require.NoError(t, err)
	assert.False(t, res.Succeeded())
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
