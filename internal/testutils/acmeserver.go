package testutils

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
)

// NotifyCall records one challenge-response POST received by the fake CA.
type NotifyCall struct {
	Type    string
	Nonce   string
	Payload map[string]interface{}
}

// Problem configures an RFC 7807 error response.
type Problem struct {
	Status int
	Type   string
	Detail string
}

// CAServer is an in-process fake ACME v1 certificate authority. Tests mutate
// the exported fields to steer its behavior before driving the client.
type CAServer struct {
	t   *testing.T
	srv *httptest.Server

	mu       sync.Mutex
	nonceSeq int

	// AuthzStatus is returned when the authorization resource is polled.
	AuthzStatus string
	// Challenges overrides the offered challenge list; nil offers the
	// default dns-01 / tls-alpn-01 / http-01 set.
	Challenges []map[string]interface{}
	// OmitLocation suppresses the Location header on new-authz responses.
	OmitLocation bool
	// NewAuthzProblem makes new-authz fail with a problem document.
	NewAuthzProblem *Problem

	// Notifies collects every challenge-response POST.
	Notifies []NotifyCall
	// Deactivations collects the authz domains whose deactivation was
	// requested.
	Deactivations []string
	// SeenNonces collects the replay nonces presented in signed requests,
	// in arrival order.
	SeenNonces []string
}

// NewCAServer starts a fake CA on an httptest listener. It is shut down via
// t.Cleanup.
func NewCAServer(t *testing.T) *CAServer {
	ca := &CAServer{t: t, AuthzStatus: "pending"}

	e := echo.New()
	e.HideBanner = true
	e.GET("/directory", ca.handleDirectory)
	e.HEAD("/new-reg", ca.handleNonce)
	e.POST("/new-authz", ca.handleNewAuthz)
	e.GET("/authz/:domain", ca.handleAuthz)
	e.POST("/authz/:domain", ca.handleAuthzPost)
	e.POST("/chall/:type", ca.handleChallenge)

	ca.srv = httptest.NewServer(e)
	t.Cleanup(ca.srv.Close)
	return ca
}

// URL is the base URL of the fake CA.
func (ca *CAServer) URL() string {
	return ca.srv.URL
}

// DirectoryURL is the directory endpoint of the fake CA.
func (ca *CAServer) DirectoryURL() string {
	return ca.srv.URL + "/directory"
}

// AuthzURL is the authorization resource URL the CA hands out for domain.
func (ca *CAServer) AuthzURL(domain string) string {
	return ca.srv.URL + "/authz/" + domain
}

// ChallengeURL is the challenge-response endpoint for a challenge type.
func (ca *CAServer) ChallengeURL(chaType string) string {
	return ca.srv.URL + "/chall/" + chaType
}

func (ca *CAServer) nextNonce() string {
	ca.mu.Lock()
	defer ca.mu.Unlock()
	ca.nonceSeq++
	return fmt.Sprintf("nonce-%04d", ca.nonceSeq)
}

func (ca *CAServer) stampNonce(c echo.Context) {
	c.Response().Header().Set("Replay-Nonce", ca.nextNonce())
}

func (ca *CAServer) offeredChallenges() []map[string]interface{} {
	if ca.Challenges != nil {
		return ca.Challenges
	}
	return []map[string]interface{}{
		{"type": "dns-01", "uri": ca.ChallengeURL("dns-01"), "token": "tok-dns"},
		{"type": "tls-alpn-01", "uri": ca.ChallengeURL("tls-alpn-01"), "token": "tok-alpn"},
		{"type": "http-01", "uri": ca.ChallengeURL("http-01"), "token": "tok-http"},
	}
}

func (ca *CAServer) handleDirectory(c echo.Context) error {
	ca.stampNonce(c)
	return c.JSON(http.StatusOK, map[string]string{
		"new-authz":   ca.srv.URL + "/new-authz",
		"new-cert":    ca.srv.URL + "/new-cert",
		"new-reg":     ca.srv.URL + "/new-reg",
		"revoke-cert": ca.srv.URL + "/revoke-cert",
	})
}

func (ca *CAServer) handleNonce(c echo.Context) error {
	ca.stampNonce(c)
	return c.NoContent(http.StatusNoContent)
}

func (ca *CAServer) handleNewAuthz(c echo.Context) error {
	_, payload := ca.readJWS(c)

	if ca.NewAuthzProblem != nil {
		ca.stampNonce(c)
		c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
		c.Response().WriteHeader(ca.NewAuthzProblem.Status)
		body, _ := json.Marshal(map[string]interface{}{
			"type":   ca.NewAuthzProblem.Type,
			"detail": ca.NewAuthzProblem.Detail,
			"status": ca.NewAuthzProblem.Status,
		})
		_, err := c.Response().Write(body)
		return err
	}

	domain, _ := digJSON(payload, "identifier", "value").(string)
	if domain == "" {
		return c.NoContent(http.StatusBadRequest)
	}

	ca.stampNonce(c)
	if !ca.OmitLocation {
		c.Response().Header().Set("Location", ca.AuthzURL(domain))
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"status":     "pending",
		"identifier": map[string]string{"type": "dns", "value": domain},
		"challenges": ca.offeredChallenges(),
	})
}

func (ca *CAServer) handleAuthz(c echo.Context) error {
	domain := c.Param("domain")
	ca.stampNonce(c)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     ca.AuthzStatus,
		"identifier": map[string]string{"type": "dns", "value": domain},
		"challenges": ca.offeredChallenges(),
	})
}

func (ca *CAServer) handleAuthzPost(c echo.Context) error {
	_, payload := ca.readJWS(c)
	status, _ := payload["status"].(string)
	if status != "deactivated" {
		return c.NoContent(http.StatusBadRequest)
	}

	ca.mu.Lock()
	ca.Deactivations = append(ca.Deactivations, c.Param("domain"))
	ca.mu.Unlock()

	ca.stampNonce(c)
	return c.JSON(http.StatusOK, map[string]string{"status": "deactivated"})
}

func (ca *CAServer) handleChallenge(c echo.Context) error {
	protected, payload := ca.readJWS(c)
	nonce, _ := protected["nonce"].(string)

	ca.mu.Lock()
	ca.Notifies = append(ca.Notifies, NotifyCall{
		Type:    c.Param("type"),
		Nonce:   nonce,
		Payload: payload,
	})
	ca.mu.Unlock()

	ca.stampNonce(c)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"type":   c.Param("type"),
		"status": "pending",
	})
}

// readJWS decodes the flattened JWS JSON envelope of a signed request and
// records the presented nonce.
func (ca *CAServer) readJWS(c echo.Context) (protected, payload map[string]interface{}) {
	ca.t.Helper()
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		ca.t.Fatalf("reading JWS request body: %v", err)
	}
	protected, payload, err = DecodeJWS(body)
	if err != nil {
		ca.t.Fatalf("decoding JWS request: %v", err)
	}
	if nonce, ok := protected["nonce"].(string); ok {
		ca.mu.Lock()
		ca.SeenNonces = append(ca.SeenNonces, nonce)
		ca.mu.Unlock()
	}
	return protected, payload
}

// DecodeJWS unpacks the protected header and payload of a flattened JWS
// JSON serialization.
func DecodeJWS(body []byte) (protected, payload map[string]interface{}, err error) {
	var envelope struct {
		Protected string `json:"protected"`
		Payload   string `json:"payload"`
	}
	if err = json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, err
	}
	rawProtected, err := base64.RawURLEncoding.DecodeString(envelope.Protected)
	if err != nil {
		return nil, nil, err
	}
	if err = json.Unmarshal(rawProtected, &protected); err != nil {
		return nil, nil, err
	}
	rawPayload, err := base64.RawURLEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return nil, nil, err
	}
	if len(rawPayload) > 0 {
		if err = json.Unmarshal(rawPayload, &payload); err != nil {
			return nil, nil, err
		}
	}
	return protected, payload, nil
}

// digJSON walks nested maps by key path.
func digJSON(m map[string]interface{}, path ...string) interface{} {
	var cur interface{} = m
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}
