package model

import (
	"encoding/json"
)

// AuthzState is the lifecycle state of an authorization as reported by the
// ACME server. The zero value means the state has not been fetched yet.
type AuthzState int

const (
	AuthzStateUnknown AuthzState = iota
	AuthzStatePending
	AuthzStateValid
	AuthzStateInvalid
)

func (s AuthzState) String() string {
	switch s {
	case AuthzStatePending:
		return "pending"
	case AuthzStateValid:
		return "valid"
	case AuthzStateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Authorization tracks one (domain, authorization URL) pair against an ACME
// server. URL is the identity of the record and is set from creation onward.
// Resource holds the last JSON snapshot the server returned for the resource;
// it is never persisted and is reacquired by polling.
type Authorization struct {
	Domain   string          // lowercase FQDN being authorized
	URL      string          // absolute URL of the server-side authorization resource
	Dir      string          // local artifact directory key, usually Domain
	State    AuthzState      // server-driven lifecycle state
	Resource json.RawMessage // last server response body, opaque
}

// authzJSON is the stable on-disk shape of an Authorization. The state is
// persisted as its integer ordinal.
type authzJSON struct {
	Domain   string `json:"domain"`
	Location string `json:"location"`
	Dir      string `json:"dir,omitempty"`
	State    int    `json:"state"`
}

// MarshalJSON serializes the persisted fields only; Resource is deliberately
// left out.
func (a Authorization) MarshalJSON() ([]byte, error) {
	return json.Marshal(authzJSON{
		Domain:   a.Domain,
		Location: a.URL,
		Dir:      a.Dir,
		State:    int(a.State),
	})
}

func (a *Authorization) UnmarshalJSON(data []byte) error {
	var j authzJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	a.Domain = j.Domain
	a.URL = j.Location
	a.Dir = j.Dir
	a.State = AuthzState(j.State)
	a.Resource = nil
	return nil
}

// Identifier names the subject of an authorization, e.g. {"dns","example.com"}.
type Identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Challenge is one validation mechanism offered inside an authorization
// resource. Challenges are borrowed views into Authorization.Resource and are
// never retained past the enclosing request.
type Challenge struct {
	Index    int    // position within the server's challenge list
	Type     string // e.g. "http-01", "tls-alpn-01", "tls-sni-01"
	URI      string // URL to POST the challenge response to
	Token    string // server-chosen opaque string
	KeyAuthz string // "token.thumbprint", when already known to the server
}

// challengeJSON covers both protocol generations: ACMEv2 names the response
// endpoint "url", ACMEv1 names it "uri".
type challengeJSON struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	URI      string `json:"uri"`
	Token    string `json:"token"`
	KeyAuthz string `json:"keyAuthorization"`
}

func (c *Challenge) UnmarshalJSON(data []byte) error {
	var j challengeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	c.Type = j.Type
	c.URI = j.URL
	if c.URI == "" {
		c.URI = j.URI
	}
	c.Token = j.Token
	c.KeyAuthz = j.KeyAuthz
	return nil
}

// Directory is the endpoint document an ACME server publishes at its
// directory URL.
type Directory struct {
	NewAuthz   string `json:"new-authz"`
	NewCert    string `json:"new-cert"`
	NewReg     string `json:"new-reg"`
	RevokeCert string `json:"revoke-cert"`
}

// Complete reports whether every endpoint the workflow needs is present.
func (d Directory) Complete() bool {
	return d.NewAuthz != "" && d.NewCert != "" && d.NewReg != "" && d.RevokeCert != ""
}

// ProblemDetails represents an ACME error object (RFC 7807 / RFC 8555 Section 6.7).
type ProblemDetails struct {
	Type        string          `json:"type"`
	Detail      string          `json:"detail"`
	Status      int             `json:"status,omitempty"`
	Instance    string          `json:"instance,omitempty"`
	Subproblems json.RawMessage `json:"subproblems,omitempty"`
}
