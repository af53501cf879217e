package authz

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/blockadesystems/certproof/internal/acme"
	"github.com/blockadesystems/certproof/internal/model"
)

// Challenge types the workflow knows about.
const (
	TypeHTTP01    = "http-01"
	TypeTLSALPN01 = "tls-alpn-01"
	TypeTLSSNI01  = "tls-sni-01"
)

// challengeList extracts the server-offered challenges from the
// authorization's resource snapshot.
func challengeList(a *model.Authorization) ([]model.Challenge, error) {
	if len(a.Resource) == 0 {
		return nil, acme.NewError(acme.KindInvalid, a.URL, "authorization has no resource snapshot")
	}
	var doc struct {
		Challenges []model.Challenge `json:"challenges"`
	}
	if err := json.Unmarshal(a.Resource, &doc); err != nil {
		return nil, acme.NewError(acme.KindInvalid, a.URL, "unparseable challenge list")
	}
	for i := range doc.Challenges {
		doc.Challenges[i].Index = i
	}
	return doc.Challenges, nil
}

// selectChallenge picks the first server-offered challenge matching the
// caller's type preference order. Caller order wins over server order.
func selectChallenge(a *model.Authorization, preferred []string) (*model.Challenge, error) {
	offered, err := challengeList(a)
	if err != nil {
		return nil, err
	}

	for _, want := range preferred {
		for i := range offered {
			if strings.EqualFold(offered[i].Type, want) {
				cha := offered[i]
				return &cha, nil
			}
		}
	}

	offeredTypes := make([]string, 0, len(offered))
	for _, cha := range offered {
		offeredTypes = append(offeredTypes, cha.Type)
	}
	detail := fmt.Sprintf(
		"the server offers no challenge that is configured for this domain; offered: '%s', configured: '%s'",
		strings.Join(offeredTypes, " "), strings.Join(preferred, " "))
	logger.Warn("no acceptable challenge",
		zap.String("domain", a.Domain), zap.String("url", a.URL),
		zap.Strings("offered", offeredTypes), zap.Strings("configured", preferred))
	return nil, acme.NewError(acme.KindInvalid, a.URL, detail)
}
