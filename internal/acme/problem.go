package acme

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an ACME failure for the caller. It is the internal error
// taxonomy derived from RFC 7807 problem documents and HTTP status codes.
type Kind int

const (
	KindGeneral Kind = iota
	KindInvalid
	KindNotFound
	KindAccessDenied
	KindTryAgain
	KindBadArgument
	KindRetryable
	KindNotImplemented
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not-found"
	case KindAccessDenied:
		return "access-denied"
	case KindTryAgain:
		return "try-again"
	case KindBadArgument:
		return "bad-argument"
	case KindRetryable:
		return "retryable"
	case KindNotImplemented:
		return "not-implemented"
	default:
		return "general"
	}
}

// Error is a classified ACME failure. ProblemType and Detail are filled when
// the server returned a problem document; URL names the request that failed.
type Error struct {
	Kind        Kind
	ProblemType string
	Detail      string
	URL         string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("acme: %s", e.Kind)
	if e.ProblemType != "" {
		msg += fmt.Sprintf(" (%s)", e.ProblemType)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.URL != "" {
		msg += " [" + e.URL + "]"
	}
	return msg
}

// NewError creates a classified error without a problem document.
func NewError(kind Kind, url, detail string) *Error {
	return &Error{Kind: kind, URL: url, Detail: detail}
}

// ErrorKind extracts the Kind of err, or KindGeneral when err is not an
// ACME error.
func ErrorKind(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindGeneral
}

// problemKinds maps ACME problem-document types, stripped of their URN
// prefix, to error kinds. The table is closed and fixed at compile time.
var problemKinds = map[string]Kind{
	"acme:error:badcsr":                KindInvalid,
	"acme:error:badnonce":              KindRetryable,
	"acme:error:badsignaturealgorithm": KindInvalid,
	"acme:error:invalidcontact":        KindBadArgument,
	"acme:error:unsupportedcontact":    KindBadArgument,
	"acme:error:malformed":             KindInvalid,
	"acme:error:ratelimited":           KindBadArgument,
	"acme:error:rejectedidentifier":    KindBadArgument,
	"acme:error:serverinternal":        KindGeneral,
	"acme:error:unauthorized":          KindAccessDenied,
	"acme:error:unsupportedidentifier": KindBadArgument,
	"acme:error:useractionrequired":    KindTryAgain,
	"acme:error:badrevocationreason":   KindInvalid,
	"acme:error:caa":                   KindGeneral,
	"acme:error:dns":                   KindGeneral,
	"acme:error:connection":            KindGeneral,
	"acme:error:tls":                   KindGeneral,
	"acme:error:incorrectresponse":     KindGeneral,
}

// ClassifyProblem maps a problem-document type string to an error kind.
// Unknown types classify as general protocol errors.
func ClassifyProblem(problemType string) Kind {
	t := problemType
	if strings.HasPrefix(t, "urn:ietf:params:") {
		t = strings.TrimPrefix(t, "urn:ietf:params:")
	} else if strings.HasPrefix(t, "urn:") {
		t = strings.TrimPrefix(t, "urn:")
	}
	if kind, ok := problemKinds[strings.ToLower(t)]; ok {
		return kind
	}
	return KindGeneral
}
