package guard

import (
	"context"
	"errors"
	"io"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Kind categorizes a failure for user messaging and retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindNotFound
	KindAlreadyExists
	KindUnavailable // backend temporarily unavailable
	KindNetwork
	KindTimeout
	KindCancelled // interaction cancelled, e.g. a sign-in popup closed by the user
	KindRender    // rendering or lifecycle failure inside the caller
	KindMaps      // mapping / geocoding provider failure
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	KindPermissionDenied: "permission-denied",
	KindNotFound:         "not-found",
	KindAlreadyExists:    "already-exists",
	KindUnavailable:      "unavailable",
	KindNetwork:          "network",
	KindTimeout:          "timeout",
	KindCancelled:        "cancelled",
	KindRender:           "render",
	KindMaps:             "maps",
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindUnknown, KindPermissionDenied, KindNotFound, KindAlreadyExists,
		KindUnavailable, KindNetwork, KindTimeout, KindCancelled, KindRender, KindMaps,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// ParseKind is the inverse of Kind.String. Unrecognized names are KindUnknown.
func ParseKind(s string) Kind {
	for k, name := range kindNames {
		if name == s {
			return k
		}
	}
	return KindUnknown
}

// Retryable reports whether another attempt can change the outcome.
// Permission, not-found, already-exists and user cancellation fail fast.
func (k Kind) Retryable() bool {
	switch k {
	case KindPermissionDenied, KindNotFound, KindAlreadyExists, KindCancelled:
		return false
	default:
		return true
	}
}

// Coder is implemented by errors carrying a backend error code,
// e.g. "permission-denied" or "auth/popup-closed-by-user".
type Coder interface {
	Code() string
}

// Classify maps any error to exactly one Kind. It never fails.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	switch {
	case errors.Is(err, ErrAttemptTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrPanic):
		return KindRender
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindNetwork
	}

	var coded Coder
	if errors.As(err, &coded) {
		if k := classifyCode(coded.Code()); k != KindUnknown {
			return k
		}
	}

	if st, ok := status.FromError(err); ok {
		if k := classifyStatus(st.Code()); k != KindUnknown {
			return k
		}
	}

	return classifyMessage(err.Error())
}

// ClassifyCode maps a bare backend code string to a Kind.
func ClassifyCode(code string) Kind {
	if k := classifyCode(code); k != KindUnknown {
		return k
	}
	return classifyMessage(code)
}

func classifyStatus(c codes.Code) Kind {
	switch c {
	case codes.PermissionDenied, codes.Unauthenticated:
		return KindPermissionDenied
	case codes.NotFound:
		return KindNotFound
	case codes.AlreadyExists:
		return KindAlreadyExists
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return KindUnavailable
	case codes.DeadlineExceeded:
		return KindTimeout
	case codes.Canceled:
		return KindCancelled
	default:
		return KindUnknown
	}
}

var codeKinds = map[string]Kind{
	"permission-denied":            KindPermissionDenied,
	"unauthenticated":              KindPermissionDenied,
	"auth/insufficient-permission": KindPermissionDenied,
	"auth/user-disabled":           KindPermissionDenied,
	"not-found":                    KindNotFound,
	"auth/user-not-found":          KindNotFound,
	"already-exists":               KindAlreadyExists,
	"auth/email-already-in-use":    KindAlreadyExists,
	"unavailable":                  KindUnavailable,
	"resource-exhausted":           KindUnavailable,
	"aborted":                      KindUnavailable,
	"deadline-exceeded":            KindTimeout,
	"network":                      KindNetwork,
	"auth/network-request-failed":  KindNetwork,
	"cancelled":                    KindCancelled,
	"auth/popup-closed-by-user":    KindCancelled,
	"auth/cancelled-popup-request": KindCancelled,
	"auth/popup-blocked":           KindCancelled,
	"render":                       KindRender,
}

func classifyCode(code string) Kind {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return KindUnknown
	}
	if k, ok := codeKinds[code]; ok {
		return k
	}
	// Backend-prefixed codes, e.g. "firestore/unavailable".
	if i := strings.LastIndex(code, "/"); i >= 0 {
		if k, ok := codeKinds[code[i+1:]]; ok {
			return k
		}
		// Unrecognized maps statuses ("maps/zero-results") stay in the maps kind.
		switch code[:i] {
		case "maps", "geocoder", "directions":
			return KindMaps
		}
	}
	return KindUnknown
}

// Order matters: "no such host" is a network failure, not a not-found.
// word patterns only match whole words ("unexpected eof", not "geofence").
var messagePatterns = []struct {
	pattern string
	kind    Kind
	word    bool
}{
	{"no such host", KindNetwork, false},
	{"connection refused", KindNetwork, false},
	{"connection reset", KindNetwork, false},
	{"broken pipe", KindNetwork, false},
	{"network", KindNetwork, false},
	{"eof", KindNetwork, true},
	{"permission", KindPermissionDenied, false},
	{"forbidden", KindPermissionDenied, false},
	{"unauthorized", KindPermissionDenied, false},
	{"not found", KindNotFound, false},
	{"already exists", KindAlreadyExists, false},
	{"temporarily unavailable", KindUnavailable, false},
	{"unavailable", KindUnavailable, false},
	{"too many requests", KindUnavailable, false},
	{"503", KindUnavailable, false},
	{"timeout", KindTimeout, false},
	{"timed out", KindTimeout, false},
	{"deadline", KindTimeout, false},
	{"popup", KindCancelled, false},
	{"cancelled by user", KindCancelled, false},
	{"canceled by user", KindCancelled, false},
	{"google maps", KindMaps, false},
	{"geocod", KindMaps, false},
	{"directions", KindMaps, false},
	{"render", KindRender, false},
	{"unmounted", KindRender, false},
	{"lifecycle", KindRender, false},
}

func classifyMessage(msg string) Kind {
	msg = strings.ToLower(msg)
	for _, p := range messagePatterns {
		if p.word && containsWord(msg, p.pattern) || !p.word && strings.Contains(msg, p.pattern) {
			return p.kind
		}
	}
	return KindUnknown
}

func containsWord(s, word string) bool {
	for from := 0; ; {
		i := strings.Index(s[from:], word)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(word)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		from = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
