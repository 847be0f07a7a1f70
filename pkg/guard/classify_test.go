package guard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"golang.org/x/text/language"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"attempt timeout", fmt.Errorf("%w after 10s", ErrAttemptTimeout), KindTimeout},
		{"context deadline", context.DeadlineExceeded, KindTimeout},
		{"context cancelled", context.Canceled, KindCancelled},
		{"panic", fmt.Errorf("%w: boom", ErrPanic), KindRender},
		{"grpc permission", status.Error(codes.PermissionDenied, "missing or insufficient permissions"), KindPermissionDenied},
		{"grpc unauthenticated", status.Error(codes.Unauthenticated, "token expired"), KindPermissionDenied},
		{"grpc not found", status.Error(codes.NotFound, "no document"), KindNotFound},
		{"grpc already exists", status.Error(codes.AlreadyExists, "doc exists"), KindAlreadyExists},
		{"grpc unavailable", status.Error(codes.Unavailable, "backend down"), KindUnavailable},
		{"wrapped grpc", fmt.Errorf("load bookings: %w", status.Error(codes.Unavailable, "x")), KindUnavailable},
		{"coded permission", &codedErr{code: "permission-denied"}, KindPermissionDenied},
		{"coded prefixed", &codedErr{code: "firestore/unavailable"}, KindUnavailable},
		{"coded popup", &codedErr{code: "auth/popup-closed-by-user"}, KindCancelled},
		{"coded network", &codedErr{code: "auth/network-request-failed"}, KindNetwork},
		{"coded maps", &codedErr{code: "maps/zero-results"}, KindMaps},
		{"coded already in use", &codedErr{code: "auth/email-already-in-use"}, KindAlreadyExists},
		{"message no such host", errors.New("dial tcp: lookup api.example: no such host"), KindNetwork},
		{"message not found", errors.New("booking not found"), KindNotFound},
		{"message 503", errors.New("server returned 503"), KindUnavailable},
		{"message geocoder", errors.New("Geocoder failed: OVER_QUERY_LIMIT"), KindMaps},
		{"message unmounted", errors.New("setState on unmounted component"), KindRender},
		{"unrecognized", errors.New("the flux capacitor is misaligned"), KindUnknown},
		{"unrecognized code", &codedErr{code: "weird/code"}, KindUnknown},
		{"coded maps permission", &codedErr{code: "maps/permission-denied"}, KindPermissionDenied},
		{"coded geocoder unavailable", &codedErr{code: "geocoder/unavailable"}, KindUnavailable},
		{"coded maps quota", &codedErr{code: "maps/over-query-limit"}, KindMaps},
		{"io eof", fmt.Errorf("read body: %w", io.EOF), KindNetwork},
		{"io unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), KindNetwork},
		{"message eof", errors.New("stream closed: unexpected EOF"), KindNetwork},
		{"message geofence", errors.New("geofence rejected pickup"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyCode(t *testing.T) {
	if got := ClassifyCode("resource-exhausted"); got != KindUnavailable {
		t.Errorf("Expected unavailable, got %s", got)
	}
	if got := ClassifyCode("request timed out"); got != KindTimeout {
		t.Errorf("Expected timeout from free text, got %s", got)
	}
}

func TestKindRetryable(t *testing.T) {
	failFast := map[Kind]bool{
		KindPermissionDenied: true,
		KindNotFound:         true,
		KindAlreadyExists:    true,
		KindCancelled:        true,
	}
	for _, k := range Kinds() {
		if k.Retryable() == failFast[k] {
			t.Errorf("Kind %s: Retryable() = %v", k, k.Retryable())
		}
	}
}

func TestParseKindRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %s", k.String(), got)
		}
	}
	if ParseKind("nope") != KindUnknown {
		t.Error("Unrecognized names should parse as unknown")
	}
}

// Every kind, known or not, maps to a non-empty sentence in every locale.
func TestMessagesAreTotal(t *testing.T) {
	kinds := append(Kinds(), Kind(99), Kind(-1))
	for _, pref := range []string{"en", "fr", "es", "de", ""} {
		l := NewLocalizer(pref)
		for _, k := range kinds {
			if l.Message(k) == "" {
				t.Errorf("Empty message for kind %d in locale %s", k, l.Locale())
			}
		}
	}

	var nilLocalizer *Localizer
	if nilLocalizer.Message(KindNetwork) == "" {
		t.Error("nil localizer should fall back to English")
	}
}

func TestLocalizerMatching(t *testing.T) {
	tests := []struct {
		prefs []string
		want  language.Tag
	}{
		{[]string{"fr-CA"}, language.French},
		{[]string{"es-ES,es;q=0.9,en;q=0.8"}, language.Spanish},
		{[]string{"de-DE"}, language.English},
		{nil, language.English},
	}
	for _, tt := range tests {
		l := NewLocalizer(tt.prefs...)
		base, _ := l.Locale().Base()
		wantBase, _ := tt.want.Base()
		if base != wantBase {
			t.Errorf("NewLocalizer(%v) picked %s, want %s", tt.prefs, l.Locale(), tt.want)
		}
	}
}

func TestLocalizerMessageFor(t *testing.T) {
	l := NewLocalizer("fr")
	got := l.MessageFor(status.Error(codes.PermissionDenied, "denied"))
	if got != catalogs[language.French][KindPermissionDenied] {
		t.Errorf("Unexpected message: %q", got)
	}
}
