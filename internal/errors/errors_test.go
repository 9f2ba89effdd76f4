package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsChains(t *testing.T) {
	base := New(KindRateLimit, "429 from model")
	wrapped := fmt.Errorf("attempt 3: %w", base)
	if KindOf(wrapped) != KindRateLimit {
		t.Errorf("KindOf(wrapped) = %v", KindOf(wrapped))
	}
	if KindOf(stderrors.New("plain")) != KindInternal {
		t.Error("unclassified error should be internal")
	}
	if !Is(wrapped, KindRateLimit) {
		t.Error("Is missed wrapped kind")
	}
	if Is(wrapped, KindTimeout) {
		t.Error("Is matched wrong kind")
	}
}

func TestRetryableKinds(t *testing.T) {
	cases := []struct {
		kind Kind
		want bool
	}{
		{KindTransport, true},
		{KindRateLimit, true},
		{KindTimeout, true},
		{KindSchema, true},
		{KindExhausted, false},
		{KindValidation, false},
		{KindAccessDenied, false},
		{KindConfiguration, false},
		{KindInternal, false},
	}
	for _, c := range cases {
		if got := IsRetryable(New(c.kind, "x")); got != c.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", c.kind, got, c.want)
		}
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("unclassified error retried")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(cause, KindTransport, "write object")
	if !stderrors.Is(err, cause) {
		t.Error("cause lost")
	}
	if err.Error() != "transport: write object: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestWithContext(t *testing.T) {
	err := New(KindSchema, "bad reply").WithContext("attempt", 3)
	if err.Context["attempt"] != 3 {
		t.Errorf("context = %v", err.Context)
	}
}

func TestSanitizeByKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{New(KindNotFound, "job xyz not found"), "Resource not found"},
		{New(KindAccessDenied, "key revoked by admin joe"), "Access denied"},
		{New(KindTimeout, "gemini deadline"), "Request timed out"},
		{New(KindValidation, "missing required fields: vendor"), "Validation error: missing required fields: vendor"},
	}
	for _, c := range cases {
		if got := Sanitize(c.err); got != c.want {
			t.Errorf("Sanitize(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestSanitizeBySubstring(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{stderrors.New("open /secret/path: no such file or directory"), "Resource not found"},
		{stderrors.New("dial tcp: connection refused"), "Connection error"},
		{stderrors.New("context deadline exceeded"), "Request timed out"},
		{stderrors.New("sqlite: constraint violated on table x"), "Internal error"},
	}
	for _, c := range cases {
		if got := Sanitize(c.err); got != c.want {
			t.Errorf("Sanitize(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestSanitizeNeverEchoesRawDetail(t *testing.T) {
	raw := stderrors.New("panic at /home/svc/keys/gemini.txt line 3")
	got := Sanitize(raw)
	if got != "Internal error" {
		t.Errorf("Sanitize = %q", got)
	}
}
