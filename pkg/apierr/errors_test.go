package apierr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error_WithAndWithoutCause(t *testing.T) {
	plain := Validation("bad input")
	if plain.Error() != "validation: bad input" {
		t.Errorf("Error() = %q, want %q", plain.Error(), "validation: bad input")
	}

	wrapped := Wrap(KindInternal, "lookup failed", errors.New("connection refused"))
	want := "internal: lookup failed: connection refused"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("timed out")
	err := Wrap(KindTimeout, "poll failed", cause)
	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(wrapped, cause) = false, want true")
	}
}

func TestError_WithDetails_DoesNotMutateOriginal(t *testing.T) {
	original := Validation("bad field")
	detailed := original.WithDetails(map[string]any{"field": "width"})

	if original.Details != nil {
		t.Errorf("original.Details = %v, want nil (WithDetails should not mutate)", original.Details)
	}
	if detailed.Details["field"] != "width" {
		t.Errorf("detailed.Details[field] = %v, want width", detailed.Details["field"])
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindValidation:         400,
		KindBadCursor:          400,
		KindNotFound:           404,
		KindBackendUnavailable: 503,
		KindBackendRejected:    422,
		KindTimeout:            504,
		KindCancelled:          200,
		KindOutputMissing:      500,
		KindInternal:           500,
		Kind("unknown"):        500,
	}
	for kind, want := range cases {
		if got := HTTPStatus(kind); got != want {
			t.Errorf("HTTPStatus(%q) = %d, want %d", kind, got, want)
		}
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(KindBackendUnavailable) {
		t.Errorf("IsRetryable(BackendUnavailable) = false, want true")
	}
	if IsRetryable(KindValidation) {
		t.Errorf("IsRetryable(Validation) = true, want false")
	}
}

func TestAs_DirectAndWrapped(t *testing.T) {
	direct := NotFound("missing")
	if ae, ok := As(direct); !ok || ae.Kind != KindNotFound {
		t.Errorf("As(direct) = %+v, %v, want the *Error unchanged", ae, ok)
	}

	wrapped := fmt.Errorf("handler failed: %w", NotFound("missing"))
	ae, ok := As(wrapped)
	if !ok {
		t.Fatalf("As(wrapped) did not find the underlying *Error")
	}
	if ae.Kind != KindNotFound {
		t.Errorf("As(wrapped).Kind = %q, want %q", ae.Kind, KindNotFound)
	}
}

func TestAs_PlainErrorNotFound(t *testing.T) {
	if _, ok := As(errors.New("plain")); ok {
		t.Errorf("As(plain error) = true, want false")
	}
}
