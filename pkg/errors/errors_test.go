package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeCartPersistence, status: http.StatusServiceUnavailable, publicMsg: "could not update your cart, please try again", retryable: true},
		{code: CodeCartMerge, status: http.StatusMultiStatus, publicMsg: "some items from your cart could not be saved", retryable: true, detailsOK: true},
		{code: CodePaymentCancelled, status: http.StatusBadRequest, publicMsg: "payment reference missing", retryable: true},
		{code: CodePaymentVerification, status: http.StatusPaymentRequired, publicMsg: "payment could not be verified", retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	base.WithDetails(map[string]any{"field": "foo"})
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeCartPersistence, cause, "upsert cart line")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeCartPersistence {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsAndHasCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodePaymentVerification, "declined"))
	if got := As(err); got == nil || got.Code() != CodePaymentVerification {
		t.Fatalf("As failed to return typed error")
	}
	if !HasCode(err, CodePaymentVerification) {
		t.Fatalf("expected HasCode to match")
	}
	if HasCode(err, CodeCartMerge) {
		t.Fatalf("unexpected code match")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestPublicMessageHidesCauses(t *testing.T) {
	raw := stdErrors.New("dial tcp 10.0.0.1:5432: connection refused")
	if got := PublicMessage(raw); got != "internal server error" {
		t.Fatalf("raw errors must not leak, got %q", got)
	}
	persist := Wrap(CodeCartPersistence, raw, "upsert failed")
	if got := PublicMessage(persist); got != "could not update your cart, please try again" {
		t.Fatalf("unexpected public message %q", got)
	}
	cancelled := New(CodePaymentCancelled, "payment reference missing")
	if got := PublicMessage(cancelled); got != "payment reference missing" {
		t.Fatalf("unexpected cancelled message %q", got)
	}
}
