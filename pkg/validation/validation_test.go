package validation

import (
	"testing"

	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
)

type sample struct {
	Email string       `json:"email" validate:"required,email"`
	Items []sampleItem `json:"items" validate:"required,min=1,dive"`
}

type sampleItem struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

func TestStructReportsJSONFieldNames(t *testing.T) {
	t.Parallel()

	err := Struct(sample{Email: "nope", Items: []sampleItem{{ProductID: "", Quantity: 0}}})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details type %T", typed.Details())
	}
	want := map[string]string{
		"email":               "must be a valid email",
		"items[0].product_id": "is required",
		"items[0].quantity":   "must be at least 1",
	}
	for field, msg := range want {
		if details[field] != msg {
			t.Fatalf("field %s: expected %q, got %q (all: %v)", field, msg, details[field], details)
		}
	}
}

func TestStructAcceptsValidInput(t *testing.T) {
	t.Parallel()

	if err := Struct(sample{Email: "ada@example.com", Items: []sampleItem{{ProductID: "A", Quantity: 2}}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
