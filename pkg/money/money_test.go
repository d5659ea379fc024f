package money

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestToMinorUnits(t *testing.T) {
	cases := []struct {
		name    string
		amount  string
		want    int64
		wantErr error
	}{
		{name: "whole", amount: "2000", want: 200000},
		{name: "cents", amount: "19.99", want: 1999},
		{name: "zero", amount: "0", want: 0},
		{name: "negative", amount: "-1", wantErr: ErrNegativeAmount},
		{name: "sub minor", amount: "1.005", wantErr: ErrFractionalMinor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToMinorUnits(decimal.RequireFromString(tc.amount))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, got)
			}
		})
	}
}

func TestFromMinorUnits(t *testing.T) {
	got := FromMinorUnits(200050)
	if !got.Equal(decimal.RequireFromString("2000.5")) {
		t.Fatalf("unexpected major amount %s", got)
	}
	if Format(got) != "2000.50" {
		t.Fatalf("unexpected format %s", Format(got))
	}
}

func TestLineTotal(t *testing.T) {
	total, err := LineTotal(decimal.RequireFromString("12.50"), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !total.Equal(decimal.RequireFromString("37.5")) {
		t.Fatalf("unexpected total %s", total)
	}
	if _, err := LineTotal(decimal.NewFromInt(1), 0); !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}

func TestParse(t *testing.T) {
	amount, err := Parse(" 2000 ")
	if err != nil || !amount.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected parse result %s err=%v", amount, err)
	}
	if _, err := Parse(""); err == nil {
		t.Fatal("expected error for empty amount")
	}
	if _, err := Parse("abc"); err == nil {
		t.Fatal("expected error for garbage")
	}
}
