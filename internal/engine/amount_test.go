package engine

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func mustAmount(t *testing.T, s string) Amount {
	t.Helper()
	a, err := ParseAmount(s)
	if err != nil {
		t.Fatalf("ParseAmount(%q): %v", s, err)
	}
	return a
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in    string
		units int64
	}{
		{"0", 0},
		{"0.0", 0},
		{"1", 10000},
		{"1.5", 15000},
		{"2.0", 20000},
		{"0.0001", 1},
		{"123.4567", 1234567},
		{"1.50000", 15000}, // trailing zeros beyond scale are harmless
		{"-4.0", -40000},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", tc.in, err)
		}
		if int64(got) != tc.units {
			t.Fatalf("ParseAmount(%q) = %d units, want %d", tc.in, int64(got), tc.units)
		}
	}
}

func TestParseAmountRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "1,5", "1.2.3", "0.00001", "1e-5"} {
		if _, err := ParseAmount(in); err == nil {
			t.Fatalf("ParseAmount(%q): expected error", in)
		}
	}
}

func TestParseAmountOverflow(t *testing.T) {
	if _, err := ParseAmount("99999999999999999999.0"); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected ErrAmountOverflow, got %v", err)
	}
}

func TestAmountString(t *testing.T) {
	cases := map[string]string{
		"0":        "0.0000",
		"1.5":      "1.5000",
		"-4":       "-4.0000",
		"123.4567": "123.4567",
		"0.0001":   "0.0001",
	}
	for in, want := range cases {
		if got := mustAmount(t, in).String(); got != want {
			t.Fatalf("String(%s) = %q, want %q", in, got, want)
		}
	}
}

func TestAmountCheckedArithmetic(t *testing.T) {
	a := mustAmount(t, "1.5")
	b := mustAmount(t, "2.25")

	sum, err := a.Add(b)
	if err != nil || sum.String() != "3.7500" {
		t.Fatalf("Add = %v, %v", sum, err)
	}
	diff, err := a.Sub(b)
	if err != nil || diff.String() != "-0.7500" {
		t.Fatalf("Sub = %v, %v", diff, err)
	}

	max := Amount(math.MaxInt64)
	if _, err := max.Add(1); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow on Add, got %v", err)
	}
	min := Amount(math.MinInt64)
	if _, err := min.Sub(1); !errors.Is(err, ErrAmountOverflow) {
		t.Fatalf("expected overflow on Sub, got %v", err)
	}
}

func TestAmountNeg(t *testing.T) {
	a := mustAmount(t, "1.5")
	if !a.Neg().IsNegative() || a.Neg().String() != "-1.5000" {
		t.Fatalf("Neg = %s", a.Neg())
	}
	if a.IsNegative() || !Amount(0).IsZero() {
		t.Fatalf("sign predicates broken")
	}
}

func TestAmountJSONRoundTrip(t *testing.T) {
	a := mustAmount(t, "12.3456")
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"12.3456"` {
		t.Fatalf("marshal = %s", data)
	}
	var back Amount
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != a {
		t.Fatalf("round trip mismatch: %v != %v", back, a)
	}
}
