package utils

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFirstOfMonth(t *testing.T) {
	in := time.Date(2024, 3, 17, 15, 42, 9, 0, time.UTC)
	got := FirstOfMonth(in)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("FirstOfMonth(%s) = %s, want %s", in, got, want)
	}
	if !FirstOfMonth(got).Equal(got) {
		t.Fatal("FirstOfMonth must be idempotent")
	}
}

func TestFirstOfMonthNonUTCInput(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	in := time.Date(2024, 6, 30, 23, 0, 0, 0, loc)
	got := FirstOfMonth(in)
	want := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("FirstOfMonth(%s) = %s, want %s", in, got, want)
	}
}

func TestMonthRange(t *testing.T) {
	start, end := MonthRange(time.Date(2024, 2, 10, 12, 0, 0, 0, time.UTC))
	if !start.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start %s", start)
	}
	// Leap February: the exclusive end is March 1st.
	if !end.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected end %s", end)
	}
}

func TestMonthsBetween(t *testing.T) {
	got := MonthsBetween(
		time.Date(2023, 11, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC),
	)
	want := []time.Time{
		time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d months, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("month %d: got %s, want %s", i, got[i], want[i])
		}
	}
}

func TestMonthsBetweenSingleMonth(t *testing.T) {
	got := MonthsBetween(
		time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC),
	)
	if len(got) != 1 || !got[0].Equal(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected single May boundary, got %v", got)
	}
}

func TestMonthsBetweenInverted(t *testing.T) {
	got := MonthsBetween(
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	)
	if len(got) != 0 {
		t.Fatalf("expected empty range, got %v", got)
	}
}

func TestUniqueSlice(t *testing.T) {
	got := UniqueSlice([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v (order must be preserved)", want, got)
		}
	}
}

func TestParseDecimal(t *testing.T) {
	dec, err := ParseDecimal("  105.37 ")
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Equal(decimal.RequireFromString("105.37")) {
		t.Fatalf("got %s", dec)
	}

	dec, err = ParseDecimal("")
	if err != nil || !dec.IsZero() {
		t.Fatalf("empty input should parse to zero, got (%s, %v)", dec, err)
	}

	if _, err = ParseDecimal("abc"); err == nil {
		t.Fatal("expected error for non-numeric input")
	}
}

func TestConvertToDate(t *testing.T) {
	// 2024-03-01 01:30 UTC is still Feb 29 in São Paulo (UTC-3).
	in := time.Date(2024, 3, 1, 1, 30, 0, 0, time.UTC)
	got, err := ConvertToDate(in, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Year() != 2024 || got.Month() != time.February || got.Day() != 29 {
		t.Fatalf("expected Feb 29 in default timezone, got %s", got)
	}
	if got.Hour() != 0 || got.Minute() != 0 {
		t.Fatalf("expected midnight, got %s", got)
	}

	if _, err := ConvertToDate(in, "Not/AZone"); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestDereferencePtr(t *testing.T) {
	v := 42
	if got := DereferencePtr(&v); got != 42 {
		t.Fatalf("got %d", got)
	}
	if got := DereferencePtr[int](nil, 7); got != 7 {
		t.Fatalf("got %d", got)
	}
	if got := DereferencePtr[string](nil); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestNilIfEmpty(t *testing.T) {
	if NilIfEmpty("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if got := NilIfEmpty("x"); got == nil || *got != "x" {
		t.Fatal("non-empty value should round-trip")
	}
}
