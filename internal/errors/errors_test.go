package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestFieldErrors_CollectsAll(t *testing.T) {
	ferrs := NewFieldErrors()

	ferrs.AddMissing("humidity")
	ferrs.AddMissing("pm10")
	ferrs.AddOutOfRange("aqi", 9, 1, 5)

	if !ferrs.HasErrors() {
		t.Fatal("expected errors")
	}

	fields := ferrs.Fields()
	want := []string{"humidity", "pm10", "aqi"}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d: %v", len(want), len(fields), fields)
	}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("field %d: got %q, want %q", i, fields[i], f)
		}
	}
}

func TestFieldErrors_Err(t *testing.T) {
	ferrs := NewFieldErrors()

	if err := ferrs.Err(); err != nil {
		t.Errorf("empty collector should return nil, got %v", err)
	}

	ferrs.AddMissing("location")

	err := ferrs.Err()
	if err == nil {
		t.Fatal("expected error")
	}

	if !Is(err, ErrMissingField) {
		t.Error("expected errors.Is to match ErrMissingField")
	}

	var fe *FieldErrors
	if !As(err, &fe) {
		t.Fatal("expected errors.As to extract *FieldErrors")
	}
	if len(fe.Errors) != 1 {
		t.Errorf("expected 1 error, got %d", len(fe.Errors))
	}
}

func TestFieldErrors_ErrorMessage(t *testing.T) {
	ferrs := NewFieldErrors()
	ferrs.AddMissing("humidity")
	ferrs.AddMissing("pm10")

	msg := ferrs.Error()
	if msg == "" {
		t.Fatal("expected a message")
	}
	for _, field := range []string{"humidity", "pm10"} {
		if !strings.Contains(msg, field) {
			t.Errorf("message %q does not name field %q", msg, field)
		}
	}
}

func TestIsValidation(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{ErrMissingField, true},
		{ErrOutOfRange, true},
		{ErrInvalidValue, true},
		{fmt.Errorf("aqi: %w", ErrOutOfRange), true},
		{ErrConflict, false},
		{ErrUnavailable, false},
		{nil, false},
	}

	for _, tc := range cases {
		if got := IsValidation(tc.err); got != tc.want {
			t.Errorf("IsValidation(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestIsRetriable(t *testing.T) {
	if !IsRetriable(Wrap(ErrUnavailable, "insert")) {
		t.Error("unavailable should be retriable")
	}
	if IsRetriable(ErrConflict) {
		t.Error("conflict must never be retriable")
	}
	if IsRetriable(ErrCorrupt) {
		t.Error("corrupt must never be retriable")
	}
}

func TestNewConflict(t *testing.T) {
	err := NewConflict("APC-001", "2024-01-01T00:00:00Z")
	if !IsConflict(err) {
		t.Error("expected a conflict error")
	}
	if !strings.Contains(err.Error(), "APC-001") {
		t.Errorf("error %q does not name the device", err)
	}
}
