package environment_test

import (
	"testing"

	"github.com/bdobrica/mcp-auth-broker/common/environment"
)

func TestStringOr(t *testing.T) {
	t.Setenv("TEST_STRING", "hello")
	if got := environment.StringOr("TEST_STRING", "default"); got != "hello" {
		t.Errorf("expected %q, got %q", "hello", got)
	}
	if got := environment.StringOr("TEST_STRING_MISSING", "default"); got != "default" {
		t.Errorf("expected %q, got %q", "default", got)
	}
}

func TestRequiredString(t *testing.T) {
	t.Setenv("TEST_REQUIRED", "value")
	v, err := environment.RequiredString("TEST_REQUIRED")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != "value" {
		t.Errorf("expected %q, got %q", "value", v)
	}

	_, err = environment.RequiredString("TEST_REQUIRED_MISSING")
	if err == nil {
		t.Error("expected error for missing variable, got nil")
	}
}

func TestIntOr(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := environment.IntOr("TEST_INT", 0); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := environment.IntOr("TEST_INT_MISSING", 99); got != 99 {
		t.Errorf("expected 99, got %d", got)
	}
	t.Setenv("TEST_INT_BAD", "notanint")
	if got := environment.IntOr("TEST_INT_BAD", 7); got != 7 {
		t.Errorf("expected default 7 for bad value, got %d", got)
	}
}

func TestIntStrict(t *testing.T) {
	t.Setenv("TEST_INT_STRICT", "42")
	got, err := environment.IntStrict("TEST_INT_STRICT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}

	got, err = environment.IntStrict("TEST_INT_STRICT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error for unset variable: %v", err)
	}
	if got != 99 {
		t.Errorf("expected default 99, got %d", got)
	}

	t.Setenv("TEST_INT_STRICT_BAD", "notanint")
	if _, err := environment.IntStrict("TEST_INT_STRICT_BAD", 7); err == nil {
		t.Error("expected error for malformed value, got nil")
	}
}

func TestStringSliceOr(t *testing.T) {
	t.Setenv("TEST_SLICE", "a, b ,c")
	got := environment.StringSliceOr("TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("unexpected slice: %v", got)
	}

	def := []string{"x"}
	if got := environment.StringSliceOr("TEST_SLICE_MISSING", def); len(got) != 1 || got[0] != "x" {
		t.Errorf("expected default, got %v", got)
	}

	t.Setenv("TEST_SLICE_EMPTY", " , ,")
	if got := environment.StringSliceOr("TEST_SLICE_EMPTY", def); len(got) != 1 || got[0] != "x" {
		t.Errorf("expected default for all-empty list, got %v", got)
	}
}
