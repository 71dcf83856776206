package util

import "testing"

// TestClampPage verifies skip and limit normalisation.
func TestClampPage(t *testing.T) {
	cases := []struct {
		skip, limit         int
		wantSkip, wantLimit int
	}{
		{-3, 0, 0, DefaultPageLimit},
		{10, 20, 10, 20},
		{0, 1000, 0, MaxPageLimit},
	}
	for _, c := range cases {
		skip, limit := ClampPage(c.skip, c.limit)
		if skip != c.wantSkip || limit != c.wantLimit {
			t.Fatalf("ClampPage(%d, %d) = %d, %d", c.skip, c.limit, skip, limit)
		}
	}
}

// TestParseUintPtr verifies empty input is nil and garbage is an error.
func TestParseUintPtr(t *testing.T) {
	if v, err := ParseUintPtr(""); v != nil || err != nil {
		t.Fatalf("expected nil, nil; got %v, %v", v, err)
	}
	if v, err := ParseUintPtr("42"); err != nil || v == nil || *v != 42 {
		t.Fatalf("expected 42, got %v, %v", v, err)
	}
	if _, err := ParseUintPtr("-1"); err == nil {
		t.Fatalf("expected error for negative id")
	}
}
