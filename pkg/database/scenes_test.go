package database

import (
	"errors"
	"testing"
)

// TestRandomBase62String checks length and alphabet of generated
// short codes across many draws.
func TestRandomBase62String(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := randomBase62String(shortCodeLength)
		if err != nil {
			t.Fatalf("randomBase62String: %v", err)
		}
		if len(code) != shortCodeLength {
			t.Fatalf("code %q has length %d, want %d", code, len(code), shortCodeLength)
		}
		if !isBase62(code) {
			t.Fatalf("code %q contains characters outside the alphabet", code)
		}
		seen[code] = true
	}
	// 200 draws from 62^6 possibilities should not collide.
	if len(seen) < 200 {
		t.Fatalf("only %d distinct codes in 200 draws", len(seen))
	}
}

// TestIsBase62 checks the validator against valid codes and the usual
// junk that arrives in URLs.
func TestIsBase62(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"aB3xZ9", true},
		{"000000", true},
		{"", false},
		{"ab-cd", false},
		{"ab cd", false},
		{"ab/..", false},
	}
	for _, tc := range tests {
		if got := isBase62(tc.code); got != tc.want {
			t.Errorf("isBase62(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

// TestIsUniqueConstraintError covers the duplicate-error phrasings of
// the engines we ship.
func TestIsUniqueConstraintError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("UNIQUE constraint failed: scenes.code"), true},
		{errors.New(`duplicate key value violates unique constraint "scenes_code_key"`), true},
		{errors.New("Constraint Error: Duplicate key violates unique constraint"), true},
		{errors.New("connection refused"), false},
	}
	for _, tc := range tests {
		if got := isUniqueConstraintError(tc.err); got != tc.want {
			t.Errorf("isUniqueConstraintError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}
