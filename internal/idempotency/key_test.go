package idempotency

import (
	"errors"
	"strings"
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"simple key", "abc123", false},
		{"uuid-shaped key", "5b7c9e3a-1f2d-4c6b-8a9e-0d1f2a3b4c5d", false},
		{"single character", "x", false},
		{"exactly 50 characters", strings.Repeat("k", 50), false},
		{"empty", "", true},
		{"51 characters", strings.Repeat("k", 51), true},
		{"newline", "abc\ndef", true},
		{"tab", "abc\tdef", true},
		{"non-ascii", "abcé", true},
		{"nul byte", "abc\x00def", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseKey(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKey(%q) = %v, want error", tt.raw, key)
				}
				if !errors.Is(err, ErrInvalidKey) {
					t.Errorf("error should wrap ErrInvalidKey, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey(%q) failed: %v", tt.raw, err)
			}
			if key.String() != tt.raw {
				t.Errorf("key round-trip: got %q, want %q", key.String(), tt.raw)
			}
		})
	}
}
