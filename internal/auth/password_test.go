package auth

import (
	"strings"
	"testing"
)

func TestHashPassword_RoundTrip(t *testing.T) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	ok, err := VerifyPassword("correct-horse-battery-staple", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if !ok {
		t.Error("VerifyPassword() should return true for correct password")
	}

	ok, err = VerifyPassword("wrong-password", hash)
	if err != nil {
		t.Fatalf("VerifyPassword() error = %v", err)
	}
	if ok {
		t.Error("VerifyPassword() should return false for wrong password")
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	hash1, _ := HashPassword("same-password") //nolint:errcheck // compared below
	hash2, _ := HashPassword("same-password") //nolint:errcheck // compared below
	if hash1 == hash2 {
		t.Error("two hashes of the same password should have different salts")
	}
}

func TestHashPassword_PHCFormat(t *testing.T) {
	hash, err := HashPassword("test")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("PHC format should have 6 parts, got %d: %q", len(parts), hash)
	}
	if parts[1] != "argon2id" || parts[2] != "v=19" || parts[3] != "m=65536,t=3,p=1" {
		t.Errorf("unexpected PHC header: %q", hash)
	}
}

func TestVerifyPassword_InvalidFormat(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not PHC", "plaintext"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=65536,t=3,p=1"},
		{"wrong version", "$argon2id$v=16$m=65536,t=3,p=1$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=65536,t=3,p=1$!!!$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := VerifyPassword("password", tt.hash); err == nil {
				t.Error("VerifyPassword() should return error for invalid hash format")
			}
		})
	}
}
