package crypto

import "testing"

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("HashPassword returned error: %v", err)
	}
	if hash == "hunter22" {
		t.Fatal("expected hash to differ from plaintext")
	}

	if !VerifyPassword(hash, "hunter22") {
		t.Fatal("expected password to verify")
	}
	if VerifyPassword(hash, "wrong") {
		t.Fatal("expected mismatched password to fail")
	}
}

func TestGenerateTokenLengthAndUniqueness(t *testing.T) {
	first, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex characters for 32 bytes, got %d", len(first))
	}

	second, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("GenerateToken returned error: %v", err)
	}
	if first == second {
		t.Fatal("expected successive tokens to differ")
	}
}
