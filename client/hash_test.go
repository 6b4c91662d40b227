package client

import (
	"strings"
	"testing"
)

func TestHashAndVerifySecret(t *testing.T) {
	hash, err := HashSecret("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if !strings.Contains(hash, ".") {
		t.Fatalf("hash has no salt separator: %s", hash)
	}

	ok, err := VerifySecretHash("correct horse battery staple", hash)
	if err != nil {
		t.Fatalf("VerifySecretHash failed: %v", err)
	}
	if !ok {
		t.Error("correct secret does not verify")
	}

	ok, err = VerifySecretHash("wrong secret", hash)
	if err != nil {
		t.Fatalf("VerifySecretHash failed: %v", err)
	}
	if ok {
		t.Error("wrong secret verifies")
	}
}

func TestHashSecretIsSalted(t *testing.T) {
	first, _ := HashSecret("secret")
	second, _ := HashSecret("secret")
	if first == second {
		t.Error("two hashes of the same secret are equal, salt is not applied")
	}
}

func TestVerifySecretHashRejectsMalformedHash(t *testing.T) {
	if _, err := VerifySecretHash("secret", "not-a-hash"); err == nil {
		t.Error("expected an error for a malformed hash")
	}
}
