package nonce

import "testing"

func TestNonceIsSingleUse(t *testing.T) {
	service, err := NewService()
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	value, err := service.Get()
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if value == "" {
		t.Fatal("empty nonce")
	}

	if err := service.Redeem(value); err != nil {
		t.Fatalf("first redeem failed: %v", err)
	}
	if err := service.Redeem(value); err == nil {
		t.Fatal("second redeem must fail")
	}
}

func TestNoncesAreUnique(t *testing.T) {
	service, err := NewService()
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		value, err := service.Get()
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if seen[value] {
			t.Fatalf("duplicate nonce after %d draws", i)
		}
		seen[value] = true
	}
}
