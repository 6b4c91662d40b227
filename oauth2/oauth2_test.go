package oauth2

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestVerifyCodeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

	if !VerifyCodeChallenge(S256ChallengeFromVerifier(verifier), CodeChallengeMethodS256, verifier) {
		t.Error("S256 challenge does not verify against its own verifier")
	}
	if VerifyCodeChallenge(S256ChallengeFromVerifier(verifier), CodeChallengeMethodS256, verifier+"x") {
		t.Error("S256 challenge verifies against a wrong verifier")
	}
	if !VerifyCodeChallenge(verifier, CodeChallengeMethodPlain, verifier) {
		t.Error("plain challenge does not verify against itself")
	}
	if VerifyCodeChallenge(verifier, "unknown", verifier) {
		t.Error("unknown challenge method must never verify")
	}
}

func TestValidCodeVerifier(t *testing.T) {
	cases := []struct {
		verifier string
		valid    bool
	}{
		{"dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk", true},
		{strings.Repeat("a", 43), true},
		{strings.Repeat("a", 128), true},
		{strings.Repeat("a", 42), false},
		{strings.Repeat("a", 129), false},
		{strings.Repeat("a", 42) + "!", false},
		{"", false},
	}
	for _, c := range cases {
		if got := ValidCodeVerifier(c.verifier); got != c.valid {
			t.Errorf("ValidCodeVerifier(%q) = %v, expected %v", c.verifier, got, c.valid)
		}
	}
}

func TestErrorMarshalsToRFCShape(t *testing.T) {
	protocolError := InvalidScope("scope 'admin' not allowed").WithHint("allowed: %s", "openid profile")
	protocolError.State = "xyz"

	body, err := json.Marshal(protocolError)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]string
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["error"] != ErrorInvalidScope {
		t.Errorf("unexpected error code: %s", decoded["error"])
	}
	if !strings.Contains(decoded["error_description"], "allowed: openid profile") {
		t.Errorf("hint missing from description: %s", decoded["error_description"])
	}
	if decoded["state"] != "xyz" {
		t.Errorf("state missing: %v", decoded)
	}
}

func TestWithRedirectDoesNotMutateOriginal(t *testing.T) {
	original := InvalidRequest("missing parameter")
	redirected := original.WithRedirect("https://app.example.com/cb", "abc", true)

	if original.RedirectURI != "" || original.State != "" {
		t.Error("WithRedirect mutated the original error")
	}
	if redirected.RedirectURI != "https://app.example.com/cb" || !redirected.UseFragment {
		t.Error("redirect attributes not applied")
	}
}
