package client

import (
	"errors"
	"testing"
)

func testRegistry() *StaticRegistry {
	disabled := false
	return NewStaticRegistry([]Client{
		{
			Type:           TypePublic,
			ID:             "spa-client",
			RedirectURIs:   []string{"https://app.example.com/callback"},
			Scopes:         []string{"openid", "profile"},
			AllowedOrigins: []string{"https://app.example.com"},
		},
		{
			Type:       TypeConfidential,
			ID:         "backend-client",
			SecretHash: "irrelevant",
			Scopes:     []string{"api"},
		},
		{
			Type:    TypePublic,
			ID:      "disabled-client",
			Enabled: &disabled,
		},
	})
}

func TestGetClient(t *testing.T) {
	registry := testRegistry()

	c, err := registry.GetClient("spa-client")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if c.IsConfidential() {
		t.Error("spa-client must be public")
	}

	if _, err := registry.GetClient("unknown"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindByOrigin(t *testing.T) {
	registry := testRegistry()

	c, err := registry.FindByOrigin("https://app.example.com")
	if err != nil {
		t.Fatalf("FindByOrigin failed: %v", err)
	}
	if c.ID != "spa-client" {
		t.Errorf("unexpected client: %s", c.ID)
	}

	if _, err := registry.FindByOrigin("https://evil.example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestClientEnabledDefault(t *testing.T) {
	registry := testRegistry()

	c, _ := registry.GetClient("spa-client")
	if !c.IsEnabled() {
		t.Error("client without enabled flag must default to enabled")
	}

	c, _ = registry.GetClient("disabled-client")
	if c.IsEnabled() {
		t.Error("explicitly disabled client reports enabled")
	}
}

func TestClientAllowances(t *testing.T) {
	registry := testRegistry()
	c, _ := registry.GetClient("spa-client")

	if !c.IsAllowedRedirectURI("https://app.example.com/callback") {
		t.Error("registered redirect URI rejected")
	}
	if c.IsAllowedRedirectURI("https://app.example.com/callback/../evil") {
		t.Error("unregistered redirect URI accepted")
	}
	if !c.IsAllowedScopes([]string{"openid", "profile"}) {
		t.Error("registered scopes rejected")
	}
	if c.IsAllowedScopes([]string{"openid", "admin"}) {
		t.Error("unregistered scope accepted")
	}
}
