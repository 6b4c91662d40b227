package server

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigFileExpandsEnv(t *testing.T) {
	t.Setenv("TEST_OP_ISSUER", "https://op.example.com")

	path := filepath.Join(t.TempDir(), "op.yaml")
	content := `
issuer: ${TEST_OP_ISSUER}
scopes_supported:
  - openid
clients:
  - type: public
    client_id: spa-client
    redirect_uris:
      - https://app.example.com/callback
access_token_ttl_seconds: 120
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Issuer != "https://op.example.com" {
		t.Errorf("env reference not expanded: %s", cfg.Issuer)
	}
	if cfg.AccessTokenTTLSeconds != 120 {
		t.Errorf("unexpected TTL: %d", cfg.AccessTokenTTLSeconds)
	}
	if len(cfg.Clients) != 1 || cfg.Clients[0].ID != "spa-client" {
		t.Errorf("clients not decoded: %+v", cfg.Clients)
	}
	if cfg.BaseDir != filepath.Dir(path) {
		t.Errorf("unexpected base dir: %s", cfg.BaseDir)
	}
}

func TestLoadConfigFileRejectsMissingIssuer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "op.yaml")
	if err := os.WriteFile(path, []byte("scopes_supported: [openid]\n"), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	if _, err := LoadConfigFile(path); err == nil {
		t.Fatal("expected validation to fail without an issuer")
	}
}

func TestEndpointDefaultsHonorBasePath(t *testing.T) {
	issuerURI, _ := url.Parse("https://op.example.com/op")
	endpoints := &EndpointsConfig{}
	endpoints.applyDefaults(issuerURI)

	if endpoints.Authorization != "/op/auth" {
		t.Errorf("unexpected authorization path: %s", endpoints.Authorization)
	}
	if endpoints.Token != "/op/token" {
		t.Errorf("unexpected token path: %s", endpoints.Token)
	}
	if endpoints.AuthorizationServerMetadata != "/op/.well-known/oauth-authorization-server" {
		t.Errorf("unexpected metadata path: %s", endpoints.AuthorizationServerMetadata)
	}

	// explicit values win over defaults
	custom := &EndpointsConfig{Token: "/custom-token"}
	custom.applyDefaults(issuerURI)
	if custom.Token != "/custom-token" {
		t.Errorf("explicit path overwritten: %s", custom.Token)
	}
}
