package server

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/grant"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseDir            string   `yaml:"-"`
	Issuer             string   `yaml:"issuer" validate:"required"`
	SignPrivateKeyPath string   `yaml:"sign_private_key_path"`
	ScopesSupported    []string `yaml:"scopes_supported"`
	MetadataTemplate   Metadata `yaml:"metadata_template"`

	Clients     []client.Client `yaml:"clients" validate:"omitempty,dive"`
	ClientsPath string          `yaml:"clients_path"`

	Endpoints EndpointsConfig `yaml:"endpoints"`

	AccessTokenTTLSeconds       int `yaml:"access_token_ttl_seconds"`
	RefreshTokenTTLSeconds      int `yaml:"refresh_token_ttl_seconds"`
	AuthorizationCodeTTLSeconds int `yaml:"authorization_code_ttl_seconds"`
	ClockSkewLeewaySeconds      int `yaml:"clock_skew_leeway_seconds"`
	TokenIdentifierBytes        int `yaml:"token_identifier_bytes"`

	// nil means enabled
	RotateRefreshTokens         *bool    `yaml:"rotate_refresh_tokens"`
	RequirePKCEForPublicClients *bool    `yaml:"require_pkce_for_public_clients"`
	CodeChallengeMethods        []string `yaml:"code_challenge_methods"`

	UseFragmentInHttpErrorResponses bool `yaml:"use_fragment_in_http_error_responses"`

	BackChannelLogout BackChannelLogoutConfig `yaml:"back_channel_logout"`

	Valkey *ValkeyConfig `yaml:"valkey"`

	// set programmatically, not from the config file
	AuthenticateUserFunc AuthenticateUserFunc `yaml:"-"`
	ClaimsSource         grant.ClaimsSource   `yaml:"-"`
}

type BackChannelLogoutConfig struct {
	Concurrency           int  `yaml:"concurrency"`
	TimeoutSeconds        int  `yaml:"timeout_seconds"`
	InsecureSkipTLSVerify bool `yaml:"insecure_skip_tls_verify"`
}

type ValkeyConfig struct {
	Host     string `yaml:"host" validate:"required"`
	Port     int    `yaml:"port" validate:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

type EndpointsConfig struct {
	AuthorizationServerMetadata string `yaml:"authorization_server_metadata"`
	Jwks                        string `yaml:"jwks"`
	Authorization               string `yaml:"authorization"`
	Token                       string `yaml:"token"`
	EndSession                  string `yaml:"end_session"`
	Nonce                       string `yaml:"nonce"`
}

func (e *EndpointsConfig) applyDefaults(baseURI *url.URL) {
	basePath := strings.TrimRight(baseURI.Path, "/")
	if basePath == "/" {
		basePath = ""
	}

	if e.AuthorizationServerMetadata == "" {
		e.AuthorizationServerMetadata = basePath + "/.well-known/oauth-authorization-server"
	}
	if e.Jwks == "" {
		e.Jwks = basePath + "/jwks"
	}
	if e.Authorization == "" {
		e.Authorization = basePath + "/auth"
	}
	if e.Token == "" {
		e.Token = basePath + "/token"
	}
	if e.EndSession == "" {
		e.EndSession = basePath + "/logout"
	}
	if e.Nonce == "" {
		e.Nonce = basePath + "/nonce"
	}
}

// LoadConfigFile reads a YAML config, expanding ${ENV} references before
// decoding.
func LoadConfigFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", path, err)
	}

	expanded := os.ExpandEnv(string(content))

	cfg := new(Config)
	cfg.BaseDir = filepath.Dir(path)
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file '%s': %w", path, err)
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config file '%s': %w", path, err)
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	return validate.Struct(cfg)
}

func absPath(baseDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}
