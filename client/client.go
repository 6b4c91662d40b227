// Package client defines the OAuth2 client entity and the registry the
// server resolves clients from. Registries are read-only during a request;
// a resolved client never changes while the request is processed.
package client

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Type string

const (
	TypeConfidential Type = "confidential"
	TypePublic       Type = "public"
)

var ErrNotFound = errors.New("client not found")

type Client struct {
	Type                 Type     `yaml:"type" json:"type" validate:"required,oneof=confidential public"`
	ID                   string   `yaml:"client_id" json:"client_id" validate:"required"`
	SecretHash           string   `yaml:"client_secret_hash" json:"client_secret_hash"`
	Name                 string   `yaml:"client_name" json:"client_name"`
	RedirectURIs         []string `yaml:"redirect_uris" json:"redirect_uris"`
	Scopes               []string `yaml:"scopes" json:"scopes"`
	AllowedOrigins       []string `yaml:"allowed_origins" json:"allowed_origins"`
	PostLogoutURIs       []string `yaml:"post_logout_redirect_uris" json:"post_logout_redirect_uris"`
	BackChannelLogoutURI string   `yaml:"back_channel_logout_uri" json:"back_channel_logout_uri"`
	AuthSource           string   `yaml:"auth_source" json:"auth_source"`
	// nil means enabled; disabling a client requires an explicit false
	Enabled *bool `yaml:"enabled" json:"enabled"`
}

func (c *Client) IsConfidential() bool {
	return c.Type == TypeConfidential
}

func (c *Client) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

func (c *Client) IsAllowedRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if uri == redirectURI {
			return true
		}
	}
	return false
}

func (c *Client) IsAllowedPostLogoutURI(postLogoutURI string) bool {
	for _, uri := range c.PostLogoutURIs {
		if uri == postLogoutURI {
			return true
		}
	}
	return false
}

func (c *Client) IsAllowedOrigin(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if o == origin {
			return true
		}
	}
	return false
}

func (c *Client) IsAllowedScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (c *Client) IsAllowedScopes(scopes []string) bool {
	for _, scope := range scopes {
		if !c.IsAllowedScope(scope) {
			return false
		}
	}
	return true
}

type Registry interface {
	GetClient(clientID string) (*Client, error)
	// FindByOrigin resolves the client that registered the given origin
	// in its CORS allow-list. Used by the token endpoint preflight.
	FindByOrigin(origin string) (*Client, error)
}

// StaticRegistry serves a fixed list of clients, typically loaded from the
// server configuration file.
type StaticRegistry struct {
	Clients []Client `yaml:"clients" json:"clients" validate:"required,dive,required"`
}

func NewStaticRegistry(clients []Client) *StaticRegistry {
	return &StaticRegistry{Clients: clients}
}

func LoadStaticRegistry(filename string) (*StaticRegistry, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read clients file '%s': %w", filename, err)
	}
	registry := new(StaticRegistry)
	if err := yaml.Unmarshal(data, registry); err != nil {
		return nil, fmt.Errorf("unmarshal clients file '%s': %w", filename, err)
	}
	return registry, nil
}

func (r *StaticRegistry) GetClient(clientID string) (*Client, error) {
	for i := range r.Clients {
		if r.Clients[i].ID == clientID {
			return &r.Clients[i], nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrNotFound, clientID)
}

func (r *StaticRegistry) FindByOrigin(origin string) (*Client, error) {
	for i := range r.Clients {
		if r.Clients[i].IsAllowedOrigin(origin) {
			return &r.Clients[i], nil
		}
	}
	return nil, fmt.Errorf("%w: no client allows origin '%s'", ErrNotFound, origin)
}
