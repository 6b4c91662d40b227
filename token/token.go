// Package token defines the token entities of the authorization server
// (authorization code, access token, refresh token), the repository they
// are persisted through, and the issuer that constructs them with
// collision-safe identifiers and signs the JWT representations.
package token

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateIdentifier is returned by a repository when persisting a
	// token whose identifier already exists. Collision probability is near
	// zero but must be handled, not assumed away; the issuer retries.
	ErrDuplicateIdentifier = errors.New("duplicate token identifier")
	ErrNotFound            = errors.New("token not found")
)

type AuthorizationCode struct {
	Identifier          string    `json:"identifier"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id,omitempty"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              []string  `json:"scopes"`
	Nonce               string    `json:"nonce,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	ExpiresAt           time.Time `json:"expires_at"`
	Revoked             bool      `json:"revoked"`
}

func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

type AccessToken struct {
	Identifier string    `json:"identifier"`
	ClientID   string    `json:"client_id"`
	UserID     string    `json:"user_id,omitempty"`
	Scopes     []string  `json:"scopes"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	// AuthCodeID chains the token to its originating authorization code,
	// allowing revocation of everything descending from a compromised code.
	AuthCodeID string `json:"auth_code_id,omitempty"`
}

func (t *AccessToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

type RefreshToken struct {
	Identifier string    `json:"identifier"`
	ClientID   string    `json:"client_id"`
	UserID     string    `json:"user_id,omitempty"`
	Scopes     []string  `json:"scopes"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	AuthCodeID string    `json:"auth_code_id,omitempty"`
}

func (t *RefreshToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Repository is the persistence contract of the token layer. Persist
// operations enforce identifier uniqueness and return
// ErrDuplicateIdentifier on violation. ConsumeAuthorizationCode is atomic:
// under concurrent redemption of the same code exactly one caller gets the
// code, all others get ErrNotFound. Revocation is monotonic; revoking an
// already revoked token is a no-op.
type Repository interface {
	PersistAuthorizationCode(code *AuthorizationCode) error
	ConsumeAuthorizationCode(identifier string) (*AuthorizationCode, error)

	PersistAccessToken(token *AccessToken) error
	GetAccessToken(identifier string) (*AccessToken, error)
	RevokeAccessToken(identifier string) error

	PersistRefreshToken(token *RefreshToken) error
	GetRefreshToken(identifier string) (*RefreshToken, error)
	RevokeRefreshToken(identifier string) error

	// RevokeDescendants revokes every access and refresh token that was
	// issued from the given authorization code.
	RevokeDescendants(authCodeID string) error
}
