package token

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// MaxGenerationAttempts bounds the identifier-collision retry loop.
const MaxGenerationAttempts = 5

type IssuerConfig struct {
	// Issuer is the value of the iss claim, the server's issuer URI.
	Issuer          string
	SignKey         jwk.Key
	Repository      Repository
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	AuthCodeTTL     time.Duration
	IdentifierBytes int
	Logger          *slog.Logger
}

// Issuer constructs and persists tokens. Every issued token gets an expiry
// relative to the configured TTL; no token is created without one.
type Issuer struct {
	cfg IssuerConfig
}

func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if cfg.Issuer == "" {
		return nil, fmt.Errorf("issuer URI is required")
	}
	if cfg.SignKey == nil {
		return nil, fmt.Errorf("signing key is required")
	}
	if cfg.Repository == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = 5 * time.Minute
	}
	if cfg.RefreshTokenTTL <= 0 {
		cfg.RefreshTokenTTL = 24 * time.Hour
	}
	if cfg.AuthCodeTTL <= 0 {
		cfg.AuthCodeTTL = time.Minute
	}
	if cfg.IdentifierBytes <= 0 {
		cfg.IdentifierBytes = DefaultIdentifierBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Issuer{cfg: cfg}, nil
}

func (i *Issuer) AccessTokenTTL() time.Duration {
	return i.cfg.AccessTokenTTL
}

// IssueAuthorizationCode persists a new code bound to client, user and
// redirect URI.
func (i *Issuer) IssueAuthorizationCode(clientID, userID, redirectURI string, scopes []string, nonce, codeChallenge, codeChallengeMethod string) (*AuthorizationCode, error) {
	for attempt := 0; attempt < MaxGenerationAttempts; attempt++ {
		code := &AuthorizationCode{
			Identifier:          GenerateIdentifier(i.cfg.IdentifierBytes),
			ClientID:            clientID,
			UserID:              userID,
			RedirectURI:         redirectURI,
			Scopes:              scopes,
			Nonce:               nonce,
			CodeChallenge:       codeChallenge,
			CodeChallengeMethod: codeChallengeMethod,
			ExpiresAt:           time.Now().Add(i.cfg.AuthCodeTTL),
		}
		err := i.cfg.Repository.PersistAuthorizationCode(code)
		if err == nil {
			return code, nil
		}
		if !errors.Is(err, ErrDuplicateIdentifier) {
			return nil, fmt.Errorf("persist authorization code: %w", err)
		}
	}
	return nil, fmt.Errorf("issue authorization code after %d attempts: %w", MaxGenerationAttempts, ErrDuplicateIdentifier)
}

// IssueAccessToken retries identifier generation up to
// MaxGenerationAttempts times. An access token is mandatory for a successful
// token response, so exhaustion surfaces as an error.
func (i *Issuer) IssueAccessToken(clientID, userID string, scopes []string, authCodeID string) (*AccessToken, error) {
	for attempt := 0; attempt < MaxGenerationAttempts; attempt++ {
		token := &AccessToken{
			Identifier: GenerateIdentifier(i.cfg.IdentifierBytes),
			ClientID:   clientID,
			UserID:     userID,
			Scopes:     scopes,
			ExpiresAt:  time.Now().Add(i.cfg.AccessTokenTTL),
			AuthCodeID: authCodeID,
		}
		err := i.cfg.Repository.PersistAccessToken(token)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrDuplicateIdentifier) {
			return nil, fmt.Errorf("persist access token: %w", err)
		}
	}
	return nil, fmt.Errorf("issue access token after %d attempts: %w", MaxGenerationAttempts, ErrDuplicateIdentifier)
}

// IssueRefreshToken returns nil when the retry budget is exhausted: a
// refresh token is optional in a token response, so the client simply does
// not get one. The failure is logged, not surfaced.
func (i *Issuer) IssueRefreshToken(clientID, userID string, scopes []string, authCodeID string) *RefreshToken {
	for attempt := 0; attempt < MaxGenerationAttempts; attempt++ {
		token := &RefreshToken{
			Identifier: GenerateIdentifier(i.cfg.IdentifierBytes),
			ClientID:   clientID,
			UserID:     userID,
			Scopes:     scopes,
			ExpiresAt:  time.Now().Add(i.cfg.RefreshTokenTTL),
			AuthCodeID: authCodeID,
		}
		err := i.cfg.Repository.PersistRefreshToken(token)
		if err == nil {
			return token
		}
		if !errors.Is(err, ErrDuplicateIdentifier) {
			i.cfg.Logger.Error("persist refresh token failed", "error", err)
			return nil
		}
	}
	i.cfg.Logger.Error("refresh token identifier generation exhausted", "attempts", MaxGenerationAttempts)
	return nil
}

// SignAccessToken returns the signed JWT representation of the token.
func (i *Issuer) SignAccessToken(token *AccessToken) (string, error) {
	now := time.Now()
	accessJwt := jwt.New()
	accessJwt.Set(jwt.IssuerKey, i.cfg.Issuer)
	accessJwt.Set(jwt.AudienceKey, token.ClientID)
	if token.UserID != "" {
		accessJwt.Set(jwt.SubjectKey, token.UserID)
	}
	accessJwt.Set(jwt.JwtIDKey, token.Identifier)
	accessJwt.Set(jwt.IssuedAtKey, now)
	accessJwt.Set(jwt.NotBeforeKey, now)
	accessJwt.Set(jwt.ExpirationKey, token.ExpiresAt)
	if len(token.Scopes) > 0 {
		accessJwt.Set("scope", strings.Join(token.Scopes, " "))
	}

	signed, err := jwt.Sign(accessJwt, jwt.WithKey(jwa.ES256, i.cfg.SignKey))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return string(signed), nil
}

// SignIDToken builds and signs an OIDC ID token. The extra claims map is
// already filtered by granted scope by the caller.
func (i *Issuer) SignIDToken(clientID, userID, nonce string, claims map[string]any) (string, error) {
	now := time.Now()
	idJwt := jwt.New()
	idJwt.Set(jwt.IssuerKey, i.cfg.Issuer)
	idJwt.Set(jwt.AudienceKey, clientID)
	idJwt.Set(jwt.SubjectKey, userID)
	idJwt.Set(jwt.JwtIDKey, GenerateIdentifier(16))
	idJwt.Set(jwt.IssuedAtKey, now)
	idJwt.Set(jwt.ExpirationKey, now.Add(i.cfg.AccessTokenTTL))
	if nonce != "" {
		idJwt.Set("nonce", nonce)
	}
	for name, value := range claims {
		if err := idJwt.Set(name, value); err != nil {
			return "", fmt.Errorf("set claim '%s': %w", name, err)
		}
	}

	signed, err := jwt.Sign(idJwt, jwt.WithKey(jwa.ES256, i.cfg.SignKey))
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return string(signed), nil
}
