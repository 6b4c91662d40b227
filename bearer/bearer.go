// Package bearer validates access tokens presented against protected
// resources. Every failure mode collapses into the same generic access
// denied outcome so callers cannot probe why a token was rejected.
package bearer

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/token"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// AttributesContextKey is the echo context key the middleware stores the
// validated AccessAttributes under.
const AttributesContextKey = "access_attributes"

// DefaultLeeway is the clock-skew tolerance applied to exp/nbf/iat checks.
const DefaultLeeway = 10 * time.Second

// AccessAttributes are the request attributes attached after successful
// validation, consumed by downstream authorization checks.
type AccessAttributes struct {
	TokenID  string
	ClientID string
	UserID   string
	Scopes   []string
}

type Validator struct {
	keysFunc   func() (jwk.Set, error)
	repository token.Repository
	leeway     time.Duration
	logger     *slog.Logger
}

func NewValidator(keysFunc func() (jwk.Set, error), repository token.Repository, leeway time.Duration, logger *slog.Logger) (*Validator, error) {
	if keysFunc == nil {
		return nil, fmt.Errorf("keys function is required")
	}
	if repository == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if leeway <= 0 {
		leeway = DefaultLeeway
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		keysFunc:   keysFunc,
		repository: repository,
		leeway:     leeway,
		logger:     logger,
	}, nil
}

func accessDenied() *oauth2.Error {
	return oauth2.AccessDenied("access denied")
}

// Validate extracts and verifies the bearer token of the request and
// returns the authenticated attributes.
func (v *Validator) Validate(r *http.Request) (*AccessAttributes, error) {
	raw, err := v.extractToken(r)
	if err != nil {
		v.logger.Debug("bearer token extraction failed", "error", err)
		return nil, accessDenied()
	}

	keys, err := v.keysFunc()
	if err != nil {
		v.logger.Error("signing keys unavailable", "error", err)
		return nil, accessDenied()
	}

	parsed, err := jwt.ParseString(raw,
		jwt.WithKeySet(keys),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(v.leeway),
	)
	if err != nil {
		v.logger.Debug("bearer token rejected", "error", err)
		return nil, accessDenied()
	}

	tokenID := parsed.JwtID()
	if tokenID == "" {
		v.logger.Debug("bearer token rejected", "error", "missing jti")
		return nil, accessDenied()
	}

	stored, err := v.repository.GetAccessToken(tokenID)
	if err != nil {
		v.logger.Debug("bearer token rejected", "error", "unknown jti", "jti", tokenID)
		return nil, accessDenied()
	}
	if stored.Revoked {
		v.logger.Debug("bearer token rejected", "error", "token revoked", "jti", tokenID)
		return nil, accessDenied()
	}

	attributes := &AccessAttributes{
		TokenID:  tokenID,
		ClientID: stored.ClientID,
		UserID:   parsed.Subject(),
		Scopes:   stored.Scopes,
	}
	return attributes, nil
}

// extractToken tries, in order: the Authorization header, a form body
// access_token field for clients that cannot set headers, and finally a
// header-recovery scan for misconfigured reverse proxies that rename the
// Authorization header.
func (v *Validator) extractToken(r *http.Request) (string, error) {
	for _, value := range r.Header.Values("Authorization") {
		if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
			return value[7:], nil
		}
	}

	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			if formToken := r.PostForm.Get("access_token"); formToken != "" {
				return formToken, nil
			}
		}
	}

	// expensive last resort, and a sign the deployment needs fixing
	for name, values := range r.Header {
		if !strings.Contains(strings.ToLower(name), "authorization") {
			continue
		}
		for _, value := range values {
			if len(value) > 7 && strings.EqualFold(value[:7], "bearer ") {
				v.logger.Warn("recovered bearer token from non-standard header; check the reverse proxy configuration", "header", name)
				return value[7:], nil
			}
		}
	}

	return "", fmt.Errorf("no bearer token in request")
}

// Middleware guards echo routes, attaching the validated attributes to the
// request context.
func (v *Validator) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		attributes, err := v.Validate(c.Request())
		if err != nil {
			return err
		}
		c.Set(AttributesContextKey, attributes)
		return next(c)
	}
}

// AttributesFromContext returns the attributes set by the middleware, or
// nil when the request was not validated.
func AttributesFromContext(c echo.Context) *AccessAttributes {
	attributes, _ := c.Get(AttributesContextKey).(*AccessAttributes)
	return attributes
}
