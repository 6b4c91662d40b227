// Package server orchestrates the authorization server core: it wires the
// request rules, grants, token issuance, bearer validation and back-channel
// logout together and exposes the protocol endpoints.
package server

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gematik/zero-op/backchannel"
	"github.com/gematik/zero-op/bearer"
	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/grant"
	"github.com/gematik/zero-op/jwkutil"
	"github.com/gematik/zero-op/nonce"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
	"github.com/gematik/zero-op/token"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/valkey-io/valkey-go"
)

// Version of the authorization server.
const Version = "0.3.0"

// AuthenticateUserFunc resolves the authenticated resource owner of a
// browser request. The login session machinery behind it is an external
// collaborator; empty ids mean no user is authenticated.
type AuthenticateUserFunc func(c echo.Context) (userID, sessionID string, err error)

type Server struct {
	Metadata      Metadata
	endpointPaths *EndpointsConfig

	clients      client.Registry
	ruleManager  *rules.Manager
	grants       *grant.Registry
	tokens       token.Repository
	issuer       *token.Issuer
	bearerGuard  *bearer.Validator
	backChannel  *backchannel.Handler
	associations backchannel.AssociationStore
	nonceService nonce.Service

	sigPrK jwk.Key
	jwks   jwk.Set

	useFragmentOnError bool
	authenticateUser   AuthenticateUserFunc
	logger             *slog.Logger
}

func NewFromConfigFile(filename string) (*Server, error) {
	cfg, err := LoadConfigFile(filename)
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

func New(cfg *Config) (*Server, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	issuerURI, err := url.Parse(cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("invalid issuer URI: %w", err)
	}

	logger := slog.Default()

	s := &Server{
		Metadata:           cfg.MetadataTemplate,
		useFragmentOnError: cfg.UseFragmentInHttpErrorResponses,
		authenticateUser:   cfg.AuthenticateUserFunc,
		logger:             logger,
	}

	s.endpointPaths = &cfg.Endpoints
	s.endpointPaths.applyDefaults(issuerURI)

	// load signing key
	sigPrK, err := jwkutil.LoadJwkFromPem(absPath(cfg.BaseDir, cfg.SignPrivateKeyPath))
	if err != nil {
		logger.Warn("failed to load signing key, will create random", "path", cfg.SignPrivateKeyPath)
		sigPrK, err = jwkutil.GenerateRandomJwk()
		if err != nil {
			return nil, fmt.Errorf("generate signing key: %w", err)
		}
	}
	// PEM keys carry no key id; the JWKS lookup needs one
	if sigPrK.KeyID() == "" {
		thumbprint, err := jwkutil.ThumbprintS256(sigPrK)
		if err != nil {
			return nil, fmt.Errorf("thumbprint signing key: %w", err)
		}
		sigPrK.Set(jwk.KeyIDKey, thumbprint)
		sigPrK.Set(jwk.AlgorithmKey, jwa.ES256)
	}
	s.sigPrK = sigPrK

	sigPuK, err := sigPrK.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("get public key: %w", err)
	}
	s.jwks = jwk.NewSet()
	s.jwks.AddKey(sigPuK)

	// clients registry
	switch {
	case cfg.ClientsPath != "":
		registry, err := client.LoadStaticRegistry(absPath(cfg.BaseDir, cfg.ClientsPath))
		if err != nil {
			return nil, fmt.Errorf("load clients: %w", err)
		}
		s.clients = registry
	case len(cfg.Clients) > 0:
		s.clients = client.NewStaticRegistry(cfg.Clients)
	case cfg.Valkey != nil:
		registry, err := client.NewValkeyRegistry(valkeyOption(cfg.Valkey))
		if err != nil {
			return nil, fmt.Errorf("create valkey client registry: %w", err)
		}
		s.clients = registry
	default:
		return nil, fmt.Errorf("no OAuth2 clients configured")
	}

	// token repository
	if cfg.Valkey != nil {
		s.tokens, err = token.NewValkeyRepository(valkeyOption(cfg.Valkey))
		if err != nil {
			return nil, fmt.Errorf("create valkey token repository: %w", err)
		}
	} else {
		s.tokens = token.NewMemoryRepository()
	}

	s.issuer, err = token.NewIssuer(token.IssuerConfig{
		Issuer:          cfg.Issuer,
		SignKey:         sigPrK,
		Repository:      s.tokens,
		AccessTokenTTL:  secondsOrZero(cfg.AccessTokenTTLSeconds),
		RefreshTokenTTL: secondsOrZero(cfg.RefreshTokenTTLSeconds),
		AuthCodeTTL:     secondsOrZero(cfg.AuthorizationCodeTTLSeconds),
		IdentifierBytes: cfg.TokenIdentifierBytes,
		Logger:          logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create token issuer: %w", err)
	}

	// grants
	rotate := cfg.RotateRefreshTokens == nil || *cfg.RotateRefreshTokens
	s.grants = grant.NewRegistry(
		&grant.AuthorizationCodeGrant{
			Issuer:             s.issuer,
			Repository:         s.tokens,
			Claims:             cfg.ClaimsSource,
			IssueRefreshTokens: true,
		},
		&grant.RefreshTokenGrant{
			Issuer:       s.issuer,
			Repository:   s.tokens,
			RotateTokens: rotate,
			Logger:       logger,
		},
		&grant.ImplicitGrant{Issuer: s.issuer},
		&grant.ImplicitGrant{Issuer: s.issuer, Claims: cfg.ClaimsSource, OIDC: true},
	)

	// rules
	challengeMethods := cfg.CodeChallengeMethods
	if len(challengeMethods) == 0 {
		challengeMethods = []string{string(oauth2.CodeChallengeMethodPlain), string(oauth2.CodeChallengeMethodS256)}
	}
	requirePKCE := cfg.RequirePKCEForPublicClients == nil || *cfg.RequirePKCEForPublicClients
	s.ruleManager = rules.NewManager(logger,
		rules.StateRule{},
		rules.ClientRule{Registry: s.clients},
		rules.RedirectURIRule{},
		rules.ResponseTypeRule{},
		rules.ScopeRule{},
		rules.CodeChallengeRule{Methods: challengeMethods, RequireForPublicClients: requirePKCE},
		rules.NonceRule{},
		rules.PromptRule{},
		rules.ACRValuesRule{},
		rules.IDTokenHintRule{Issuer: cfg.Issuer, KeysFunc: s.Keys},
		rules.PostLogoutRedirectURIRule{Registry: s.clients},
		rules.UILocalesRule{},
	)

	// bearer validation
	s.bearerGuard, err = bearer.NewValidator(s.Keys, s.tokens, secondsOrZero(cfg.ClockSkewLeewaySeconds), logger)
	if err != nil {
		return nil, fmt.Errorf("create bearer validator: %w", err)
	}

	// back-channel logout
	s.associations = backchannel.NewMemoryAssociationStore()
	s.backChannel, err = backchannel.NewHandler(backchannel.HandlerConfig{
		Issuer:                cfg.Issuer,
		SignKey:               sigPrK,
		Store:                 s.associations,
		Concurrency:           cfg.BackChannelLogout.Concurrency,
		Timeout:               secondsOrZero(cfg.BackChannelLogout.TimeoutSeconds),
		InsecureSkipTLSVerify: cfg.BackChannelLogout.InsecureSkipTLSVerify,
		Logger:                logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create back-channel logout handler: %w", err)
	}

	s.nonceService, err = nonce.NewService()
	if err != nil {
		return nil, fmt.Errorf("create nonce service: %w", err)
	}

	// metadata
	s.Metadata.Issuer = cfg.Issuer
	s.Metadata.ScopesSupported = cfg.ScopesSupported
	s.Metadata.AuthorizationEndpoint = buildURI(cfg.Issuer, s.endpointPaths.Authorization)
	s.Metadata.TokenEndpoint = buildURI(cfg.Issuer, s.endpointPaths.Token)
	s.Metadata.JwksURI = buildURI(cfg.Issuer, s.endpointPaths.Jwks)
	s.Metadata.EndSessionEndpoint = buildURI(cfg.Issuer, s.endpointPaths.EndSession)
	s.Metadata.NonceEndpoint = buildURI(cfg.Issuer, s.endpointPaths.Nonce)
	s.Metadata.ResponseTypesSupported = []string{
		oauth2.ResponseTypeCode,
		oauth2.ResponseTypeToken,
		oauth2.ResponseTypeIDTokenToken,
	}
	s.Metadata.ResponseModesSupported = []string{"query", "fragment"}
	s.Metadata.GrantTypesSupported = []string{
		oauth2.GrantTypeAuthorizationCode,
		oauth2.GrantTypeRefreshToken,
		oauth2.GrantTypeImplicit,
	}
	s.Metadata.TokenEndpointAuthMethodsSupported = []string{"none", "client_secret_post", "client_secret_basic"}
	s.Metadata.TokenEndpointAuthSigningAlgValuesSupported = []string{"ES256"}
	s.Metadata.CodeChallengeMethodsSupported = challengeMethods
	s.Metadata.BackChannelLogoutSupported = true
	s.Metadata.BackChannelLogoutSessionSupported = true

	return s, nil
}

// Keys returns the public signing keys of the server.
func (s *Server) Keys() (jwk.Set, error) {
	return s.jwks, nil
}

// TokenRepository exposes the repository, e.g. for admin-driven revocation.
func (s *Server) TokenRepository() token.Repository {
	return s.tokens
}

// Associations exposes the relying-party association store so the login
// flow can record sessions for back-channel logout.
func (s *Server) Associations() backchannel.AssociationStore {
	return s.associations
}

// BearerGuard returns the middleware-capable validator for protected
// resource routes.
func (s *Server) BearerGuard() *bearer.Validator {
	return s.bearerGuard
}

func (s *Server) MountRoutes(group *echo.Group) {
	group.Use(
		middleware.Logger(),
		RecoverFaultMiddleware(s.logger),
		ErrorHandlerMiddleware(s.logger),
	)

	group.GET(s.endpointPaths.AuthorizationServerMetadata, s.MetadataEndpoint)
	group.GET(s.endpointPaths.Jwks, s.JWKSEndpoint)
	group.GET(s.endpointPaths.Authorization, s.AuthorizationEndpoint)
	group.POST(s.endpointPaths.Authorization, s.AuthorizationEndpoint)
	group.POST(s.endpointPaths.Token, s.TokenEndpoint)
	group.OPTIONS(s.endpointPaths.Token, s.TokenPreflightEndpoint)
	group.GET(s.endpointPaths.EndSession, s.LogoutEndpoint)
	group.POST(s.endpointPaths.EndSession, s.LogoutEndpoint)
	group.GET(s.endpointPaths.Nonce, s.NonceEndpoint)
	group.HEAD(s.endpointPaths.Nonce, s.NonceEndpoint)
}

// ErrorHandlerMiddleware translates protocol errors into the OAuth2
// response shape: a redirect with error parameters when a safe redirect URI
// was established, a JSON body otherwise.
func ErrorHandlerMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			logger.Error("request failed", "error", err, "path", c.Path(), "remote_addr", c.RealIP())

			if protocolError, ok := err.(*oauth2.Error); ok {
				if protocolError.RedirectURI != "" {
					return c.Redirect(http.StatusFound, errorRedirectLocation(protocolError))
				}
				return c.JSON(protocolError.HttpStatus, protocolError)
			}
			if echoError, ok := err.(*echo.HTTPError); ok {
				return c.JSON(echoError.Code, &oauth2.Error{
					HttpStatus:  echoError.Code,
					Code:        oauth2.ErrorServerError,
					Description: fmt.Sprintf("%v", echoError.Message),
				})
			}
			return c.JSON(http.StatusInternalServerError, oauth2.ServerError(err.Error()))
		}
	}
}

// RecoverFaultMiddleware converts faults (internal invariant violations)
// into 500 responses. Faults indicate a deployment or programming bug; they
// are never translated into protocol errors.
func RecoverFaultMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					fault, ok := r.(oauth2.Fault)
					if !ok {
						panic(r)
					}
					logger.Error("fault", "reason", fault.Reason, "path", c.Path())
					err = c.JSON(http.StatusInternalServerError, oauth2.ServerError("internal invariant violation"))
				}
			}()
			return next(c)
		}
	}
}

func errorRedirectLocation(protocolError *oauth2.Error) string {
	params := url.Values{}
	params.Set("error", protocolError.Code)
	if description := protocolError.FullDescription(); description != "" {
		params.Set("error_description", description)
	}
	if protocolError.State != "" {
		params.Set("state", protocolError.State)
	}
	separator := "?"
	if protocolError.UseFragment {
		separator = "#"
	}
	return protocolError.RedirectURI + separator + params.Encode()
}

func redirectLocation(redirectURI string, params url.Values, inFragment bool) string {
	separator := "?"
	if inFragment {
		separator = "#"
	}
	return redirectURI + separator + params.Encode()
}

func buildURI(base string, paths ...string) string {
	result := strings.TrimRight(base, "/")
	for _, p := range paths {
		if p == "" {
			continue
		}
		result = fmt.Sprintf("%s/%s", result, strings.Trim(p, "/"))
	}
	return result
}

func valkeyOption(cfg *ValkeyConfig) valkey.ClientOption {
	option := valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Username:    cfg.Username,
		Password:    cfg.Password,
	}
	if cfg.UseTLS {
		option.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return option
}

func secondsOrZero(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
