// Package grant implements the OAuth2/OIDC flow state machines. A grant is
// a stateless strategy selected by response_type on the authorization
// endpoint or grant_type on the token endpoint. Grants begin after the
// request rules have run: they consume a validated ResultBag plus
// client/user context and produce tokens.
package grant

import (
	"net/http"
	"net/url"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
)

// AuthorizationContext is the validated input of an authorize step.
type AuthorizationContext struct {
	Bag *rules.ResultBag
	// UserID identifies the authenticated resource owner. Empty for flows
	// that do not require a login (none of the registered ones).
	UserID string
}

// AuthorizationResponse describes the redirect back to the client.
// InFragment forces the parameters into the URI fragment; tokens must never
// travel in a query string where they would leak through referrers and logs.
type AuthorizationResponse struct {
	RedirectURI string
	Params      url.Values
	InFragment  bool
}

// ClaimsSource resolves user claims for ID tokens, already filtered by the
// granted scopes. The user directory behind it is an external collaborator.
type ClaimsSource interface {
	ClaimsForScopes(userID string, scopes []string) map[string]any
}

type Grant interface {
	Name() string
}

// AuthorizationGrant handles the authorization endpoint for the response
// types it claims.
type AuthorizationGrant interface {
	Grant
	CanRespondToAuthorizationRequest(responseType string) bool
	Authorize(actx *AuthorizationContext) (*AuthorizationResponse, error)
}

// TokenGrant handles the token endpoint for the grant types it claims. The
// client has already been authenticated by the endpoint.
type TokenGrant interface {
	Grant
	CanRespondToTokenRequest(grantType string) bool
	Token(r *http.Request, c *client.Client) (*oauth2.TokenResponse, error)
}

// Registry maps response types and grant types to grant implementations.
// It is populated at startup; no runtime reflection or string-class lookup.
type Registry struct {
	grants []Grant
}

func NewRegistry(grants ...Grant) *Registry {
	return &Registry{grants: grants}
}

func (r *Registry) ForResponseType(responseType string) (AuthorizationGrant, bool) {
	for _, g := range r.grants {
		ag, ok := g.(AuthorizationGrant)
		if ok && ag.CanRespondToAuthorizationRequest(responseType) {
			return ag, true
		}
	}
	return nil, false
}

func (r *Registry) ForGrantType(grantType string) (TokenGrant, bool) {
	for _, g := range r.grants {
		tg, ok := g.(TokenGrant)
		if ok && tg.CanRespondToTokenRequest(grantType) {
			return tg, true
		}
	}
	return nil, false
}

func hasScope(scopes []string, scope string) bool {
	for _, s := range scopes {
		if s == scope {
			return true
		}
	}
	return false
}
