package grant

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
	"github.com/gematik/zero-op/token"
)

// ImplicitGrant issues tokens directly at the authorization endpoint,
// returned in the redirect fragment. The OIDC variant additionally issues
// an ID token. There is no token-endpoint step.
type ImplicitGrant struct {
	Issuer *token.Issuer
	Claims ClaimsSource
	// OIDC selects the "id_token token" response type and adds an ID token
	// to the response.
	OIDC bool
}

func (g *ImplicitGrant) Name() string {
	if g.OIDC {
		return "oidc_implicit"
	}
	return oauth2.GrantTypeImplicit
}

func (g *ImplicitGrant) CanRespondToAuthorizationRequest(responseType string) bool {
	if g.OIDC {
		return responseType == oauth2.ResponseTypeIDTokenToken
	}
	return responseType == oauth2.ResponseTypeToken
}

func (g *ImplicitGrant) Authorize(actx *AuthorizationContext) (*AuthorizationResponse, error) {
	bag := actx.Bag
	c := bag.GetOrFail(rules.KeyClient).Value.(*client.Client)
	redirectURI := bag.GetOrFail(rules.KeyRedirectURI).Value.(string)
	scopes := bag.GetOrFail(rules.KeyScope).Value.([]string)

	accessToken, err := g.Issuer.IssueAccessToken(c.ID, actx.UserID, scopes, "")
	if err != nil {
		return nil, oauth2.ServerError(fmt.Sprintf("unable to issue access token: %v", err))
	}
	signed, err := g.Issuer.SignAccessToken(accessToken)
	if err != nil {
		return nil, oauth2.ServerError(fmt.Sprintf("unable to sign access token: %v", err))
	}

	params := url.Values{}
	params.Set("access_token", signed)
	params.Set("token_type", "Bearer")
	params.Set("expires_in", fmt.Sprintf("%d", int(time.Until(accessToken.ExpiresAt).Seconds())))
	params.Set("scope", strings.Join(scopes, " "))
	if state := bag.StringValue(rules.KeyState); state != "" {
		params.Set("state", state)
	}

	if g.OIDC && actx.UserID != "" {
		var claims map[string]any
		if g.Claims != nil {
			claims = g.Claims.ClaimsForScopes(actx.UserID, scopes)
		}
		idToken, err := g.Issuer.SignIDToken(c.ID, actx.UserID, bag.StringValue(rules.KeyNonce), claims)
		if err != nil {
			return nil, oauth2.ServerError(fmt.Sprintf("unable to sign id token: %v", err))
		}
		params.Set("id_token", idToken)
	}

	return &AuthorizationResponse{
		RedirectURI: redirectURI,
		Params:      params,
		InFragment:  true,
	}, nil
}
