package grant

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
	"github.com/gematik/zero-op/token"
)

// AuthorizationCodeGrant implements the two-step authorization code flow:
// the authorize step issues a single-use code bound to client, user and
// redirect URI; the token step exchanges it for an access token and,
// optionally, a refresh token.
type AuthorizationCodeGrant struct {
	Issuer             *token.Issuer
	Repository         token.Repository
	Claims             ClaimsSource
	IssueRefreshTokens bool
}

func (g *AuthorizationCodeGrant) Name() string {
	return oauth2.GrantTypeAuthorizationCode
}

func (g *AuthorizationCodeGrant) CanRespondToAuthorizationRequest(responseType string) bool {
	return responseType == oauth2.ResponseTypeCode
}

func (g *AuthorizationCodeGrant) CanRespondToTokenRequest(grantType string) bool {
	return grantType == oauth2.GrantTypeAuthorizationCode
}

func (g *AuthorizationCodeGrant) Authorize(actx *AuthorizationContext) (*AuthorizationResponse, error) {
	bag := actx.Bag
	c := bag.GetOrFail(rules.KeyClient).Value.(*client.Client)
	redirectURI := bag.GetOrFail(rules.KeyRedirectURI).Value.(string)
	scopes := bag.GetOrFail(rules.KeyScope).Value.([]string)

	var challenge, challengeMethod string
	if result, ok := bag.Get(rules.KeyCodeChallenge); ok {
		cc := result.Value.(*rules.CodeChallenge)
		challenge = cc.Challenge
		challengeMethod = string(cc.Method)
	}

	code, err := g.Issuer.IssueAuthorizationCode(
		c.ID,
		actx.UserID,
		redirectURI,
		scopes,
		bag.StringValue(rules.KeyNonce),
		challenge,
		challengeMethod,
	)
	if err != nil {
		return nil, oauth2.ServerError("unable to issue authorization code")
	}

	params := url.Values{}
	params.Set("code", code.Identifier)
	if state := bag.StringValue(rules.KeyState); state != "" {
		params.Set("state", state)
	}

	return &AuthorizationResponse{
		RedirectURI: redirectURI,
		Params:      params,
	}, nil
}

func (g *AuthorizationCodeGrant) Token(r *http.Request, c *client.Client) (*oauth2.TokenResponse, error) {
	codeValue := r.FormValue("code")
	if codeValue == "" {
		return nil, oauth2.InvalidRequest("missing code")
	}
	redirectURI := r.FormValue("redirect_uri")
	if redirectURI == "" {
		return nil, oauth2.InvalidRequest("missing redirect_uri")
	}

	// atomic consume: a second exchange of the same code, even concurrent,
	// gets ErrNotFound here
	code, err := g.Repository.ConsumeAuthorizationCode(codeValue)
	if err != nil {
		return nil, oauth2.InvalidGrant("unknown or already used authorization code")
	}

	if code.Revoked {
		return nil, oauth2.InvalidGrant("authorization code revoked")
	}
	if code.IsExpired(time.Now()) {
		return nil, oauth2.InvalidGrant("authorization code expired")
	}
	if code.ClientID != c.ID {
		return nil, oauth2.InvalidGrant("authorization code was issued to another client")
	}
	if code.RedirectURI != redirectURI {
		return nil, oauth2.InvalidGrant("redirect_uri mismatch")
	}

	if code.CodeChallenge != "" {
		verifier := r.FormValue("code_verifier")
		if verifier == "" {
			return nil, oauth2.InvalidRequest("missing code_verifier")
		}
		if !oauth2.ValidCodeVerifier(verifier) {
			return nil, oauth2.InvalidRequest("invalid code_verifier").WithHint("expected 43-128 characters of [A-Za-z0-9-._~]")
		}
		if !oauth2.VerifyCodeChallenge(code.CodeChallenge, oauth2.CodeChallengeMethod(code.CodeChallengeMethod), verifier) {
			return nil, oauth2.InvalidGrant("code_verifier does not match code_challenge")
		}
	}

	accessToken, err := g.Issuer.IssueAccessToken(c.ID, code.UserID, code.Scopes, code.Identifier)
	if err != nil {
		return nil, oauth2.ServerError(fmt.Sprintf("unable to issue access token: %v", err))
	}
	signed, err := g.Issuer.SignAccessToken(accessToken)
	if err != nil {
		return nil, oauth2.ServerError(fmt.Sprintf("unable to sign access token: %v", err))
	}

	response := &oauth2.TokenResponse{
		AccessToken: signed,
		TokenType:   "Bearer",
		ExpiresIn:   int(time.Until(accessToken.ExpiresAt).Seconds()),
		Scope:       strings.Join(code.Scopes, " "),
	}

	if g.IssueRefreshTokens {
		if refreshToken := g.Issuer.IssueRefreshToken(c.ID, code.UserID, code.Scopes, code.Identifier); refreshToken != nil {
			response.RefreshToken = refreshToken.Identifier
		}
	}

	if hasScope(code.Scopes, "openid") && code.UserID != "" {
		var claims map[string]any
		if g.Claims != nil {
			claims = g.Claims.ClaimsForScopes(code.UserID, code.Scopes)
		}
		idToken, err := g.Issuer.SignIDToken(c.ID, code.UserID, code.Nonce, claims)
		if err != nil {
			return nil, oauth2.ServerError(fmt.Sprintf("unable to sign id token: %v", err))
		}
		response.IDToken = idToken
	}

	return response, nil
}
