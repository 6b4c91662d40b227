package grant

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/jwkutil"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
	"github.com/gematik/zero-op/token"
	xoauth2 "golang.org/x/oauth2"
)

type staticClaims map[string]any

func (s staticClaims) ClaimsForScopes(userID string, scopes []string) map[string]any {
	return s
}

func testIssuer(t *testing.T) (*token.Issuer, *token.MemoryRepository) {
	t.Helper()
	signKey, err := jwkutil.GenerateRandomJwk()
	if err != nil {
		t.Fatalf("failed to create JWK: %v", err)
	}
	repo := token.NewMemoryRepository()
	issuer, err := token.NewIssuer(token.IssuerConfig{
		Issuer:     "https://op.example.com",
		SignKey:    signKey,
		Repository: repo,
	})
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}
	return issuer, repo
}

func testClient() *client.Client {
	return &client.Client{
		Type:         client.TypePublic,
		ID:           "test-client",
		RedirectURIs: []string{"https://app.example.com/callback"},
		Scopes:       []string{"openid", "profile"},
	}
}

func authorizationBag(c *client.Client, challenge *rules.CodeChallenge) *rules.ResultBag {
	bag := rules.NewResultBag()
	bag.Add(rules.NewResult(rules.KeyState, "af0ifjsldkj"))
	bag.Add(rules.NewResult(rules.KeyClient, c))
	bag.Add(rules.NewResult(rules.KeyRedirectURI, c.RedirectURIs[0]))
	bag.Add(rules.NewResult(rules.KeyScope, []string{"openid", "profile"}))
	bag.Add(rules.NewResult(rules.KeyNonce, "n-0S6_WzA2Mj"))
	if challenge != nil {
		bag.Add(rules.NewResult(rules.KeyCodeChallenge, challenge))
	}
	return bag
}

func tokenRequest(form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestAuthorizationCodeRoundTripWithPKCE(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	verifier := xoauth2.GenerateVerifier()

	g := &AuthorizationCodeGrant{
		Issuer:             issuer,
		Repository:         repo,
		Claims:             staticClaims{"name": "Ada Lovelace"},
		IssueRefreshTokens: true,
	}

	challenge := &rules.CodeChallenge{
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
		Method:    oauth2.CodeChallengeMethodS256,
	}
	response, err := g.Authorize(&AuthorizationContext{
		Bag:    authorizationBag(c, challenge),
		UserID: "user-1",
	})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}
	if response.InFragment {
		t.Error("authorization code response must use the query string")
	}
	code := response.Params.Get("code")
	if len(code) != token.DefaultIdentifierBytes*2 {
		t.Errorf("unexpected code length: %d", len(code))
	}
	if response.Params.Get("state") != "af0ifjsldkj" {
		t.Errorf("state not echoed: %s", response.Params.Get("state"))
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("redirect_uri", c.RedirectURIs[0])
	form.Set("code_verifier", verifier)
	tokenResponse, err := g.Token(tokenRequest(form), c)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	if tokenResponse.AccessToken == "" {
		t.Error("missing access token")
	}
	if tokenResponse.TokenType != "Bearer" {
		t.Errorf("unexpected token type: %s", tokenResponse.TokenType)
	}
	if tokenResponse.RefreshToken == "" {
		t.Error("missing refresh token")
	}
	if tokenResponse.IDToken == "" {
		t.Error("missing id token for openid scope")
	}
	if tokenResponse.ExpiresIn <= 0 {
		t.Errorf("unexpected expires_in: %d", tokenResponse.ExpiresIn)
	}
}

func TestTokenRejectsReplayedCode(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &AuthorizationCodeGrant{Issuer: issuer, Repository: repo}

	response, err := g.Authorize(&AuthorizationContext{Bag: authorizationBag(c, nil), UserID: "user-1"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	form := url.Values{}
	form.Set("code", response.Params.Get("code"))
	form.Set("redirect_uri", c.RedirectURIs[0])
	if _, err := g.Token(tokenRequest(form), c); err != nil {
		t.Fatalf("first exchange failed: %v", err)
	}

	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func TestTokenRejectsWrongVerifier(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &AuthorizationCodeGrant{Issuer: issuer, Repository: repo}

	challenge := &rules.CodeChallenge{
		Challenge: oauth2.S256ChallengeFromVerifier(xoauth2.GenerateVerifier()),
		Method:    oauth2.CodeChallengeMethodS256,
	}
	response, err := g.Authorize(&AuthorizationContext{Bag: authorizationBag(c, challenge), UserID: "user-1"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	form := url.Values{}
	form.Set("code", response.Params.Get("code"))
	form.Set("redirect_uri", c.RedirectURIs[0])
	form.Set("code_verifier", xoauth2.GenerateVerifier())
	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func TestTokenRejectsMissingVerifier(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &AuthorizationCodeGrant{Issuer: issuer, Repository: repo}

	challenge := &rules.CodeChallenge{
		Challenge: oauth2.S256ChallengeFromVerifier(xoauth2.GenerateVerifier()),
		Method:    oauth2.CodeChallengeMethodS256,
	}
	response, err := g.Authorize(&AuthorizationContext{Bag: authorizationBag(c, challenge), UserID: "user-1"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	form := url.Values{}
	form.Set("code", response.Params.Get("code"))
	form.Set("redirect_uri", c.RedirectURIs[0])
	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidRequest)
}

func TestTokenRejectsForeignClient(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &AuthorizationCodeGrant{Issuer: issuer, Repository: repo}

	response, err := g.Authorize(&AuthorizationContext{Bag: authorizationBag(c, nil), UserID: "user-1"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	other := &client.Client{Type: client.TypePublic, ID: "other-client"}
	form := url.Values{}
	form.Set("code", response.Params.Get("code"))
	form.Set("redirect_uri", c.RedirectURIs[0])
	_, err = g.Token(tokenRequest(form), other)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func TestTokenRejectsRedirectURIMismatch(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &AuthorizationCodeGrant{Issuer: issuer, Repository: repo}

	response, err := g.Authorize(&AuthorizationContext{Bag: authorizationBag(c, nil), UserID: "user-1"})
	if err != nil {
		t.Fatalf("Authorize failed: %v", err)
	}

	form := url.Values{}
	form.Set("code", response.Params.Get("code"))
	form.Set("redirect_uri", "https://evil.example.com/callback")
	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func assertErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error")
	}
	protocolError, ok := err.(*oauth2.Error)
	if !ok {
		t.Fatalf("expected *oauth2.Error, got %T: %v", err, err)
	}
	if protocolError.Code != code {
		t.Fatalf("expected error code %s, got %s (%s)", code, protocolError.Code, protocolError.Description)
	}
}
