package grant

import (
	"net/url"
	"testing"
	"time"

	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/token"
)

func TestRefreshTokenRotation(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &RefreshTokenGrant{Issuer: issuer, Repository: repo, RotateTokens: true}

	original := issuer.IssueRefreshToken(c.ID, "user-1", []string{"openid"}, "")
	if original == nil {
		t.Fatal("failed to issue refresh token")
	}

	form := url.Values{}
	form.Set("refresh_token", original.Identifier)
	response, err := g.Token(tokenRequest(form), c)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if response.AccessToken == "" {
		t.Error("missing access token")
	}
	if response.RefreshToken == "" {
		t.Fatal("rotation must issue a new refresh token")
	}
	if response.RefreshToken == original.Identifier {
		t.Error("rotation returned the presented token")
	}

	// the presented token is spent
	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)

	// the rotated token works
	form.Set("refresh_token", response.RefreshToken)
	if _, err := g.Token(tokenRequest(form), c); err != nil {
		t.Fatalf("rotated token was rejected: %v", err)
	}
}

func TestRefreshTokenWithoutRotation(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &RefreshTokenGrant{Issuer: issuer, Repository: repo}

	original := issuer.IssueRefreshToken(c.ID, "user-1", []string{"openid"}, "")
	if original == nil {
		t.Fatal("failed to issue refresh token")
	}

	form := url.Values{}
	form.Set("refresh_token", original.Identifier)
	response, err := g.Token(tokenRequest(form), c)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}
	if response.RefreshToken != "" {
		t.Error("no new refresh token expected without rotation")
	}

	// the presented token stays valid
	if _, err := g.Token(tokenRequest(form), c); err != nil {
		t.Fatalf("token was rejected on reuse without rotation: %v", err)
	}
}

func TestRefreshTokenRejectsRevoked(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &RefreshTokenGrant{Issuer: issuer, Repository: repo}

	original := issuer.IssueRefreshToken(c.ID, "user-1", nil, "")
	if err := repo.RevokeRefreshToken(original.Identifier); err != nil {
		t.Fatalf("failed to revoke: %v", err)
	}

	form := url.Values{}
	form.Set("refresh_token", original.Identifier)
	_, err := g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func TestRefreshTokenReuseRevokesFamily(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &RefreshTokenGrant{Issuer: issuer, Repository: repo, RotateTokens: true}

	original := issuer.IssueRefreshToken(c.ID, "user-1", []string{"openid"}, "code-1")
	if original == nil {
		t.Fatal("failed to issue refresh token")
	}

	form := url.Values{}
	form.Set("refresh_token", original.Identifier)
	response, err := g.Token(tokenRequest(form), c)
	if err != nil {
		t.Fatalf("Token failed: %v", err)
	}

	// presenting the rotated-out token again kills the whole family
	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)

	form.Set("refresh_token", response.RefreshToken)
	_, err = g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func TestRefreshTokenRejectsExpired(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &RefreshTokenGrant{Issuer: issuer, Repository: repo}

	expired := &token.RefreshToken{
		Identifier: token.GenerateIdentifier(token.DefaultIdentifierBytes),
		ClientID:   c.ID,
		UserID:     "user-1",
		ExpiresAt:  time.Now().Add(-time.Minute),
	}
	if err := repo.PersistRefreshToken(expired); err != nil {
		t.Fatalf("failed to persist: %v", err)
	}

	form := url.Values{}
	form.Set("refresh_token", expired.Identifier)
	_, err := g.Token(tokenRequest(form), c)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}

func TestRefreshTokenRejectsForeignClient(t *testing.T) {
	issuer, repo := testIssuer(t)
	c := testClient()
	g := &RefreshTokenGrant{Issuer: issuer, Repository: repo}

	original := issuer.IssueRefreshToken(c.ID, "user-1", nil, "")

	other := testClient()
	other.ID = "other-client"
	form := url.Values{}
	form.Set("refresh_token", original.Identifier)
	_, err := g.Token(tokenRequest(form), other)
	assertErrorCode(t, err, oauth2.ErrorInvalidGrant)
}
