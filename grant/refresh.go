package grant

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/token"
)

// RefreshTokenGrant exchanges a valid refresh token for a new access token.
// With rotation enabled (the default), every exchange also issues a new
// refresh token and revokes the presented one.
type RefreshTokenGrant struct {
	Issuer       *token.Issuer
	Repository   token.Repository
	RotateTokens bool
	Logger       *slog.Logger
}

func (g *RefreshTokenGrant) Name() string {
	return oauth2.GrantTypeRefreshToken
}

func (g *RefreshTokenGrant) CanRespondToTokenRequest(grantType string) bool {
	return grantType == oauth2.GrantTypeRefreshToken
}

func (g *RefreshTokenGrant) Token(r *http.Request, c *client.Client) (*oauth2.TokenResponse, error) {
	presented := r.FormValue("refresh_token")
	if presented == "" {
		return nil, oauth2.InvalidRequest("missing refresh_token")
	}

	refreshToken, err := g.Repository.GetRefreshToken(presented)
	if err != nil {
		return nil, oauth2.InvalidGrant("unknown refresh token")
	}
	if refreshToken.Revoked {
		// Reuse of a rotated token invalidates every token issued from
		// the same authorization code.
		if refreshToken.AuthCodeID != "" {
			if err := g.Repository.RevokeDescendants(refreshToken.AuthCodeID); err != nil && g.Logger != nil {
				g.Logger.Warn("unable to revoke token family", "auth_code_id", refreshToken.AuthCodeID, "error", err)
			} else if g.Logger != nil {
				g.Logger.Warn("revoked refresh token presented, token family revoked", "client_id", c.ID)
			}
		}
		return nil, oauth2.InvalidGrant("refresh token revoked")
	}
	if refreshToken.IsExpired(time.Now()) {
		return nil, oauth2.InvalidGrant("refresh token expired")
	}
	if refreshToken.ClientID != c.ID {
		return nil, oauth2.InvalidGrant("refresh token was issued to another client")
	}

	accessToken, err := g.Issuer.IssueAccessToken(c.ID, refreshToken.UserID, refreshToken.Scopes, refreshToken.AuthCodeID)
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
		Scope:       strings.Join(refreshToken.Scopes, " "),
	}

	if g.RotateTokens {
		next := g.Issuer.IssueRefreshToken(c.ID, refreshToken.UserID, refreshToken.Scopes, refreshToken.AuthCodeID)
		if next != nil {
			if err := g.Repository.RevokeRefreshToken(refreshToken.Identifier); err != nil && g.Logger != nil {
				g.Logger.Warn("unable to revoke rotated refresh token", "error", err)
			}
			response.RefreshToken = next.Identifier
		}
	}

	return response, nil
}
