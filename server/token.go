package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
	"github.com/labstack/echo/v4"
)

func (s *Server) TokenEndpoint(c echo.Context) error {
	r := c.Request()

	contentType := r.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		return oauth2.InvalidRequest(fmt.Sprintf("unsupported content type '%s'", contentType))
	}
	if err := r.ParseForm(); err != nil {
		return oauth2.InvalidRequest("malformed request body").WithHint("%v", err)
	}

	requestClient, err := s.verifyClient(r)
	if err != nil {
		return err
	}

	grantType := r.PostFormValue("grant_type")
	if grantType == "" {
		return oauth2.InvalidRequest("missing parameter 'grant_type'")
	}
	tokenGrant, ok := s.grants.ForGrantType(grantType)
	if !ok {
		return oauth2.UnsupportedGrantType(fmt.Sprintf("grant_type '%s' is not supported", grantType))
	}

	tokenResponse, err := tokenGrant.Token(r, requestClient)
	if err != nil {
		return err
	}

	s.allowCorsOrigin(c, requestClient)
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	c.Response().Header().Set("Pragma", "no-cache")
	return c.JSON(http.StatusOK, tokenResponse)
}

// verifyClient authenticates the client of a token request. Confidential
// clients present a secret via HTTP basic auth or form parameters; public
// clients only identify themselves.
func (s *Server) verifyClient(r *http.Request) (*client.Client, error) {
	clientID, clientSecret, usedBasicAuth := r.BasicAuth()
	if !usedBasicAuth {
		clientID = r.PostFormValue("client_id")
		clientSecret = r.PostFormValue("client_secret")
	}
	if clientID == "" {
		return nil, oauth2.InvalidClient("missing client authentication")
	}

	requestClient, err := s.clients.GetClient(clientID)
	if err != nil {
		return nil, oauth2.InvalidClient(fmt.Sprintf("unknown client: '%s'", clientID))
	}
	if !requestClient.IsEnabled() {
		return nil, oauth2.InvalidClient(fmt.Sprintf("client '%s' is disabled", clientID))
	}

	if !requestClient.IsConfidential() {
		return requestClient, nil
	}

	if clientSecret == "" {
		return nil, oauth2.InvalidClient("missing client secret")
	}
	ok, err := client.VerifySecretHash(clientSecret, requestClient.SecretHash)
	if err != nil || !ok {
		return nil, oauth2.InvalidClient("client authentication failed")
	}
	return requestClient, nil
}

// TokenPreflightEndpoint answers CORS preflight requests for the token
// endpoint. Browser-based public clients are matched by their registered
// origins.
func (s *Server) TokenPreflightEndpoint(c echo.Context) error {
	origin := c.Request().Header.Get("Origin")
	if origin == "" {
		return oauth2.InvalidRequest("missing Origin header")
	}

	originClient, err := s.clients.FindByOrigin(origin)
	if err != nil || !originClient.IsEnabled() {
		return oauth2.AccessDenied(fmt.Sprintf("origin '%s' is not allowed", origin))
	}

	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, origin)
	header.Set(echo.HeaderAccessControlAllowMethods, "POST, OPTIONS")
	header.Set(echo.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
	header.Set(echo.HeaderAccessControlAllowCredentials, "true")
	header.Set(echo.HeaderAccessControlMaxAge, "300")
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) allowCorsOrigin(c echo.Context, requestClient *client.Client) {
	origin := c.Request().Header.Get("Origin")
	if origin == "" || !requestClient.IsAllowedOrigin(origin) {
		return
	}
	header := c.Response().Header()
	header.Set(echo.HeaderAccessControlAllowOrigin, origin)
	header.Set(echo.HeaderAccessControlAllowCredentials, "true")
}
