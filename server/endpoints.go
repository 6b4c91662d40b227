package server

import (
	"net/http"

	"github.com/gematik/zero-op/oauth2"
	"github.com/labstack/echo/v4"
)

func (s *Server) MetadataEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Metadata)
}

func (s *Server) JWKSEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, s.jwks)
}

// NonceEndpoint hands out single-use replay nonces. HEAD requests get the
// nonce in the Replay-Nonce header, GET requests as a JSON body.
func (s *Server) NonceEndpoint(c echo.Context) error {
	nonceValue, err := s.nonceService.Get()
	if err != nil {
		return oauth2.ServerError("failed to generate nonce")
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	if c.Request().Method == http.MethodHead {
		c.Response().Header().Set("Replay-Nonce", nonceValue)
		return c.NoContent(http.StatusOK)
	}
	return c.JSON(http.StatusOK, map[string]string{"nonce": nonceValue})
}
