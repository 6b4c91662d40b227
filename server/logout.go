package server

import (
	"net/http"
	"net/url"

	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

var logoutRules = []string{
	rules.KeyState,
	rules.KeyIDTokenHint,
	rules.KeyPostLogoutRedirectURI,
	rules.KeyUILocales,
}

// LogoutRequest is the validated outcome of an RP-initiated logout request.
type LogoutRequest struct {
	State                 string
	UILocales             []string
	PostLogoutRedirectURI string
	SubjectID             string
	SessionID             string
	ClientID              string
}

func (s *Server) LogoutEndpoint(c echo.Context) error {
	logoutRequest, err := s.ValidateLogoutRequest(c.Request())
	if err != nil {
		return err
	}

	// The browser session takes precedence over the sid hint: the user is
	// logging out of the session they are currently in.
	if s.authenticateUser != nil {
		_, sessionID, err := s.authenticateUser(c)
		if err == nil && sessionID != "" {
			logoutRequest.SessionID = sessionID
		}
	}

	if logoutRequest.SessionID != "" {
		s.backChannel.NotifySessionEnded(c.Request().Context(), logoutRequest.SessionID)
	}

	if logoutRequest.PostLogoutRedirectURI != "" {
		params := url.Values{}
		if logoutRequest.State != "" {
			params.Set("state", logoutRequest.State)
		}
		return c.Redirect(http.StatusFound, redirectLocation(logoutRequest.PostLogoutRedirectURI, params, false))
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "logged out"})
}

func (s *Server) ValidateLogoutRequest(r *http.Request) (*LogoutRequest, error) {
	bag, err := s.ruleManager.Check(r, logoutRules, false, []string{http.MethodGet, http.MethodPost})
	if err != nil {
		return nil, err
	}

	logoutRequest := &LogoutRequest{
		State:                 bag.StringValue(rules.KeyState),
		PostLogoutRedirectURI: bag.StringValue(rules.KeyPostLogoutRedirectURI),
	}
	if localesResult, ok := bag.Get(rules.KeyUILocales); ok {
		logoutRequest.UILocales = localesResult.Value.([]string)
	}
	if hintResult, ok := bag.Get(rules.KeyIDTokenHint); ok {
		hint := hintResult.Value.(jwt.Token)
		logoutRequest.SubjectID = hint.Subject()
		if len(hint.Audience()) > 0 {
			logoutRequest.ClientID = hint.Audience()[0]
		}
		if sid, ok := hint.Get("sid"); ok {
			sidString, ok := sid.(string)
			if !ok {
				return nil, oauth2.InvalidRequest("id_token_hint carries a malformed sid claim")
			}
			logoutRequest.SessionID = sidString
		}
	}

	return logoutRequest, nil
}
