package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gematik/zero-op/backchannel"
	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/grant"
	"github.com/gematik/zero-op/oauth2"
	"github.com/gematik/zero-op/rules"
	"github.com/labstack/echo/v4"
)

// Rule order for the authorization endpoint. The first three establish
// whether a safe redirect target exists; errors from the rest are reported
// to that target.
var (
	authorizePreRedirectRules = []string{
		rules.KeyState,
		rules.KeyClient,
		rules.KeyRedirectURI,
	}
	authorizePostRedirectRules = []string{
		rules.KeyResponseType,
		rules.KeyScope,
		rules.KeyCodeChallenge,
		rules.KeyNonce,
		rules.KeyPrompt,
		rules.KeyACRValues,
	}
)

func (s *Server) AuthorizationEndpoint(c echo.Context) error {
	var userID, sessionID string
	if s.authenticateUser != nil {
		var err error
		userID, sessionID, err = s.authenticateUser(c)
		if err != nil {
			return oauth2.AccessDenied("user authentication failed")
		}
	}

	bag, err := s.ValidateAuthorizationRequest(c.Request(), userID)
	if err != nil {
		return err
	}

	responseType := bag.StringValue(rules.KeyResponseType)
	authorizationGrant, ok := s.grants.ForResponseType(responseType)
	if !ok {
		return s.withSafeRedirect(bag,
			oauth2.UnsupportedResponseType(fmt.Sprintf("response_type '%s' is not supported", responseType)),
			useFragmentFor(responseType))
	}

	response, err := authorizationGrant.Authorize(&grant.AuthorizationContext{
		Bag:    bag,
		UserID: userID,
	})
	if err != nil {
		if protocolError, ok := err.(*oauth2.Error); ok && protocolError.RedirectURI == "" {
			return s.withSafeRedirect(bag, protocolError, useFragmentFor(responseType))
		}
		return err
	}

	s.recordLogoutAssociation(bag, userID, sessionID)

	return c.Redirect(http.StatusFound, redirectLocation(response.RedirectURI, response.Params, response.InFragment))
}

// ValidateAuthorizationRequest runs the authorization request rules in two
// phases. Phase one errors are answered locally because no redirect URI has
// been validated yet; once client and redirect_uri are established, errors
// carry the redirect so the client learns about them.
func (s *Server) ValidateAuthorizationRequest(r *http.Request, userID string) (*rules.ResultBag, error) {
	methods := []string{http.MethodGet, http.MethodPost}
	data := map[string]any{}
	if userID != "" {
		data[rules.DataKeyUserID] = userID
	}

	bag, err := s.ruleManager.CheckWithBag(r, rules.NewResultBag(), authorizePreRedirectRules, false, methods, data)
	if err != nil {
		return nil, err
	}

	bag, err = s.ruleManager.CheckWithBag(r, bag, authorizePostRedirectRules, false, methods, data)
	if err != nil {
		return nil, s.withSafeRedirect(bag, err, useFragmentFor(param(r, "response_type")))
	}

	return bag, nil
}

// withSafeRedirect attaches the validated redirect target to a protocol
// error so it is delivered to the client instead of rendered locally.
func (s *Server) withSafeRedirect(bag *rules.ResultBag, err error, useFragment bool) error {
	protocolError, ok := err.(*oauth2.Error)
	if !ok {
		return err
	}
	redirectURI := bag.StringValue(rules.KeyRedirectURI)
	if redirectURI == "" {
		return protocolError
	}
	return protocolError.WithRedirect(redirectURI, bag.StringValue(rules.KeyState), useFragment || s.useFragmentOnError)
}

// useFragmentFor reports whether errors for the given response type must go
// into the fragment. Token-bearing response types respond in the fragment,
// so their errors do too.
func useFragmentFor(responseType string) bool {
	return strings.Contains(responseType, oauth2.ResponseTypeToken)
}

// recordLogoutAssociation remembers which relying party took part in the
// login session, so ending the session later can notify it over the
// back channel.
func (s *Server) recordLogoutAssociation(bag *rules.ResultBag, userID, sessionID string) {
	if sessionID == "" || userID == "" {
		return
	}
	cl := bag.GetOrFail(rules.KeyClient).Value.(*client.Client)
	if cl.BackChannelLogoutURI == "" {
		return
	}
	err := s.associations.SaveAssociation(&backchannel.Association{
		ClientID:             cl.ID,
		UserID:               userID,
		SessionID:            sessionID,
		BackChannelLogoutURI: cl.BackChannelLogoutURI,
	})
	if err != nil {
		s.logger.Error("failed to save logout association", "client_id", cl.ID, "error", err)
	}
}

func param(r *http.Request, name string) string {
	return r.FormValue(name)
}
