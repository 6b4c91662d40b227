package rules

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
)

// Rule keys. Endpoints reference rules by these keys; the order in which an
// endpoint lists them is the order they run in.
const (
	KeyState                 = "state"
	KeyClient                = "client"
	KeyRedirectURI           = "redirect_uri"
	KeyResponseType          = "response_type"
	KeyScope                 = "scope"
	KeyCodeChallenge         = "code_challenge"
	KeyNonce                 = "nonce"
	KeyPrompt                = "prompt"
	KeyACRValues             = "acr_values"
	KeyIDTokenHint           = "id_token_hint"
	KeyPostLogoutRedirectURI = "post_logout_redirect_uri"
	KeyUILocales             = "ui_locales"
)

// DataKeyUserID is the endpoint-local data key carrying the id of the
// authenticated user, when a login session exists.
const DataKeyUserID = "user_id"

type StateRule struct{}

func (StateRule) Key() string { return KeyState }

func (StateRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	state := param(r, "state")
	if state == "" {
		return nil, nil
	}
	return NewResult(KeyState, state), nil
}

// ClientRule resolves the client_id parameter against the registry.
type ClientRule struct {
	Registry client.Registry
}

func (ClientRule) Key() string { return KeyClient }

func (cr ClientRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	clientID := param(r, "client_id")
	if clientID == "" {
		return nil, oauth2.InvalidRequest("missing client_id")
	}
	c, err := cr.Registry.GetClient(clientID)
	if err != nil {
		return nil, oauth2.InvalidClient(fmt.Sprintf("unknown client: '%s'", clientID))
	}
	if !c.IsEnabled() {
		return nil, oauth2.InvalidClient(fmt.Sprintf("client disabled: '%s'", clientID))
	}
	return NewResult(KeyClient, c), nil
}

// RedirectURIRule validates redirect_uri against the already resolved
// client. It depends on ClientRule having run first.
type RedirectURIRule struct{}

func (RedirectURIRule) Key() string { return KeyRedirectURI }

func (RedirectURIRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	c := bag.GetOrFail(KeyClient).Value.(*client.Client)

	redirectURI := param(r, "redirect_uri")
	if redirectURI == "" {
		if len(c.RedirectURIs) == 1 {
			return NewResult(KeyRedirectURI, c.RedirectURIs[0]), nil
		}
		return nil, oauth2.InvalidRequest("missing redirect_uri")
	}
	if !c.IsAllowedRedirectURI(redirectURI) {
		return nil, oauth2.InvalidClient("redirect_uri not registered for client")
	}
	return NewResult(KeyRedirectURI, redirectURI), nil
}

type ResponseTypeRule struct{}

func (ResponseTypeRule) Key() string { return KeyResponseType }

func (ResponseTypeRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	responseType := param(r, "response_type")
	if responseType == "" {
		return nil, oauth2.InvalidRequest("missing response_type")
	}
	return NewResult(KeyResponseType, responseType), nil
}

// ScopeRule validates the requested scopes against the client registration.
// A request without scope falls back to the client's registered scopes.
type ScopeRule struct{}

func (ScopeRule) Key() string { return KeyScope }

func (ScopeRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	c := bag.GetOrFail(KeyClient).Value.(*client.Client)

	raw := param(r, "scope")
	if raw == "" {
		return NewResult(KeyScope, append([]string(nil), c.Scopes...)), nil
	}
	scopes := strings.Fields(raw)
	if !c.IsAllowedScopes(scopes) {
		return nil, oauth2.InvalidScope(fmt.Sprintf("scope not allowed: %s", raw))
	}
	return NewResult(KeyScope, scopes), nil
}

// CodeChallenge is the validated PKCE pair stored in the bag.
type CodeChallenge struct {
	Challenge string
	Method    oauth2.CodeChallengeMethod
}

// CodeChallengeRule validates the PKCE parameters. Methods is the list of
// configured verifiers (plain, S256). When RequireForPublicClients is set,
// public clients must send a challenge.
type CodeChallengeRule struct {
	Methods                 []string
	RequireForPublicClients bool
}

func (CodeChallengeRule) Key() string { return KeyCodeChallenge }

func (ccr CodeChallengeRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	c := bag.GetOrFail(KeyClient).Value.(*client.Client)

	challenge := param(r, "code_challenge")
	if challenge == "" {
		// PKCE binds a code to its requester; response types without a
		// code exchange are exempt
		if ccr.RequireForPublicClients && !c.IsConfidential() && bag.StringValue(KeyResponseType) == oauth2.ResponseTypeCode {
			return nil, oauth2.InvalidRequest("code_challenge required for public clients")
		}
		return nil, nil
	}
	if !oauth2.ValidCodeChallenge(challenge) {
		return nil, oauth2.InvalidRequest("invalid code_challenge").WithHint("expected 43-128 characters of [A-Za-z0-9-._~]")
	}

	method := param(r, "code_challenge_method")
	if method == "" {
		method = string(oauth2.CodeChallengeMethodPlain)
	}
	if !contains(ccr.Methods, method) {
		return nil, oauth2.InvalidRequest(fmt.Sprintf("unsupported code_challenge_method: %s", method))
	}

	return NewResult(KeyCodeChallenge, &CodeChallenge{
		Challenge: challenge,
		Method:    oauth2.CodeChallengeMethod(method),
	}), nil
}

type NonceRule struct{}

func (NonceRule) Key() string { return KeyNonce }

func (NonceRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	nonce := param(r, "nonce")
	if nonce == "" {
		return nil, nil
	}
	return NewResult(KeyNonce, nonce), nil
}

// PromptRule enforces prompt=none semantics: when the client forbids
// interactive login but no user is authenticated, the request fails with
// login_required.
type PromptRule struct{}

func (PromptRule) Key() string { return KeyPrompt }

func (PromptRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	prompt := param(r, "prompt")
	if prompt == "" {
		return nil, nil
	}
	if prompt == "none" {
		userID, _ := rc.Data[DataKeyUserID].(string)
		if userID == "" {
			return nil, oauth2.LoginRequired("prompt=none requested but no user is authenticated")
		}
	}
	return NewResult(KeyPrompt, prompt), nil
}

type ACRValuesRule struct{}

func (ACRValuesRule) Key() string { return KeyACRValues }

func (ACRValuesRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	raw := param(r, "acr_values")
	if raw == "" {
		return nil, nil
	}
	return NewResult(KeyACRValues, strings.Fields(raw)), nil
}
