package rules

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gematik/zero-op/client"
	"github.com/gematik/zero-op/oauth2"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// IDTokenHintRule parses and verifies the id_token_hint of a logout
// request. Only the signature and the issuer are checked: an expired ID
// token is still an acceptable logout hint. The parsed token is stored in
// the bag for dependent rules.
type IDTokenHintRule struct {
	Issuer   string
	KeysFunc func() (jwk.Set, error)
}

func (IDTokenHintRule) Key() string { return KeyIDTokenHint }

func (ir IDTokenHintRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	hint := param(r, "id_token_hint")
	if hint == "" {
		return nil, nil
	}

	keys, err := ir.KeysFunc()
	if err != nil {
		return nil, oauth2.ServerError("signing keys unavailable")
	}

	token, err := jwt.ParseString(hint, jwt.WithKeySet(keys), jwt.WithValidate(false))
	if err != nil {
		return nil, oauth2.InvalidRequest("invalid id_token_hint").WithHint("%v", err)
	}
	if token.Issuer() != ir.Issuer {
		return nil, oauth2.InvalidRequest("id_token_hint was not issued by this server")
	}

	return NewResult(KeyIDTokenHint, token), nil
}

// PostLogoutRedirectURIRule validates post_logout_redirect_uri against the
// registration of the client the id_token_hint was issued to.
type PostLogoutRedirectURIRule struct {
	Registry client.Registry
}

func (PostLogoutRedirectURIRule) Key() string { return KeyPostLogoutRedirectURI }

func (pr PostLogoutRedirectURIRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	postLogoutURI := param(r, "post_logout_redirect_uri")
	if postLogoutURI == "" {
		return nil, nil
	}

	hintResult, ok := bag.Get(KeyIDTokenHint)
	if !ok {
		return nil, oauth2.InvalidRequest("post_logout_redirect_uri requires id_token_hint")
	}
	token := hintResult.Value.(jwt.Token)

	audience := token.Audience()
	if len(audience) == 0 {
		return nil, oauth2.InvalidRequest("id_token_hint carries no audience")
	}
	c, err := pr.Registry.GetClient(audience[0])
	if err != nil {
		return nil, oauth2.InvalidClient(fmt.Sprintf("unknown client: '%s'", audience[0]))
	}
	if !c.IsAllowedPostLogoutURI(postLogoutURI) {
		return nil, oauth2.InvalidRequest("post_logout_redirect_uri not registered for client")
	}

	return NewResult(KeyPostLogoutRedirectURI, postLogoutURI), nil
}

type UILocalesRule struct{}

func (UILocalesRule) Key() string { return KeyUILocales }

func (UILocalesRule) Check(r *http.Request, bag *ResultBag, rc *RuleContext) (*Result, error) {
	raw := param(r, "ui_locales")
	if raw == "" {
		return nil, nil
	}
	return NewResult(KeyUILocales, strings.Fields(raw)), nil
}
