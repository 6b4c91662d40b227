// Package oauth2 holds the protocol-level types shared by the authorization
// server core: the OAuth2/OIDC error taxonomy, the token response shape and
// the PKCE code challenge helpers.
package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"regexp"
)

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeImplicit          = "implicit"
)

const (
	ResponseTypeCode         = "code"
	ResponseTypeToken        = "token"
	ResponseTypeIDTokenToken = "id_token token"
)

type CodeChallengeMethod string

const (
	CodeChallengeMethodPlain CodeChallengeMethod = "plain"
	CodeChallengeMethodS256  CodeChallengeMethod = "S256"
)

// codeChallengePattern is the PKCE charset and length constraint from RFC 7636.
var codeChallengePattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

func ValidCodeChallenge(challenge string) bool {
	return codeChallengePattern.MatchString(challenge)
}

func ValidCodeVerifier(verifier string) bool {
	return codeChallengePattern.MatchString(verifier)
}

func S256ChallengeFromVerifier(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyCodeChallenge recomputes the challenge from the client-supplied
// verifier and compares it in constant time against the stored challenge.
func VerifyCodeChallenge(challenge string, method CodeChallengeMethod, verifier string) bool {
	var computed string
	switch method {
	case CodeChallengeMethodS256:
		computed = S256ChallengeFromVerifier(verifier)
	case CodeChallengeMethodPlain:
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}
