package oauth2

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// OAuth2 error codes per RFC 6749 and OpenID Connect Core.
const (
	ErrorInvalidRequest          = "invalid_request"
	ErrorInvalidClient           = "invalid_client"
	ErrorInvalidScope            = "invalid_scope"
	ErrorInvalidGrant            = "invalid_grant"
	ErrorUnauthorizedClient      = "unauthorized_client"
	ErrorUnsupportedResponseType = "unsupported_response_type"
	ErrorUnsupportedGrantType    = "unsupported_grant_type"
	ErrorAccessDenied            = "access_denied"
	ErrorLoginRequired           = "login_required"
	ErrorServerError             = "server_error"
)

// Error is a protocol error: an expected failure caused by client input,
// surfaced to the caller in the RFC 6749 response shape. It is returned as
// a normal Go error value and translated at the transport boundary either
// into a JSON body or, when a safe redirect URI was already established,
// into a redirect with the error parameters in the query string or fragment.
type Error struct {
	HttpStatus  int
	Code        string
	Description string
	Hint        string
	State       string
	RedirectURI string
	UseFragment bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.FullDescription())
}

// FullDescription is the error_description wire value: the description,
// followed by the hint in parentheses when one is set.
func (e *Error) FullDescription() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s (%s)", e.Description, e.Hint)
	}
	return e.Description
}

func (e *Error) MarshalJSON() ([]byte, error) {
	body := struct {
		Code        string `json:"error"`
		Description string `json:"error_description,omitempty"`
		State       string `json:"state,omitempty"`
	}{
		Code:        e.Code,
		Description: e.FullDescription(),
		State:       e.State,
	}
	return json.Marshal(body)
}

// WithHint returns a copy of the error carrying the given hint.
func (e *Error) WithHint(format string, args ...any) *Error {
	clone := *e
	clone.Hint = fmt.Sprintf(format, args...)
	return &clone
}

// WithRedirect returns a copy of the error that will be delivered via
// redirect to the given URI, echoing state. Fragment delivery is used for
// response types that must not leak parameters through the query string.
func (e *Error) WithRedirect(redirectURI, state string, useFragment bool) *Error {
	clone := *e
	clone.RedirectURI = redirectURI
	clone.State = state
	clone.UseFragment = useFragment
	return &clone
}

func InvalidRequest(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorInvalidRequest, Description: description}
}

func InvalidClient(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorInvalidClient, Description: description}
}

func InvalidScope(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorInvalidScope, Description: description}
}

func InvalidGrant(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorInvalidGrant, Description: description}
}

func UnauthorizedClient(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorUnauthorizedClient, Description: description}
}

func UnsupportedResponseType(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorUnsupportedResponseType, Description: description}
}

func UnsupportedGrantType(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorUnsupportedGrantType, Description: description}
}

func AccessDenied(description string) *Error {
	return &Error{HttpStatus: http.StatusUnauthorized, Code: ErrorAccessDenied, Description: description}
}

func LoginRequired(description string) *Error {
	return &Error{HttpStatus: http.StatusBadRequest, Code: ErrorLoginRequired, Description: description}
}

func ServerError(description string) *Error {
	return &Error{HttpStatus: http.StatusInternalServerError, Code: ErrorServerError, Description: description}
}
