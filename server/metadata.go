package server

// OAuth2 Authorization Server Metadata
// See https://datatracker.ietf.org/doc/html/rfc8414
type Metadata struct {
	Issuer                                     string   `json:"issuer" yaml:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint" yaml:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint" yaml:"token_endpoint"`
	JwksURI                                    string   `json:"jwks_uri,omitempty" yaml:"jwks_uri"`
	EndSessionEndpoint                         string   `json:"end_session_endpoint,omitempty" yaml:"end_session_endpoint"`
	NonceEndpoint                              string   `json:"nonce_endpoint,omitempty" yaml:"nonce_endpoint"`
	ScopesSupported                            []string `json:"scopes_supported" yaml:"scopes_supported"`
	ResponseTypesSupported                     []string `json:"response_types_supported" yaml:"response_types_supported"`
	ResponseModesSupported                     []string `json:"response_modes_supported" yaml:"response_modes_supported"`
	GrantTypesSupported                        []string `json:"grant_types_supported" yaml:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported" yaml:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported" yaml:"token_endpoint_auth_signing_alg_values_supported"`
	ServiceDocumentation                       string   `json:"service_documentation,omitempty" yaml:"service_documentation"`
	UILocalesSupported                         []string `json:"ui_locales_supported,omitempty" yaml:"ui_locales_supported"`
	OPPolicyURI                                string   `json:"op_policy_uri,omitempty" yaml:"op_policy_uri"`
	OPTosURI                                   string   `json:"op_tos_uri,omitempty" yaml:"op_tos_uri"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported" yaml:"code_challenge_methods_supported"`
	BackChannelLogoutSupported                 bool     `json:"backchannel_logout_supported" yaml:"backchannel_logout_supported"`
	BackChannelLogoutSessionSupported          bool     `json:"backchannel_logout_session_supported" yaml:"backchannel_logout_session_supported"`
}
