package connect

import "time"

// PKCE holds the proof-key pair generated once per authorization flow.
// Verifiers are never reused across flows.
type PKCE struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// FlowState is the anti-forgery record round-tripped through the third-party
// authorization redirect. It is keyed by the opaque state token, written once
// by Initiate, read once and deleted by Callback, and expires on its own TTL
// when the user abandons the flow.
type FlowState struct {
	State         string    `json:"state"`
	CodeVerifier  string    `json:"code_verifier"`
	UserID        string    `json:"user_id"`
	ToolServerURL string    `json:"tool_server_url"`
	Provider      string    `json:"provider"`
	ClientID      string    `json:"client_id"`
	Global        bool      `json:"is_global"`
	AgentID       string    `json:"agent_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Metadata models the authorization server document discovered per flow.
// It is ephemeral and never cached across flows.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RegistrationEndpoint          string   `json:"registration_endpoint,omitempty"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported,omitempty"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
}

// ClientRegistration is the result of RFC 7591 dynamic client registration.
type ClientRegistration struct {
	ClientID                string   `json:"client_id"`
	ClientName              string   `json:"client_name,omitempty"`
	RedirectURIs            []string `json:"redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
}

// TokenResponse models the authorization server's token endpoint reply.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresIn    int64  `json:"expires_in,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// OAuthTokens is the encrypted token material inside a persisted bundle.
// AccessToken and RefreshToken hold the nonce:tag:ciphertext serialization
// produced by the secret package, never plaintext.
type OAuthTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	TokenType    string    `json:"token_type,omitempty"`
}

// CredentialBundle is the persisted result of a successful flow. It lives in
// exactly one of two scopes: one row per user (global) or one row per
// (user, agent) pair. Last successful flow always wins.
type CredentialBundle struct {
	Provider      string      `json:"provider"`
	ToolServerURL string      `json:"tool_server_url"`
	OAuthTokens   OAuthTokens `json:"oauth_tokens"`
}
