package connect

import (
	"net"
	"net/url"
	"strings"
)

// Known tool-server hosts and the provider tag recorded against their
// credentials. Anything else is tagged generic.
var providerHosts = map[string]string{
	"rube.app":          "rube",
	"mcp.pipedream.net": "pipedream_v2",
	"mcp.composio.dev":  "composio",
	"mcp.zapier.com":    "zapier",
}

// Default OAuth scopes requested per provider when the authorization request
// is composed.
var providerScopes = map[string]string{
	"rube":         "openid email profile offline_access",
	"pipedream_v2": "openid email profile offline_access",
	"composio":     "openid email profile offline_access",
	"zapier":       "openid email profile offline_access",
	"generic":      "openid email profile offline_access",
}

// InferProvider derives the provider tag from the tool server URL's host.
func InferProvider(toolServerURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(toolServerURL))
	if err != nil {
		return "generic"
	}
	host := strings.ToLower(parsed.Host)
	if h, _, splitErr := net.SplitHostPort(host); splitErr == nil {
		host = h
	}
	if provider, ok := providerHosts[host]; ok {
		return provider
	}
	return "generic"
}

// DefaultScopes returns the scope string requested for a provider.
func DefaultScopes(provider string) string {
	if scopes, ok := providerScopes[provider]; ok {
		return scopes
	}
	return providerScopes["generic"]
}
