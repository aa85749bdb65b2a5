package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	domainconnect "github.com/agentinbox/mcp-connect/internal/domain/connect"
)

// ProviderClient encapsulates outbound HTTP calls to tool servers and their
// authorization servers. None of the calls are retried; a failure is terminal
// for the flow that issued it.
type ProviderClient interface {
	DiscoverMetadata(ctx context.Context, toolServerURL string) (*domainconnect.Metadata, error)
	RegisterClient(ctx context.Context, registrationEndpoint string, in RegistrationInput) (*domainconnect.ClientRegistration, error)
	ExchangeCode(ctx context.Context, tokenEndpoint string, in ExchangeInput) (*domainconnect.TokenResponse, error)
}

// RegistrationInput carries the RFC 7591 request fields. The subsystem only
// ever registers public clients, so no secret is requested or stored.
type RegistrationInput struct {
	ClientName  string
	RedirectURI string
}

// ExchangeInput carries the authorization-code grant parameters.
type ExchangeInput struct {
	Code         string
	RedirectURI  string
	ClientID     string
	CodeVerifier string
	Resource     string
}

// HTTPProviderClient is the default HTTP implementation.
type HTTPProviderClient struct {
	httpClient *http.Client
}

var _ ProviderClient = (*HTTPProviderClient)(nil)

// NewHTTPProviderClient constructs the default ProviderClient.
func NewHTTPProviderClient(client *http.Client) *HTTPProviderClient {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPProviderClient{httpClient: client}
}

type protectedResourceMetadata struct {
	Resource             string   `json:"resource"`
	AuthorizationServers []string `json:"authorization_servers"`
	ScopesSupported      []string `json:"scopes_supported,omitempty"`
}

// DiscoverMetadata resolves the tool server's authorization server via the
// two-hop well-known lookup: RFC 9728 protected resource metadata on the tool
// server's origin, then RFC 8414 authorization server metadata.
func (c *HTTPProviderClient) DiscoverMetadata(ctx context.Context, toolServerURL string) (*domainconnect.Metadata, error) {
	parsed, err := url.Parse(strings.TrimSpace(toolServerURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: tool server url must be absolute", domainconnect.ErrDiscovery)
	}

	resourceURL := fmt.Sprintf("%s://%s/.well-known/oauth-protected-resource", parsed.Scheme, parsed.Host)
	var resource protectedResourceMetadata
	if err := c.getJSON(ctx, resourceURL, &resource); err != nil {
		return nil, fmt.Errorf("%w: %v", domainconnect.ErrDiscovery, err)
	}
	if len(resource.AuthorizationServers) == 0 {
		return nil, fmt.Errorf("%w: no authorization_servers in protected resource metadata", domainconnect.ErrDiscovery)
	}

	authServer := strings.TrimRight(resource.AuthorizationServers[0], "/")
	metadataURL := authServer + "/.well-known/oauth-authorization-server"
	var metadata domainconnect.Metadata
	if err := c.getJSON(ctx, metadataURL, &metadata); err != nil {
		return nil, fmt.Errorf("%w: %v", domainconnect.ErrDiscovery, err)
	}
	if strings.TrimSpace(metadata.AuthorizationEndpoint) == "" || strings.TrimSpace(metadata.TokenEndpoint) == "" {
		return nil, fmt.Errorf("%w: metadata missing authorization or token endpoint", domainconnect.ErrDiscovery)
	}
	return &metadata, nil
}

// RegisterClient performs RFC 7591 dynamic registration of a public client.
func (c *HTTPProviderClient) RegisterClient(ctx context.Context, registrationEndpoint string, in RegistrationInput) (*domainconnect.ClientRegistration, error) {
	payload := map[string]any{
		"client_name":                in.ClientName,
		"redirect_uris":              []string{in.RedirectURI},
		"grant_types":                []string{"authorization_code", "refresh_token"},
		"response_types":             []string{"code"},
		"token_endpoint_auth_method": "none",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal registration request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrationEndpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("build registration request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainconnect.ErrRegistration, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read registration response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", domainconnect.ErrRegistration, resp.StatusCode, truncate(raw))
	}

	var registration domainconnect.ClientRegistration
	if err := json.Unmarshal(raw, &registration); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domainconnect.ErrRegistration, err)
	}
	if strings.TrimSpace(registration.ClientID) == "" {
		return nil, fmt.Errorf("%w: response missing client_id", domainconnect.ErrRegistration)
	}
	return &registration, nil
}

// ExchangeCode posts the authorization code grant to the token endpoint.
func (c *HTTPProviderClient) ExchangeCode(ctx context.Context, tokenEndpoint string, in ExchangeInput) (*domainconnect.TokenResponse, error) {
	if strings.TrimSpace(tokenEndpoint) == "" {
		return nil, fmt.Errorf("%w: token endpoint missing", domainconnect.ErrTokenExchange)
	}
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("code", in.Code)
	data.Set("redirect_uri", in.RedirectURI)
	data.Set("client_id", in.ClientID)
	data.Set("code_verifier", in.CodeVerifier)
	if in.Resource != "" {
		data.Set("resource", in.Resource)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainconnect.ErrTokenExchange, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status=%d body=%s", domainconnect.ErrTokenExchange, resp.StatusCode, truncate(raw))
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", domainconnect.ErrTokenExchange, err)
	}
	token := &domainconnect.TokenResponse{
		AccessToken:  stringValue(decoded["access_token"]),
		RefreshToken: stringValue(decoded["refresh_token"]),
		TokenType:    stringValue(decoded["token_type"]),
		Scope:        stringValue(decoded["scope"]),
		ExpiresIn:    int64Value(decoded["expires_in"]),
	}
	if strings.TrimSpace(token.AccessToken) == "" {
		return nil, fmt.Errorf("%w: response missing access_token", domainconnect.ErrTokenExchange)
	}
	return token, nil
}

func (c *HTTPProviderClient) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", rawURL, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fetch %s: status=%d", rawURL, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", rawURL, err)
	}
	return nil
}

func truncate(raw []byte) string {
	const max = 512
	body := strings.TrimSpace(string(raw))
	if len(body) > max {
		return body[:max]
	}
	return body
}

func stringValue(input any) string {
	switch v := input.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

func int64Value(input any) int64 {
	switch v := input.(type) {
	case float64:
		return int64(v)
	case float32:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
