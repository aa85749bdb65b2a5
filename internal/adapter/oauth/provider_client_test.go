package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	domainconnect "github.com/agentinbox/mcp-connect/internal/domain/connect"
)

func newDiscoveryServers(t *testing.T) (*httptest.Server, *httptest.Server) {
	t.Helper()

	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-authorization-server" {
			http.NotFound(w, r)
			return
		}
		host := "http://" + r.Host
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 host,
			"authorization_endpoint": host + "/oauth/authorize",
			"token_endpoint":         host + "/oauth/token",
			"registration_endpoint":  host + "/oauth/register",
		})
	}))
	t.Cleanup(authServer.Close)

	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/oauth-protected-resource" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"resource":              "http://" + r.Host,
			"authorization_servers": []string{authServer.URL},
		})
	}))
	t.Cleanup(toolServer.Close)

	return toolServer, authServer
}

func TestDiscoverMetadata_TwoHop(t *testing.T) {
	toolServer, authServer := newDiscoveryServers(t)
	client := NewHTTPProviderClient(nil)

	metadata, err := client.DiscoverMetadata(context.Background(), toolServer.URL+"/mcp")
	require.NoError(t, err)
	require.Equal(t, authServer.URL+"/oauth/authorize", metadata.AuthorizationEndpoint)
	require.Equal(t, authServer.URL+"/oauth/token", metadata.TokenEndpoint)
	require.Equal(t, authServer.URL+"/oauth/register", metadata.RegistrationEndpoint)
}

func TestDiscoverMetadata_ResourceDocumentMissing(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	client := NewHTTPProviderClient(nil)
	_, err := client.DiscoverMetadata(context.Background(), server.URL+"/mcp")
	require.ErrorIs(t, err, domainconnect.ErrDiscovery)
}

func TestDiscoverMetadata_NoAuthorizationServers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"resource": "http://" + r.Host})
	}))
	defer server.Close()

	client := NewHTTPProviderClient(nil)
	_, err := client.DiscoverMetadata(context.Background(), server.URL)
	require.ErrorIs(t, err, domainconnect.ErrDiscovery)
}

func TestDiscoverMetadata_MetadataMissingEndpoints(t *testing.T) {
	authServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"issuer": "http://" + r.Host})
	}))
	defer authServer.Close()
	toolServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"authorization_servers": []string{authServer.URL}})
	}))
	defer toolServer.Close()

	client := NewHTTPProviderClient(nil)
	_, err := client.DiscoverMetadata(context.Background(), toolServer.URL)
	require.ErrorIs(t, err, domainconnect.ErrDiscovery)
}

func TestDiscoverMetadata_RelativeURLRejected(t *testing.T) {
	client := NewHTTPProviderClient(nil)
	_, err := client.DiscoverMetadata(context.Background(), "not-a-url")
	require.ErrorIs(t, err, domainconnect.ErrDiscovery)
}

func TestRegisterClient(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"client_id": "dyn-client-1"})
	}))
	defer server.Close()

	client := NewHTTPProviderClient(nil)
	registration, err := client.RegisterClient(context.Background(), server.URL+"/oauth/register", RegistrationInput{
		ClientName:  "agentinbox-connect",
		RedirectURI: "https://app.example.com/connect/callback",
	})
	require.NoError(t, err)
	require.Equal(t, "dyn-client-1", registration.ClientID)

	require.Equal(t, "agentinbox-connect", captured["client_name"])
	require.Equal(t, "none", captured["token_endpoint_auth_method"])
	require.ElementsMatch(t, []any{"authorization_code", "refresh_token"}, captured["grant_types"])
	require.Equal(t, []any{"https://app.example.com/connect/callback"}, captured["redirect_uris"])
	require.Equal(t, []any{"code"}, captured["response_types"])
}

func TestRegisterClient_Rejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_client_metadata"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPProviderClient(nil)
	_, err := client.RegisterClient(context.Background(), server.URL, RegistrationInput{ClientName: "x", RedirectURI: "https://x"})
	require.ErrorIs(t, err, domainconnect.ErrRegistration)
}

func TestExchangeCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		require.Equal(t, "code-123", r.PostForm.Get("code"))
		require.Equal(t, "verifier-abc", r.PostForm.Get("code_verifier"))
		require.Equal(t, "client-1", r.PostForm.Get("client_id"))
		require.Equal(t, "https://app.example.com/connect/callback", r.PostForm.Get("redirect_uri"))
		require.Equal(t, "https://rube.app/mcp", r.PostForm.Get("resource"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	client := NewHTTPProviderClient(nil)
	token, err := client.ExchangeCode(context.Background(), server.URL+"/oauth/token", ExchangeInput{
		Code:         "code-123",
		RedirectURI:  "https://app.example.com/connect/callback",
		ClientID:     "client-1",
		CodeVerifier: "verifier-abc",
		Resource:     "https://rube.app/mcp",
	})
	require.NoError(t, err)
	require.Equal(t, "at-1", token.AccessToken)
	require.Equal(t, "rt-1", token.RefreshToken)
	require.Equal(t, int64(3600), token.ExpiresIn)
	require.Equal(t, "Bearer", token.TokenType)
}

func TestExchangeCode_ProviderErrorSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid_grant","error_description":"code expired"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPProviderClient(nil)
	_, err := client.ExchangeCode(context.Background(), server.URL, ExchangeInput{Code: "stale"})
	require.ErrorIs(t, err, domainconnect.ErrTokenExchange)
	require.Contains(t, err.Error(), "invalid_grant")
}
