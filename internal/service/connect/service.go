package connect

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	oauthadapter "github.com/agentinbox/mcp-connect/internal/adapter/oauth"
	"github.com/agentinbox/mcp-connect/internal/config"
	domainconnect "github.com/agentinbox/mcp-connect/internal/domain/connect"
	"github.com/agentinbox/mcp-connect/internal/repository"
	"github.com/agentinbox/mcp-connect/internal/secret"
)

// Callback paths are deterministic from the deployment's public base URL and
// the credential scope, so redirect URIs registered with an authorization
// server stay stable across flows.
const (
	CallbackPathGlobal = "/connect/callback"
	CallbackPathAgent  = "/connect/agents/callback"
)

// Service orchestrates the authorization-code flow against a tool server.
type Service interface {
	Initiate(ctx context.Context, userID string, in InitiateInput) (*InitiateOutput, error)
	Callback(ctx context.Context, in CallbackInput) (*CallbackResult, error)
}

// InitiateInput selects the tool server and the credential scope.
type InitiateInput struct {
	ToolServerURL string
	AgentID       string
	Global        bool
}

// InitiateOutput carries everything the browser needs to open the popup.
type InitiateOutput struct {
	AuthURL  string
	State    string
	Provider string
}

// CallbackInput captures the authorization server's redirect parameters.
type CallbackInput struct {
	Code       string
	State      string
	ErrorParam string
}

// CallbackResult reports which credential scope was written.
type CallbackResult struct {
	Provider string
	Global   bool
	AgentID  string
}

type service struct {
	stateStore     repository.FlowStateStore
	providerClient oauthadapter.ProviderClient
	credentials    repository.CredentialRepository
	cipher         *secret.Cipher
	cfg            config.Config
	logger         *zap.Logger
}

// NewService wires the flow orchestrator.
func NewService(
	stateStore repository.FlowStateStore,
	providerClient oauthadapter.ProviderClient,
	credentials repository.CredentialRepository,
	cipher *secret.Cipher,
	cfg config.Config,
	logger *zap.Logger,
) Service {
	return &service{
		stateStore:     stateStore,
		providerClient: providerClient,
		credentials:    credentials,
		cipher:         cipher,
		cfg:            cfg,
		logger:         logger,
	}
}

func (s *service) Initiate(ctx context.Context, userID string, in InitiateInput) (*InitiateOutput, error) {
	toolServerURL := strings.TrimSpace(in.ToolServerURL)
	if userID == "" || toolServerURL == "" {
		return nil, domainconnect.ErrInvalidRequest
	}
	if !in.Global && strings.TrimSpace(in.AgentID) == "" {
		return nil, fmt.Errorf("%w: agent_id required for agent-scoped flows", domainconnect.ErrInvalidRequest)
	}

	pkce, err := secret.DerivePKCE()
	if err != nil {
		return nil, fmt.Errorf("derive pkce: %w", err)
	}
	state, err := secret.NewStateToken()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	provider := InferProvider(toolServerURL)

	// Discovery and registration run before any flow state is written, so a
	// failed initiate leaves nothing behind.
	metadata, err := s.providerClient.DiscoverMetadata(ctx, toolServerURL)
	if err != nil {
		return nil, err
	}

	callbackURL := s.callbackURL(in.Global)
	clientID, err := s.resolveClientID(ctx, metadata, callbackURL)
	if err != nil {
		return nil, err
	}

	flow := domainconnect.FlowState{
		State:         state,
		CodeVerifier:  pkce.CodeVerifier,
		UserID:        userID,
		ToolServerURL: toolServerURL,
		Provider:      provider,
		ClientID:      clientID,
		Global:        in.Global,
		AgentID:       strings.TrimSpace(in.AgentID),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.stateStore.SaveState(ctx, state, flow, s.cfg.StateTTL); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	authURL, err := url.Parse(metadata.AuthorizationEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: parse authorization endpoint: %v", domainconnect.ErrDiscovery, err)
	}
	params := authURL.Query()
	params.Set("client_id", clientID)
	params.Set("redirect_uri", callbackURL)
	params.Set("response_type", "code")
	params.Set("state", state)
	params.Set("code_challenge", pkce.CodeChallenge)
	params.Set("code_challenge_method", pkce.CodeChallengeMethod)
	params.Set("scope", DefaultScopes(provider))
	params.Set("resource", toolServerURL)
	authURL.RawQuery = params.Encode()

	return &InitiateOutput{
		AuthURL:  authURL.String(),
		State:    state,
		Provider: provider,
	}, nil
}

func (s *service) Callback(ctx context.Context, in CallbackInput) (*CallbackResult, error) {
	if errParam := strings.TrimSpace(in.ErrorParam); errParam != "" {
		return nil, fmt.Errorf("%w: authorization server returned %q", domainconnect.ErrTokenExchange, errParam)
	}
	if strings.TrimSpace(in.Code) == "" || strings.TrimSpace(in.State) == "" {
		return nil, domainconnect.ErrInvalidRequest
	}

	flow, err := s.stateStore.GetState(ctx, in.State)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	if flow == nil {
		// Either a forged callback or a replay of a consumed flow; in both
		// cases the token endpoint is never contacted.
		s.log().Warn("callback with unknown or expired state", zap.String("state", in.State))
		return nil, domainconnect.ErrInvalidState
	}
	// The state is consumed regardless of what happens next.
	defer s.deleteState(ctx, in.State)

	// Re-discover rather than trusting endpoint data that crossed the
	// redirect round-trip inside FlowState.
	metadata, err := s.providerClient.DiscoverMetadata(ctx, flow.ToolServerURL)
	if err != nil {
		return nil, err
	}

	callbackURL := s.callbackURL(flow.Global)
	token, err := s.providerClient.ExchangeCode(ctx, metadata.TokenEndpoint, oauthadapter.ExchangeInput{
		Code:         in.Code,
		RedirectURI:  callbackURL,
		ClientID:     flow.ClientID,
		CodeVerifier: flow.CodeVerifier,
		Resource:     flow.ToolServerURL,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := s.encryptTokens(token)
	if err != nil {
		return nil, err
	}

	bundle := domainconnect.CredentialBundle{
		Provider:      flow.Provider,
		ToolServerURL: flow.ToolServerURL,
		OAuthTokens:   tokens,
	}
	if flow.Global {
		err = s.credentials.UpsertGlobal(ctx, flow.UserID, bundle)
	} else {
		err = s.credentials.UpsertAgentScoped(ctx, flow.UserID, flow.AgentID, bundle)
	}
	if err != nil {
		return nil, err
	}

	s.log().Info("credential bundle persisted",
		zap.String("user_id", flow.UserID),
		zap.String("provider", flow.Provider),
		zap.Bool("is_global", flow.Global),
	)

	return &CallbackResult{
		Provider: flow.Provider,
		Global:   flow.Global,
		AgentID:  flow.AgentID,
	}, nil
}

func (s *service) resolveClientID(ctx context.Context, metadata *domainconnect.Metadata, callbackURL string) (string, error) {
	if s.cfg.StaticClientID != "" {
		return s.cfg.StaticClientID, nil
	}
	if strings.TrimSpace(metadata.RegistrationEndpoint) == "" {
		return "", fmt.Errorf("%w: no static client_id configured and server offers no registration endpoint", domainconnect.ErrRegistration)
	}
	registration, err := s.providerClient.RegisterClient(ctx, metadata.RegistrationEndpoint, oauthadapter.RegistrationInput{
		ClientName:  s.cfg.ClientName,
		RedirectURI: callbackURL,
	})
	if err != nil {
		return "", err
	}
	return registration.ClientID, nil
}

func (s *service) encryptTokens(token *domainconnect.TokenResponse) (domainconnect.OAuthTokens, error) {
	access, err := s.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return domainconnect.OAuthTokens{}, fmt.Errorf("encrypt access token: %w", err)
	}
	tokens := domainconnect.OAuthTokens{
		AccessToken: access,
		ExpiresAt:   time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second),
		TokenType:   token.TokenType,
	}
	if tokens.TokenType == "" {
		tokens.TokenType = "Bearer"
	}
	if token.RefreshToken != "" {
		refresh, err := s.cipher.Encrypt(token.RefreshToken)
		if err != nil {
			return domainconnect.OAuthTokens{}, fmt.Errorf("encrypt refresh token: %w", err)
		}
		tokens.RefreshToken = refresh
	}
	return tokens, nil
}

func (s *service) callbackURL(global bool) string {
	if global {
		return s.cfg.PublicBaseURL + CallbackPathGlobal
	}
	return s.cfg.PublicBaseURL + CallbackPathAgent
}

func (s *service) deleteState(ctx context.Context, state string) {
	if err := s.stateStore.DeleteState(ctx, state); err != nil {
		s.log().Warn("failed to delete flow state", zap.Error(err))
	}
}

func (s *service) log() *zap.Logger {
	if s != nil && s.logger != nil {
		return s.logger
	}
	return zap.L()
}
