package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	domainconnect "github.com/agentinbox/mcp-connect/internal/domain/connect"
	"github.com/agentinbox/mcp-connect/internal/http/middleware"
	connectsvc "github.com/agentinbox/mcp-connect/internal/service/connect"
)

// ConnectHandler exposes the OAuth connect endpoints.
type ConnectHandler struct {
	Connect connectsvc.Service
	Logger  *zap.Logger
}

// NewConnectHandler creates the handler set.
func NewConnectHandler(connect connectsvc.Service, logger *zap.Logger) *ConnectHandler {
	return &ConnectHandler{Connect: connect, Logger: logger}
}

type initiateRequest struct {
	ToolServerURL string `json:"tool_server_url" binding:"required"`
}

// InitiateGlobal starts an authorization flow for the user's shared credential.
func (h *ConnectHandler) InitiateGlobal(c *gin.Context) {
	h.initiate(c, "", true)
}

// InitiateAgent starts an authorization flow scoped to a single agent.
func (h *ConnectHandler) InitiateAgent(c *gin.Context) {
	agentID := strings.TrimSpace(c.Param("agent_id"))
	if agentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "agent_id is required."})
		return
	}
	h.initiate(c, agentID, false)
}

func (h *ConnectHandler) initiate(c *gin.Context, agentID string, global bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authentication required."})
		return
	}

	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "tool_server_url is required."})
		return
	}

	out, err := h.Connect.Initiate(c.Request.Context(), userID, connectsvc.InitiateInput{
		ToolServerURL: req.ToolServerURL,
		AgentID:       agentID,
		Global:        global,
	})
	if err != nil {
		h.renderJSONError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"auth_url": out.AuthURL,
		"state":    out.State,
		"provider": out.Provider,
	})
}

// CallbackGlobal completes a global-scope flow and notifies the opener window.
func (h *ConnectHandler) CallbackGlobal(c *gin.Context) {
	h.callback(c)
}

// CallbackAgent completes an agent-scope flow and notifies the opener window.
func (h *ConnectHandler) CallbackAgent(c *gin.Context) {
	h.callback(c)
}

func (h *ConnectHandler) callback(c *gin.Context) {
	_, err := h.Connect.Callback(c.Request.Context(), connectsvc.CallbackInput{
		Code:       c.Query("code"),
		State:      c.Query("state"),
		ErrorParam: c.Query("error"),
	})
	if err != nil {
		h.log().Warn("oauth callback failed", zap.Error(err))
		h.renderPopupResult(c, gin.H{"type": "mcp_oauth_error", "error": publicErrorMessage(err)})
		return
	}
	h.renderPopupResult(c, gin.H{"type": "mcp_oauth_complete"})
}

// renderPopupResult serves the page the authorization server redirects the
// popup to. It posts the result to the opener window and closes itself; the
// callback never renders application UI.
func (h *ConnectHandler) renderPopupResult(c *gin.Context, message gin.H) {
	payload, err := json.Marshal(message)
	if err != nil {
		payload = []byte(`{"type":"mcp_oauth_error","error":"internal error"}`)
	}
	page := fmt.Sprintf(popupResultPage, payload)
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(page))
}

// json.Marshal escapes <, > and & so the payload is safe to inline.
const popupResultPage = `<!doctype html>
<html>
<head><title>Connection complete</title></head>
<body>
<p>You can close this window.</p>
<script>
  (function () {
    var message = %s;
    if (window.opener) {
      window.opener.postMessage(message, "*");
    }
    window.close();
  })();
</script>
</body>
</html>
`

func (h *ConnectHandler) renderJSONError(c *gin.Context, err error) {
	status, code := statusForError(err)
	if status >= http.StatusInternalServerError {
		h.log().Error("connect request failed", zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code, "error_description": publicErrorMessage(err)})
}

func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, domainconnect.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, domainconnect.ErrInvalidState):
		return http.StatusBadRequest, "invalid_state"
	case errors.Is(err, domainconnect.ErrDiscovery):
		return http.StatusBadGateway, "discovery_failed"
	case errors.Is(err, domainconnect.ErrRegistration):
		return http.StatusBadGateway, "registration_failed"
	case errors.Is(err, domainconnect.ErrTokenExchange):
		return http.StatusBadGateway, "token_exchange_failed"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

// publicErrorMessage maps domain errors to messages safe to show a browser.
// Wrapped detail may carry provider response bodies and stays in the logs.
func publicErrorMessage(err error) string {
	switch {
	case errors.Is(err, domainconnect.ErrInvalidRequest):
		return "Invalid request."
	case errors.Is(err, domainconnect.ErrInvalidState):
		return "Authorization session is unknown or expired. Please retry the connection."
	case errors.Is(err, domainconnect.ErrDiscovery):
		return "Could not discover the tool server's authorization endpoints."
	case errors.Is(err, domainconnect.ErrRegistration):
		return "Could not register a client with the authorization server."
	case errors.Is(err, domainconnect.ErrTokenExchange):
		return "Authorization was not completed."
	default:
		return "Internal error."
	}
}

func (h *ConnectHandler) log() *zap.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return zap.L()
}
