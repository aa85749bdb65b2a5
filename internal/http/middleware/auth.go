package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"

	"github.com/agentinbox/mcp-connect/internal/config"
)

const userIDKey = "user_id"

// Auth validates the platform identity token and attaches the user ID.
type Auth struct {
	Secret []byte
	Issuer string
}

// NewAuth builds the middleware from the shared identity secret.
func NewAuth(cfg config.Config) *Auth {
	return &Auth{
		Secret: []byte(cfg.IdentitySecret),
		Issuer: cfg.IdentityIssuer,
	}
}

// RequireUser ensures the request carries a valid bearer token with a subject.
func (m *Auth) RequireUser(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if header == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Authorization header required."})
		return
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Bearer token required."})
		return
	}

	token, err := gojwt.ParseSigned(parts[1], []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Malformed token."})
		return
	}
	var claims gojwt.Claims
	if err := token.Claims(m.Secret, &claims); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Invalid token signature."})
		return
	}

	expected := gojwt.Expected{Time: time.Now()}
	if m.Issuer != "" {
		expected.Issuer = m.Issuer
	}
	if err := claims.Validate(expected); err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token expired or issuer mismatch."})
		return
	}
	if claims.Subject == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token", "error_description": "Token has no subject."})
		return
	}

	c.Set(userIDKey, claims.Subject)
	c.Next()
}

// GetUserID returns the authenticated user ID attached by RequireUser.
func GetUserID(c *gin.Context) (string, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return "", false
	}
	userID, ok := value.(string)
	return userID, ok && userID != ""
}
