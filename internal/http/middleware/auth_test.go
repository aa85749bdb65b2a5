package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-jose/go-jose/v4"
	gojwt "github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"

	"github.com/agentinbox/mcp-connect/internal/http/middleware"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func signToken(t *testing.T, claims gojwt.Claims) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: testSecret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)
	raw, err := gojwt.Signed(signer).Claims(claims).Serialize()
	require.NoError(t, err)
	return raw
}

func runAuth(t *testing.T, auth *middleware.Auth, header string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	req := httptest.NewRequest(http.MethodPost, "https://app.example.com/connect/initiate", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	auth.RequireUser(c)
	return c, w
}

func TestRequireUser_ValidToken(t *testing.T) {
	auth := &middleware.Auth{Secret: testSecret}
	token := signToken(t, gojwt.Claims{
		Subject: "user-1",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	c, w := runAuth(t, auth, "Bearer "+token)

	require.Equal(t, http.StatusOK, w.Code)
	userID, ok := middleware.GetUserID(c)
	require.True(t, ok)
	require.Equal(t, "user-1", userID)
}

func TestRequireUser_IssuerEnforcedWhenConfigured(t *testing.T) {
	auth := &middleware.Auth{Secret: testSecret, Issuer: "https://id.example.com"}

	good := signToken(t, gojwt.Claims{
		Subject: "user-1",
		Issuer:  "https://id.example.com",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	_, w := runAuth(t, auth, "Bearer "+good)
	require.Equal(t, http.StatusOK, w.Code)

	bad := signToken(t, gojwt.Claims{
		Subject: "user-1",
		Issuer:  "https://attacker.example.com",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	_, w = runAuth(t, auth, "Bearer "+bad)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_RejectsExpiredToken(t *testing.T) {
	auth := &middleware.Auth{Secret: testSecret}
	token := signToken(t, gojwt.Claims{
		Subject: "user-1",
		Expiry:  gojwt.NewNumericDate(time.Now().Add(-time.Minute)),
	})

	_, w := runAuth(t, auth, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_RejectsMissingSubject(t *testing.T) {
	auth := &middleware.Auth{Secret: testSecret}
	token := signToken(t, gojwt.Claims{
		Expiry: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	_, w := runAuth(t, auth, "Bearer "+token)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUser_RejectsMalformedHeaders(t *testing.T) {
	auth := &middleware.Auth{Secret: testSecret}

	_, w := runAuth(t, auth, "")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	_, w = runAuth(t, auth, "Basic abc")
	require.Equal(t, http.StatusUnauthorized, w.Code)

	_, w = runAuth(t, auth, "Bearer not.a.jwt")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}
