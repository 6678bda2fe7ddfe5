package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleViewer, PermVersionsRead))
	assert.False(t, HasPermission(RoleViewer, PermOptimizeRun))
	assert.True(t, HasPermission(RoleOperator, PermOptimizeRun))
	assert.False(t, HasPermission(RoleOperator, PermVersionsDeploy))
	assert.True(t, HasPermission(RoleAdmin, PermVersionsDeploy))
	assert.True(t, HasPermission(RoleAdmin, PermVersionsRollback))
}

func TestPrincipal_ScopedAgentName(t *testing.T) {
	p := Principal{TenantID: "tenant-a"}
	assert.Equal(t, "tenant-a::my-agent", p.ScopedAgentName("my-agent"))
}

func signHS256(t *testing.T, secret, kid string, claims map[string]interface{}) string {
	t.Helper()
	header := map[string]interface{}{"alg": "HS256", "typ": "JWT"}
	if kid != "" {
		header["kid"] = kid
	}
	headerJSON, err := json.Marshal(header)
	require.NoError(t, err)
	claimsJSON, err := json.Marshal(claims)
	require.NoError(t, err)

	headerB64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	claimsB64 := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := headerB64 + "." + claimsB64

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signingInput))
	sig := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return signingInput + "." + sig
}

func baseClaims() map[string]interface{} {
	return map[string]interface{}{
		"exp":       time.Now().Add(time.Hour).Unix(),
		"tenant_id": "tenant-a",
		"role":      "operator",
		"sub":       "user-1",
	}
}

func TestTenantMiddleware_DisabledSynthesizesLocalAdmin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTenantMiddleware(TenantConfig{Enabled: false, DefaultTenant: "default"})

	router := gin.New()
	router.Use(m.Authenticate())
	router.GET("/x", func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		require.True(t, ok)
		c.JSON(http.StatusOK, gin.H{"tenant": p.TenantID, "role": p.Role})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"admin"`)
}

func TestTenantMiddleware_APIKeyAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTenantMiddleware(TenantConfig{
		Enabled: true,
		APIKeys: map[string]APIKeyEntry{
			"sk-good": {TenantID: "tenant-a", Role: RoleOperator, Principal: "svc-1"},
		},
	})

	router := gin.New()
	router.Use(m.Authenticate())
	router.GET("/x", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk-bad")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-API-Key", "sk-good")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTenantMiddleware_JWTValidAndExpired(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTenantMiddleware(TenantConfig{
		Enabled: true,
		JWTKeys: []JWTKey{{KID: "k1", Secret: "topsecret"}},
	})

	router := gin.New()
	router.Use(m.Authenticate())
	router.GET("/x", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })

	validToken := signHS256(t, "topsecret", "k1", baseClaims())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+validToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	expired := baseClaims()
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	expiredToken := signHS256(t, "topsecret", "k1", expired)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+expiredToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	wrongSigToken := signHS256(t, "wrong-secret", "k1", baseClaims())
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+wrongSigToken)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTenantMiddleware_RequirePermission(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTenantMiddleware(TenantConfig{Enabled: false, DefaultTenant: "default"})

	router := gin.New()
	router.Use(m.Authenticate())
	router.GET("/read", m.RequirePermission(PermVersionsRead), func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/read", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code, "local-dev principal is admin, must pass every permission check")
}

func TestResolveKey_RequiresKidWhenMultipleKeysConfigured(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewTenantMiddleware(TenantConfig{
		Enabled: true,
		JWTKeys: []JWTKey{{KID: "k1", Secret: "s1"}, {KID: "k2", Secret: "s2"}},
	})

	router := gin.New()
	router.Use(m.Authenticate())
	router.GET("/x", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{}) })

	claims := baseClaims()
	token := signHS256(t, "s1", "", claims) // no kid in header

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "ambiguous kid with >1 configured key must be rejected")
}

func TestAudienceMatches(t *testing.T) {
	assert.True(t, audienceMatches("svc-a", "svc-a"))
	assert.False(t, audienceMatches("svc-a", "svc-b"))
	assert.True(t, audienceMatches([]interface{}{"svc-a", "svc-b"}, "svc-b"))
	assert.False(t, audienceMatches([]interface{}{"svc-a"}, "svc-b"))
}
