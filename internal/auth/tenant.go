package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"station-aflowx-optimizer/internal/apierr"
)

// Role is one of the service's fixed roles.
type Role string

const (
	RoleViewer   Role = "viewer"
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
)

// Permission is a fixed action a Role may be granted.
type Permission string

const (
	PermVersionsRead     Permission = "versions:read"
	PermVersionsDeploy   Permission = "versions:deploy"
	PermVersionsRollback Permission = "versions:rollback"
	PermOptimizeRun      Permission = "optimize:run"
	PermParityRun        Permission = "parity:run"
)

// rolePermissions is the fixed role → permission-set map.
var rolePermissions = map[Role]map[Permission]bool{
	RoleViewer: {
		PermVersionsRead: true,
	},
	RoleOperator: {
		PermVersionsRead: true,
		PermOptimizeRun:  true,
		PermParityRun:    true,
	},
	RoleAdmin: {
		PermVersionsRead:     true,
		PermVersionsDeploy:   true,
		PermVersionsRollback: true,
		PermOptimizeRun:      true,
		PermParityRun:        true,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return rolePermissions[role][perm]
}

// Principal is the authenticated identity attached to a request context by
// TenantMiddleware.Authenticate.
type Principal struct {
	TenantID  string
	Role      Role
	Principal string
}

// ScopedAgentName namespaces an external agent name by tenant at the
// service boundary: two tenants sharing an external agent name get
// independent version sequences.
func (p Principal) ScopedAgentName(agentName string) string {
	return p.TenantID + "::" + agentName
}

const principalContextKey = "auth_principal"

// APIKeyEntry is one configured API-key → principal mapping.
type APIKeyEntry struct {
	TenantID  string `json:"tenant_id"`
	Role      Role   `json:"role"`
	Principal string `json:"principal"`
}

// JWTKey is one configured HS256 signing secret, selected by `kid`.
type JWTKey struct {
	KID    string `json:"kid"`
	Secret string `json:"secret"`
}

// TenantConfig holds everything TenantMiddleware needs to authenticate a
// request.
type TenantConfig struct {
	Enabled        bool
	APIKeys        map[string]APIKeyEntry // raw header value -> entry
	JWTKeys        []JWTKey
	Issuer         string
	Audience       string
	ClockSkew      time.Duration
	DefaultTenant  string
}

// TenantMiddleware is a tenant-scoped, role-based gin authentication layer:
// Bearer-token extraction, an optional disabled/local-mode bypass, and gin
// context injection of a {tenant_id, role, principal} Principal.
type TenantMiddleware struct {
	cfg TenantConfig
}

// NewTenantMiddleware builds a TenantMiddleware from cfg.
func NewTenantMiddleware(cfg TenantConfig) *TenantMiddleware {
	if cfg.ClockSkew == 0 {
		cfg.ClockSkew = 30 * time.Second
	}
	return &TenantMiddleware{cfg: cfg}
}

// writeAPIErr renders an *apierr.Error using its taxonomy-mapped status and
// aborts the gin chain.
func writeAPIErr(c *gin.Context, e *apierr.Error) {
	c.JSON(e.HTTPStatus(), gin.H{"error": string(e.Kind), "message": e.Message})
	c.Abort()
}

// Authenticate resolves a Principal from X-API-Key or Authorization:
// Bearer <jwt>, or synthesizes the local-dev admin principal when auth is
// disabled, and stores it in the gin context for RequirePermission.
func (m *TenantMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.cfg.Enabled {
			tenant := m.cfg.DefaultTenant
			if tenant == "" {
				tenant = "default"
			}
			c.Set(principalContextKey, Principal{TenantID: tenant, Role: RoleAdmin, Principal: "local-dev"})
			c.Next()
			return
		}

		if key := c.GetHeader("X-API-Key"); key != "" {
			entry, ok := m.cfg.APIKeys[key]
			if !ok {
				writeAPIErr(c, apierr.Auth("missing credentials"))
				return
			}
			c.Set(principalContextKey, Principal{TenantID: entry.TenantID, Role: entry.Role, Principal: entry.Principal})
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			writeAPIErr(c, apierr.Auth("missing credentials"))
			return
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			writeAPIErr(c, apierr.Auth("missing credentials"))
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		principal, err := m.verifyJWT(token)
		if err != nil {
			writeAPIErr(c, apierr.Auth("invalid credentials: %v", err))
			return
		}
		c.Set(principalContextKey, principal)
		c.Next()
	}
}

// RequirePermission aborts the request with 403 unless the authenticated
// Principal's role carries perm.
func (m *TenantMiddleware) RequirePermission(perm Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok {
			writeAPIErr(c, apierr.Auth("missing credentials"))
			return
		}
		if !HasPermission(p.Role, perm) {
			writeAPIErr(c, apierr.Forbidden(string(perm)))
			return
		}
		c.Next()
	}
}

// PrincipalFromContext extracts the Principal set by Authenticate.
func PrincipalFromContext(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// jwtClaims mirrors the required/optional JWT claim set this middleware
// checks.
type jwtClaims struct {
	Exp       float64     `json:"exp"`
	Nbf       *float64    `json:"nbf,omitempty"`
	Iat       *float64    `json:"iat,omitempty"`
	Iss       string      `json:"iss,omitempty"`
	Aud       interface{} `json:"aud,omitempty"`
	TenantID  string      `json:"tenant_id"`
	Role      string      `json:"role"`
	Sub       string      `json:"sub,omitempty"`
	Principal string      `json:"principal,omitempty"`
}

// verifyJWT validates a compact HS256 JWT (header.payload.signature)
// against the configured key set and required claims, hand-rolled with
// stdlib crypto/hmac since no JWT library is part of this module's
// dependency set.
func (m *TenantMiddleware) verifyJWT(token string) (Principal, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Principal{}, fmt.Errorf("malformed token")
	}
	headerRaw, payloadRaw, sigRaw := parts[0], parts[1], parts[2]

	headerJSON, err := base64.RawURLEncoding.DecodeString(headerRaw)
	if err != nil {
		return Principal{}, fmt.Errorf("malformed header")
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return Principal{}, fmt.Errorf("malformed header")
	}
	if header.Alg != "HS256" {
		return Principal{}, fmt.Errorf("unsupported algorithm %q", header.Alg)
	}

	key, err := m.resolveKey(header.Kid)
	if err != nil {
		return Principal{}, err
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(headerRaw + "." + payloadRaw))
	expected := mac.Sum(nil)

	sig, err := base64.RawURLEncoding.DecodeString(sigRaw)
	if err != nil {
		return Principal{}, fmt.Errorf("malformed signature")
	}
	if subtle.ConstantTimeCompare(sig, expected) != 1 {
		return Principal{}, fmt.Errorf("signature mismatch")
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(payloadRaw)
	if err != nil {
		return Principal{}, fmt.Errorf("malformed payload")
	}
	var claims jwtClaims
	if err := json.Unmarshal(payloadJSON, &claims); err != nil {
		return Principal{}, fmt.Errorf("malformed claims")
	}

	now := time.Now().UTC()
	skew := m.cfg.ClockSkew
	if claims.Exp == 0 {
		return Principal{}, fmt.Errorf("missing exp claim")
	}
	if now.After(time.Unix(int64(claims.Exp), 0).Add(skew)) {
		return Principal{}, fmt.Errorf("token expired")
	}
	if claims.Nbf != nil && now.Before(time.Unix(int64(*claims.Nbf), 0).Add(-skew)) {
		return Principal{}, fmt.Errorf("token not yet valid")
	}
	if m.cfg.Issuer != "" && claims.Iss != m.cfg.Issuer {
		return Principal{}, fmt.Errorf("issuer mismatch")
	}
	if m.cfg.Audience != "" && !audienceMatches(claims.Aud, m.cfg.Audience) {
		return Principal{}, fmt.Errorf("audience mismatch")
	}
	if claims.TenantID == "" {
		return Principal{}, fmt.Errorf("missing tenant_id claim")
	}
	if claims.Role == "" {
		return Principal{}, fmt.Errorf("missing role claim")
	}
	principal := claims.Sub
	if claims.Principal != "" {
		principal = claims.Principal
	}
	if principal == "" {
		return Principal{}, fmt.Errorf("missing sub/principal claim")
	}

	return Principal{TenantID: claims.TenantID, Role: Role(claims.Role), Principal: principal}, nil
}

// resolveKey picks the signing secret for kid: if the token carries a kid
// it must match a configured key exactly; otherwise exactly one key must
// be configured.
func (m *TenantMiddleware) resolveKey(kid string) (string, error) {
	if kid != "" {
		for _, k := range m.cfg.JWTKeys {
			if k.KID == kid {
				return k.Secret, nil
			}
		}
		return "", fmt.Errorf("unknown kid %q", kid)
	}
	if len(m.cfg.JWTKeys) != 1 {
		return "", fmt.Errorf("kid required: %d keys configured", len(m.cfg.JWTKeys))
	}
	return m.cfg.JWTKeys[0].Secret, nil
}

func audienceMatches(aud interface{}, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
