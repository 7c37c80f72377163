package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/moshiverse/busmate/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"
	ContextKeyEmail  = "email"

	UserIDHeader = "X-User-ID"
	RoleHeader   = "X-User-Role"

	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Identity is the resolved caller
type Identity struct {
	UserID string
	Email  string
	Role   string
}

// IdentityConfig configures the identity middleware
type IdentityConfig struct {
	JWTSecret string
	Issuer    string
	// AllowHeader trusts X-User-ID / X-User-Role when no bearer token is sent.
	// Only for deployments behind a gateway that already authenticated the caller.
	AllowHeader bool
}

// ParseToken validates an HS256 access token and extracts the identity
func ParseToken(tokenString string, cfg *IdentityConfig) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	id := &Identity{Role: RoleUser}
	if v, ok := claims["user_id"].(string); ok {
		id.UserID = v
	} else if sub, err := claims.GetSubject(); err == nil {
		id.UserID = sub
	}
	if id.UserID == "" {
		return nil, ErrInvalidToken
	}
	if v, ok := claims["email"].(string); ok {
		id.Email = v
	}
	if v, ok := claims["role"].(string); ok && v != "" {
		id.Role = strings.ToUpper(v)
	}
	return id, nil
}

// IdentityMiddleware resolves the caller once per request and stores it in the
// gin context. Requests without a resolvable identity are rejected with 401.
func IdentityMiddleware(cfg *IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := resolveIdentity(c, cfg)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error("UNAUTHORIZED", err.Error()))
			return
		}

		c.Set(ContextKeyUserID, id.UserID)
		c.Set(ContextKeyRole, id.Role)
		if id.Email != "" {
			c.Set(ContextKeyEmail, id.Email)
		}
		c.Next()
	}
}

func resolveIdentity(c *gin.Context, cfg *IdentityConfig) (*Identity, error) {
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return ParseToken(strings.TrimPrefix(auth, "Bearer "), cfg)
	}

	if cfg.AllowHeader {
		if userID := c.GetHeader(UserIDHeader); userID != "" {
			role := strings.ToUpper(c.GetHeader(RoleHeader))
			if role == "" {
				role = RoleUser
			}
			return &Identity{UserID: userID, Role: role}, nil
		}
	}

	return nil, ErrMissingToken
}

// RequireRole aborts with 403 unless the resolved caller has role
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ContextKeyRole) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error("FORBIDDEN", "insufficient role"))
			return
		}
		c.Next()
	}
}

// GetUserID returns the resolved caller id
func GetUserID(c *gin.Context) (string, bool) {
	id := c.GetString(ContextKeyUserID)
	return id, id != ""
}

// IsAdmin reports whether the resolved caller is an administrator
func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextKeyRole) == RoleAdmin
}
