package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const (
	// IdentityKey 是注入 gin.Context 的身份对象键。
	IdentityKey = "identity"
	// RoleAdmin 是允许访问数据库健康接口的角色。
	RoleAdmin = "admin"
)

// Identity 描述鉴权中间件解析出的调用者身份。
type Identity struct {
	ID             uint
	Username       string
	Role           string
	FranchiseScope string
}

// IsAdmin 判断当前身份是否具备管理员角色。
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Authenticator 抽象鉴权中间件，便于测试注入假实现。
type Authenticator interface {
	Handle() gin.HandlerFunc
}

// AuthMiddleware 基于共享密钥校验 JWT 的合法性，保护受限路由。
type AuthMiddleware struct {
	secret string
}

// NewAuthMiddleware 创建鉴权中间件实例，注入 JWT 签名密钥。
func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: secret}
}

// Handle 返回 Gin 中间件，验证 Bearer Token 并在上下文中注入身份信息。
func (m *AuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		tokenString := strings.TrimSpace(authHeader[7:])
		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrInvalidKeyType
			}
			return []byte(m.secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token claims"})
			return
		}

		c.Set("claims", claims)
		c.Set(IdentityKey, identityFromClaims(claims))
		c.Next()
	}
}

// IdentityFromContext 读取中间件注入的身份，未经过鉴权时返回零值。
func IdentityFromContext(c *gin.Context) Identity {
	val, ok := c.Get(IdentityKey)
	if !ok {
		return Identity{}
	}
	identity, ok := val.(Identity)
	if !ok {
		return Identity{}
	}
	return identity
}

// identityFromClaims 从 JWT claims 中提取身份字段，缺失字段保持零值。
func identityFromClaims(claims jwt.MapClaims) Identity {
	identity := Identity{}

	if raw, ok := claims["uid"].(float64); ok && raw > 0 {
		identity.ID = uint(raw)
	}
	if raw, ok := claims["username"].(string); ok {
		identity.Username = raw
	}
	if raw, ok := claims["role"].(string); ok {
		identity.Role = raw
	}
	if raw, ok := claims["franchise_scope"].(string); ok {
		identity.FranchiseScope = raw
	}

	return identity
}
