package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wfunc/ai-imposter/internal/identity"
)

// 上下文键
const (
	ContextPlayerID = "player_id"
	ContextToken    = "player_token"
)

// TokenHeader 备用的令牌请求头
const TokenHeader = "X-Player-Token"

// PlayerIdentity 识别玩家身份，没有有效令牌时签发新令牌并写入cookie
func PlayerIdentity(m *identity.Manager, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c, cookieName)
		if token != "" {
			if claims, err := m.Validate(token); err == nil {
				c.Set(ContextPlayerID, claims.PlayerID())
				c.Set(ContextToken, token)
				c.Next()
				return
			}
		}

		token, id, err := m.Issue("")
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"code":    "TOKEN_ISSUE_FAILED",
				"message": "签发令牌失败",
			})
			return
		}
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie(cookieName, token, int(m.Expiry().Seconds()), "/", "", false, true)
		c.Set(ContextPlayerID, id)
		c.Set(ContextToken, token)
		c.Next()
	}
}

// extractToken 依次从 Authorization、X-Player-Token、cookie、query 提取令牌
func extractToken(c *gin.Context, cookieName string) string {
	if bearer := c.GetHeader("Authorization"); bearer != "" {
		parts := strings.Split(bearer, " ")
		if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
			return parts[1]
		}
	}
	if token := c.GetHeader(TokenHeader); token != "" {
		return token
	}
	if token, err := c.Cookie(cookieName); err == nil && token != "" {
		return token
	}
	// 浏览器的WebSocket无法自定义请求头
	return c.Query("token")
}

// GetPlayerID 从上下文获取玩家ID
func GetPlayerID(c *gin.Context) (string, bool) {
	if v, exists := c.Get(ContextPlayerID); exists {
		if id, ok := v.(string); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// GetToken 从上下文获取当前令牌
func GetToken(c *gin.Context) string {
	return c.GetString(ContextToken)
}
