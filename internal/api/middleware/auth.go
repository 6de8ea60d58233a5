package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TokenChecker 校验某个 jti 是否仍在白名单里（未被注销撤销）。
type TokenChecker interface {
	Exists(ctx context.Context, userID uint, jti string) (bool, error)
}

type customClaims struct {
	jwt.RegisteredClaims
}

func unauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"result":  false,
		"status":  "error",
		"message": message,
	})
	c.Abort()
}

// AuthMiddleware 校验 Bearer JWT 并将 userID 写入上下文。
//
// 签名有效还不够：令牌的 jti 必须仍在白名单里，注销过的令牌
// 在过期前也会被拒绝。
func AuthMiddleware(jwtSecret string, tokens TokenChecker) gin.HandlerFunc {
	secret := []byte(jwtSecret)
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			unauthorized(c, "Unauthorized")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			unauthorized(c, "Unauthorized")
			return
		}

		claims := &customClaims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			unauthorized(c, "Unauthorized")
			return
		}
		if claims.Subject == "" || claims.ID == "" {
			unauthorized(c, "Unauthorized")
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			unauthorized(c, "Unauthorized")
			return
		}

		ok, err := tokens.Exists(c.Request.Context(), uint(uid), claims.ID)
		if err != nil || !ok {
			unauthorized(c, "Unauthorized")
			return
		}

		c.Set("userID", uint(uid))
		c.Next()
	}
}

// CurrentUserID 从上下文取出认证中间件写入的用户 ID。
func CurrentUserID(c *gin.Context) uint {
	v, ok := c.Get("userID")
	if !ok {
		return 0
	}
	id, _ := v.(uint)
	return id
}
