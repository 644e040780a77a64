package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"FarmLink/pkg/config"
)

// UserIDKey gin 上下文中保存当前用户ID的键
const UserIDKey = "user_id"

// 生成 HMAC 签名
func generateSignature(data, secretKey string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignToken 签发带过期时间的令牌，格式：userID.expiry.signature
func SignToken(userID uint, secret string, ttl time.Duration) string {
	expiry := time.Now().Add(ttl).Unix()
	payload := fmt.Sprintf("%d.%d", userID, expiry)
	return payload + "." + generateSignature(payload, secret)
}

// ParseToken 校验令牌并返回用户ID
func ParseToken(token, secret string) (uint, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return 0, fmt.Errorf("malformed token")
	}

	payload := parts[0] + "." + parts[1]
	expected := generateSignature(payload, secret)
	if !hmac.Equal([]byte(parts[2]), []byte(expected)) {
		return 0, fmt.Errorf("invalid signature")
	}

	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || time.Now().Unix() > expiry {
		return 0, fmt.Errorf("token expired")
	}

	userID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid user id")
	}
	return uint(userID), nil
}

// AuthRequired 接口鉴权中间件，支持 Authorization: Bearer 与 token 查询参数
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			header := c.GetHeader("Authorization")
			token = strings.TrimPrefix(header, "Bearer ")
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token is missing"})
			return
		}

		userID, err := ParseToken(token, config.GlobalConfig.AuthSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, userID)
		c.Next()
	}
}

// CurrentUserID 从上下文取当前用户ID，未鉴权时返回 0
func CurrentUserID(c *gin.Context) uint {
	if v, ok := c.Get(UserIDKey); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
