package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"FarmLink/pkg/config"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/middleware"
)

// Handler WebSocket HTTP处理器
type Handler struct {
	hub *Hub
}

// NewHandler 创建新的WebSocket处理器
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// RegisterRoutes 统一注册路由
func RegisterRoutes(r *gin.Engine, handler *Handler) {
	r.GET("/ws", handler.HandleWebSocket)
	r.GET("/ws/health", handler.HealthCheck)
}

// HandleWebSocket 处理WebSocket连接请求。
// 令牌校验失败时直接终止连接，不做重试。
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token is missing"})
		return
	}

	userID, err := middleware.ParseToken(token, config.GlobalConfig.AuthSecret)
	if err != nil {
		logger.Warn("websocket 鉴权失败: " + err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	HandleWebSocket(h.hub, c.Writer, c.Request, userID)
}

// HealthCheck WebSocket健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	if h.hub.ctx.Err() != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  "hub closed",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"total_connections": h.hub.GetConnectionCount(),
		"max_connections":   h.hub.config.MaxConnections,
	})
}
