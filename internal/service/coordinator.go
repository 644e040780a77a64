package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FarmLink/internal/models"
	"FarmLink/pkg/cache"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/routing"
	"FarmLink/pkg/websocket"
)

// Broadcaster 实时通道抽象。由 websocket.Hub 实现，
// 显式注入以便在没有真实连接的情况下测试业务逻辑
type Broadcaster interface {
	EmitToRoom(room, event string, data interface{})
	EmitToUser(userID uint, event string, data interface{})
}

// Options 协调服务参数
type Options struct {
	// ThrottleWindow 同一成员两次外部路线查询的最小间隔
	ThrottleWindow time.Duration
	// DeviationKm 偏航判定阈值（公里），严格大于才算偏航
	DeviationKm float64
	// DelayAlertMinutes ETA 超过该值视为延误
	DelayAlertMinutes int
	// HistoryLimit 入群时下发的历史消息条数
	HistoryLimit int
	// StaleAfter 超过该时长无位置更新的在线成员被清扫离线
	StaleAfter time.Duration
}

// DefaultOptions 默认参数
func DefaultOptions() Options {
	return Options{
		ThrottleWindow:    60 * time.Second,
		DeviationKm:       0.5,
		DelayAlertMinutes: 30,
		HistoryLimit:      100,
		StaleAfter:        10 * time.Minute,
	}
}

// Coordinator 出行协同服务：位置处理、快照广播、消息中继、SOS 扩散
type Coordinator struct {
	db          *gorm.DB
	router      routing.Router
	broadcaster Broadcaster
	cache       cache.Cache
	opts        Options
}

// NewCoordinator 创建协调服务
func NewCoordinator(db *gorm.DB, router routing.Router, broadcaster Broadcaster, c cache.Cache, opts Options) *Coordinator {
	if opts.ThrottleWindow <= 0 {
		opts.ThrottleWindow = 60 * time.Second
	}
	if opts.DeviationKm <= 0 {
		opts.DeviationKm = 0.5
	}
	if opts.DelayAlertMinutes <= 0 {
		opts.DelayAlertMinutes = 30
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 100
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 10 * time.Minute
	}
	return &Coordinator{
		db:          db,
		router:      router,
		broadcaster: broadcaster,
		cache:       c,
		opts:        opts,
	}
}

// HandleJoinGroup 入群：更新成员在线状态，向新成员补发历史消息，
// 并向房间广播最新位置快照
func (co *Coordinator) HandleJoinGroup(c *websocket.Connection, groupID uint) {
	if _, err := models.GetGroup(co.db, groupID); err != nil {
		logger.Warn("加入不存在的群组", zap.Uint("group", groupID), zap.Uint("user", c.UserID))
		return
	}

	_, err := models.UpsertMembership(co.db, groupID, c.UserID, func(m *models.GroupMembership) {
		m.IsOnline = true
	})
	if err != nil {
		logger.Error("更新成员状态失败", zap.Uint("group", groupID), zap.Error(err))
		return
	}

	// 历史消息只发给新加入的连接
	if history, err := co.groupHistory(groupID); err == nil {
		if err := c.SendEvent(websocket.EventInitialMessages, history); err != nil {
			logger.Warn("历史消息下发失败", zap.Uint("user", c.UserID), zap.Error(err))
		}
	} else {
		logger.Warn("读取历史消息失败", zap.Uint("group", groupID), zap.Error(err))
	}

	co.BroadcastGroup(groupID)
}

// HandleDisconnect 用户最后一条连接断开后的清理：
// 全部群组置离线并补发快照，保证房间内成员看到准确的在线状态
func (co *Coordinator) HandleDisconnect(userID uint, rooms []string) {
	groups, err := models.MarkUserOffline(co.db, userID)
	if err != nil {
		logger.Error("断开清理失败", zap.Uint("user", userID), zap.Error(err))
		return
	}
	for _, groupID := range groups {
		co.BroadcastGroup(groupID)
	}
}

// SweepStale 定时清扫长时间无位置更新的在线成员
func (co *Coordinator) SweepStale(ctx context.Context) {
	n, err := models.SweepStaleOnline(co.db, co.opts.StaleAfter)
	if err != nil {
		logger.Error("在线状态清扫失败", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info("在线状态清扫完成", zap.Int64("count", n))
	}
}

// groupHistory 读取群组最近历史消息，优先走缓存
func (co *Coordinator) groupHistory(groupID uint) ([]models.GroupMessage, error) {
	key := historyCacheKey(groupID)
	if co.cache != nil {
		if v, ok := co.cache.Get(context.Background(), key); ok {
			if history, ok := v.([]models.GroupMessage); ok {
				return history, nil
			}
			// 缓存反序列化丢失类型时回源数据库
		}
	}

	history, err := models.RecentGroupMessages(co.db, groupID, co.opts.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if co.cache != nil {
		_ = co.cache.Set(context.Background(), key, history, time.Minute)
	}
	return history, nil
}

// invalidateHistory 新消息写入后淘汰历史缓存
func (co *Coordinator) invalidateHistory(groupID uint) {
	if co.cache != nil {
		_ = co.cache.Delete(context.Background(), historyCacheKey(groupID))
	}
}

func historyCacheKey(groupID uint) string {
	return fmt.Sprintf("group:history:%d", groupID)
}
