package service

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"FarmLink/internal/models"
	"FarmLink/pkg/errors"
	"FarmLink/pkg/geo"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/metrics"
	"FarmLink/pkg/websocket"
)

// HandleLocationUpdate 连接层入口：位置上报是 fire-and-forget，
// 任何失败只记录日志，不向客户端返回错误
func (co *Coordinator) HandleLocationUpdate(c *websocket.Connection, groupID uint, lat, lng float64) {
	if err := co.ProcessLocationUpdate(context.Background(), c.UserID, groupID, lat, lng); err != nil {
		logger.Error("位置上报处理失败",
			zap.Uint("user", c.UserID), zap.Uint("group", groupID), zap.Error(err))
	}
}

// ProcessLocationUpdate 处理一次位置上报：
//  1. 校验坐标与群组，不合法的静默丢弃
//  2. 群组无目的地时进入降级模式，只保存位置与在线状态
//  3. 按节流窗口决定是否调用外部路线服务计算 ETA
//  4. 始终用大圆距离重算偏航标志
//  5. 落库后触发全量快照广播
func (co *Coordinator) ProcessLocationUpdate(ctx context.Context, userID, groupID uint, lat, lng float64) error {
	point := geo.Point{Lat: lat, Lng: lng}
	if !point.Valid() {
		metrics.LocationUpdates.WithLabelValues("dropped").Inc()
		return nil
	}

	group, err := models.GetGroup(co.db, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			metrics.LocationUpdates.WithLabelValues("dropped").Inc()
			return nil
		}
		return errors.Wrap(err, "查询群组失败")
	}

	dest, hasDest := group.Destination()
	now := time.Now()

	var sendOffRoute, sendDelay bool
	_, err = models.UpsertMembership(co.db, groupID, userID, func(m *models.GroupMembership) {
		m.LastLat = &lat
		m.LastLng = &lng
		m.LocationUpdatedAt = &now
		m.IsOnline = true

		if !hasDest {
			// 降级模式：无目的地不算 ETA 也不判偏航
			return
		}

		// 节流：窗口内复用上次的 ETA
		if m.LastRouteCheck == nil || now.Sub(*m.LastRouteCheck) > co.opts.ThrottleWindow {
			// 先记录检查时间，失败也不在窗口内重试
			checked := now
			m.LastRouteCheck = &checked

			if res := co.router.Route(ctx, point, dest); res.OK {
				m.ETA = int(math.Round(res.DurationSeconds / 60))
			}
			// 失败时保留旧 ETA
		}

		// 偏航判定不依赖外部服务，每次上报都重算
		distance := geo.Haversine(point, dest)
		m.RouteDeviation = distance > co.opts.DeviationKm

		// 一次性提醒状态机：进入偏航发一次，回到路线后复位
		if m.RouteDeviation && !m.OffRouteAlertSent {
			m.OffRouteAlertSent = true
			sendOffRoute = true
		} else if !m.RouteDeviation && m.OffRouteAlertSent {
			m.OffRouteAlertSent = false
		}

		if m.ETA > 0 && m.ETA >= co.opts.DelayAlertMinutes {
			if !m.DelayAlertSent {
				m.DelayAlertSent = true
				sendDelay = true
			}
		} else if m.DelayAlertSent {
			m.DelayAlertSent = false
		}
	})
	if err != nil {
		metrics.LocationUpdates.WithLabelValues("dropped").Inc()
		return errors.Wrap(err, "保存成员状态失败")
	}

	room := websocket.RoomGroup(groupID)
	if sendOffRoute {
		co.broadcaster.EmitToRoom(room, websocket.EventDeviationAlert, map[string]interface{}{"groupId": groupID, "userId": userID})
	}
	if sendDelay {
		co.broadcaster.EmitToRoom(room, websocket.EventDelayAlert, map[string]interface{}{"groupId": groupID, "userId": userID})
	}

	metrics.LocationUpdates.WithLabelValues("ok").Inc()
	co.BroadcastGroup(groupID)
	return nil
}
