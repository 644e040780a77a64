package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"FarmLink/internal/models"
	"FarmLink/pkg/errors"
	"FarmLink/pkg/geo"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/metrics"
	"FarmLink/pkg/websocket"
)

const recentAlertsLimit = 50

// sosAlertPayload 实时通道上的求助事件
type sosAlertPayload struct {
	AlertID   uint      `json:"alertId"`
	UserID    uint      `json:"userId"`
	Name      string    `json:"name"`
	Lat       *float64  `json:"lat"`
	Lng       *float64  `json:"lng"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

// TriggerSOS 触发紧急求助：
// 先创建警报记录（失败则整体中止），再向触发者所属的每个群组
// 和每个已接受联系人做尽力而为的扩散，单个投递失败不回滚不重试
func (co *Coordinator) TriggerSOS(ctx context.Context, userID uint, location *geo.Point, message string) (*models.SOSAlert, error) {
	var lat, lng *float64
	if location != nil {
		if !location.Valid() {
			return nil, errors.WithCode(errors.CodeBadRequest, "无效的位置坐标")
		}
		lat, lng = &location.Lat, &location.Lng
	}

	alert, err := models.CreateSOSAlert(co.db, userID, lat, lng, message)
	if err != nil {
		return nil, errors.Wrap(err, "创建求助警报失败")
	}

	name := fmt.Sprintf("用户%d", userID)
	if user, err := models.GetUser(co.db, userID); err == nil {
		name = user.Name
	}

	payload := sosAlertPayload{
		AlertID:   alert.ID,
		UserID:    userID,
		Name:      name,
		Lat:       lat,
		Lng:       lng,
		Message:   message,
		CreatedAt: alert.CreatedAt,
	}
	text := fmt.Sprintf("[SOS] %s 发出紧急求助", name)
	if message != "" {
		text += "：" + message
	}

	// 群组扩散
	groups, err := models.GroupsOfUser(co.db, userID)
	if err != nil {
		logger.Error("查询用户群组失败", zap.Uint("user", userID), zap.Error(err))
	}
	for _, groupID := range groups {
		if _, err := models.CreateGroupMessage(co.db, groupID, userID, text, true); err != nil {
			logger.Warn("求助消息写入群组失败", zap.Uint("group", groupID), zap.Error(err))
		} else {
			co.invalidateHistory(groupID)
		}
		co.broadcaster.EmitToRoom(websocket.RoomGroup(groupID), websocket.EventSOSAlert, payload)
		metrics.SOSDeliveries.WithLabelValues("group").Inc()
	}

	// 联系人扩散
	contacts, err := models.AcceptedContacts(co.db, userID)
	if err != nil {
		logger.Error("查询联系人失败", zap.Uint("user", userID), zap.Error(err))
	}
	for _, contactID := range contacts {
		if _, err := models.CreateDirectMessage(co.db, userID, contactID, text, true); err != nil {
			logger.Warn("求助私信写入失败", zap.Uint("contact", contactID), zap.Error(err))
		}
		co.broadcaster.EmitToUser(contactID, websocket.EventSOSAlert, payload)
		metrics.SOSDeliveries.WithLabelValues("contact").Inc()
	}

	logger.Info("求助警报已扩散",
		zap.Uint("alert", alert.ID), zap.Int("groups", len(groups)), zap.Int("contacts", len(contacts)))
	return alert, nil
}

// ResolveSOS 由触发者解除自己的警报
func (co *Coordinator) ResolveSOS(alertID, userID uint) (*models.SOSAlert, error) {
	return models.ResolveSOSAlert(co.db, alertID, userID)
}

// RecentAlerts 查询触发者最近的警报记录
func (co *Coordinator) RecentAlerts(userID uint) ([]models.SOSAlert, error) {
	return models.RecentSOSAlerts(co.db, userID, recentAlertsLimit)
}
