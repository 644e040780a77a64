package service

import (
	"go.uber.org/zap"

	"FarmLink/internal/models"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/metrics"
	"FarmLink/pkg/websocket"
)

// groupLocationsPayload 群组位置快照
type groupLocationsPayload struct {
	GroupID uint                    `json:"groupId"`
	Members []models.MemberSnapshot `json:"members"`
}

// BroadcastGroup 全量快照广播：每次重新读取全部成员，
// 错过中间更新的订阅者也能在下一次广播收敛到最新状态
func (co *Coordinator) BroadcastGroup(groupID uint) {
	members, err := models.GroupMembers(co.db, groupID)
	if err != nil {
		logger.Error("读取群组成员失败", zap.Uint("group", groupID), zap.Error(err))
		return
	}

	co.broadcaster.EmitToRoom(websocket.RoomGroup(groupID), websocket.EventGroupLocations,
		groupLocationsPayload{GroupID: groupID, Members: members})
	metrics.GroupBroadcasts.Inc()
}
