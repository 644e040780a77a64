package service

import (
	"go.uber.org/zap"

	"FarmLink/internal/models"
	"FarmLink/pkg/logger"
	"FarmLink/pkg/websocket"
)

// HandleGroupMessage 群聊：落库后向群组房间投递
func (co *Coordinator) HandleGroupMessage(c *websocket.Connection, groupID uint, text string) {
	msg, err := models.CreateGroupMessage(co.db, groupID, c.UserID, text, false)
	if err != nil {
		logger.Error("群聊消息保存失败",
			zap.Uint("group", groupID), zap.Uint("user", c.UserID), zap.Error(err))
		return
	}

	co.invalidateHistory(groupID)
	co.broadcaster.EmitToRoom(websocket.RoomGroup(groupID), websocket.EventNewMessage, msg)
}

// HandleDirectMessage 私聊：落库后投递到双方的个人频道
func (co *Coordinator) HandleDirectMessage(c *websocket.Connection, toUserID uint, text string) {
	msg, err := models.CreateDirectMessage(co.db, c.UserID, toUserID, text, false)
	if err != nil {
		logger.Error("私聊消息保存失败",
			zap.Uint("from", c.UserID), zap.Uint("to", toUserID), zap.Error(err))
		return
	}

	co.broadcaster.EmitToUser(toUserID, websocket.EventNewDirectMessage, msg)
	co.broadcaster.EmitToUser(c.UserID, websocket.EventNewDirectMessage, msg)
}
