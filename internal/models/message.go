package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupMessage 群聊消息，追加写入，归属会话
type GroupMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	GroupID   uint      `json:"groupId" gorm:"index"`
	UserID    uint      `json:"userId"`
	Content   string    `json:"content" gorm:"size:2048"`
	IsAlert   bool      `json:"isAlert"` // 紧急求助消息标记
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// DirectMessage 私聊消息
type DirectMessage struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	FromID    uint      `json:"fromId" gorm:"index"`
	ToID      uint      `json:"toId" gorm:"index"`
	Content   string    `json:"content" gorm:"size:2048"`
	IsAlert   bool      `json:"isAlert"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

// CreateGroupMessage 写入一条群聊消息
func CreateGroupMessage(db *gorm.DB, groupID, userID uint, content string, isAlert bool) (*GroupMessage, error) {
	msg := &GroupMessage{
		GroupID: groupID,
		UserID:  userID,
		Content: content,
		IsAlert: isAlert,
	}
	if err := db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// RecentGroupMessages 返回群组最近 limit 条消息，按时间正序
func RecentGroupMessages(db *gorm.DB, groupID uint, limit int) ([]GroupMessage, error) {
	var messages []GroupMessage
	err := db.Where("group_id = ?", groupID).
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	// 倒序取最近 N 条后翻转成时间正序
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// CreateDirectMessage 写入一条私聊消息
func CreateDirectMessage(db *gorm.DB, fromID, toID uint, content string, isAlert bool) (*DirectMessage, error) {
	msg := &DirectMessage{
		FromID:  fromID,
		ToID:    toID,
		Content: content,
		IsAlert: isAlert,
	}
	if err := db.Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}
