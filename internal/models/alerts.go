package models

import (
	"time"

	"gorm.io/gorm"

	"FarmLink/pkg/errors"
)

// SOS Alert（求助警报）
type SOSAlert struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"userId" gorm:"index"` // 触发者的用户ID
	Lat        *float64   `json:"lat"`                 // 触发时刻的位置快照
	Lng        *float64   `json:"lng"`
	Message    string     `json:"message" gorm:"size:1024"`
	Status     string     `json:"status" gorm:"size:32"` // "active" "resolved" "cancelled"
	ResolvedAt *time.Time `json:"resolvedAt"`
	CreatedAt  time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt  time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

const (
	SOSStatusActive    = "active"
	SOSStatusResolved  = "resolved"
	SOSStatusCancelled = "cancelled"
)

// CreateSOSAlert 创建一条 active 状态的求助警报
func CreateSOSAlert(db *gorm.DB, userID uint, lat, lng *float64, message string) (*SOSAlert, error) {
	alert := &SOSAlert{
		UserID:  userID,
		Lat:     lat,
		Lng:     lng,
		Message: message,
		Status:  SOSStatusActive,
	}
	if err := db.Create(alert).Error; err != nil {
		return nil, err
	}
	return alert, nil
}

// ResolveSOSAlert 由触发者本人解除警报。
// 他人的警报或不存在的警报一律按未找到处理；
// 重复解除自己的警报是幂等的，直接返回现状。
func ResolveSOSAlert(db *gorm.DB, alertID, userID uint) (*SOSAlert, error) {
	var alert SOSAlert
	err := db.Where("id = ? AND user_id = ?", alertID, userID).First(&alert).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errors.NotFound("alert not found")
		}
		return nil, err
	}

	if alert.Status != SOSStatusActive {
		return &alert, nil
	}

	now := time.Now()
	alert.Status = SOSStatusResolved
	alert.ResolvedAt = &now
	if err := db.Save(&alert).Error; err != nil {
		return nil, err
	}
	return &alert, nil
}

// RecentSOSAlerts 返回用户最近的警报，新的在前
func RecentSOSAlerts(db *gorm.DB, userID uint, limit int) ([]SOSAlert, error) {
	var alerts []SOSAlert
	err := db.Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Find(&alerts).Error
	return alerts, err
}
