package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:128"`      // 显示名称
	Phone     string    `json:"phone" gorm:"size:32"`      // 联系电话
	District  string    `json:"district" gorm:"size:128"`  // 所在地区
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Contact 联系人关系，双向接受后才算有效联系人
type Contact struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"userId" gorm:"index"`    // 发起方
	ContactID uint      `json:"contactId" gorm:"index"` // 接收方
	Status    string    `json:"status" gorm:"size:32"`  // "pending" "accepted" "rejected"
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

const ContactStatusAccepted = "accepted"

// GetUser 按ID查询用户
func GetUser(db *gorm.DB, id uint) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// AcceptedContacts 返回用户的全部已接受联系人ID（双向）。
// 一对用户可能各自留有一条方向相反的记录，结果需要去重
func AcceptedContacts(db *gorm.DB, userID uint) ([]uint, error) {
	var contacts []Contact
	err := db.Where("status = ? AND (user_id = ? OR contact_id = ?)",
		ContactStatusAccepted, userID, userID).Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(contacts))
	ids := make([]uint, 0, len(contacts))
	for _, c := range contacts {
		other := c.UserID
		if c.UserID == userID {
			other = c.ContactID
		}
		if seen[other] {
			continue
		}
		seen[other] = true
		ids = append(ids, other)
	}
	return ids, nil
}
