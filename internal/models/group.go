package models

import (
	"time"

	"gorm.io/gorm"

	"FarmLink/pkg/geo"
)

// Group 出行群组，目的地为空时只做位置共享不算 ETA
type Group struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255"`
	DestLat   *float64  `json:"destLat"` // 目的地纬度，可为空
	DestLng   *float64  `json:"destLng"` // 目的地经度，可为空
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

// Destination 返回群组目的地；未设置时 ok 为 false
func (g *Group) Destination() (geo.Point, bool) {
	if g.DestLat == nil || g.DestLng == nil {
		return geo.Point{}, false
	}
	return geo.Point{Lat: *g.DestLat, Lng: *g.DestLng}, true
}

// GroupMembership 群组成员状态，每个 (group, user) 唯一一条
type GroupMembership struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	GroupID           uint       `json:"groupId" gorm:"uniqueIndex:idx_group_user"`
	UserID            uint       `json:"userId" gorm:"uniqueIndex:idx_group_user"`
	Role              string     `json:"role" gorm:"size:32"` // "admin" "member"
	LastLat           *float64   `json:"lastLat"`             // 最近上报位置
	LastLng           *float64   `json:"lastLng"`
	LocationUpdatedAt *time.Time `json:"locationUpdatedAt"`
	ETA               int        `json:"eta"`               // 预计到达时间，分钟
	RouteDeviation    bool       `json:"routeDeviation"`    // 偏航标志，每次上报同步重算
	OffRouteAlertSent bool       `json:"offRouteAlertSent"` // 偏航提醒已发（回到路线后复位）
	DelayAlertSent    bool       `json:"delayAlertSent"`    // 延误提醒已发（ETA 恢复后复位）
	LastRouteCheck    *time.Time `json:"lastRouteCheck"`    // 最近一次外部路线查询时间
	IsOnline          bool       `json:"isOnline"`
	CreatedAt         time.Time  `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt         time.Time  `json:"updatedAt" gorm:"autoUpdateTime"`
}

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// MemberSnapshot 广播给房间的成员快照
type MemberSnapshot struct {
	UserID         uint       `json:"userId"`
	Name           string     `json:"name"`
	Lat            *float64   `json:"lat"`
	Lng            *float64   `json:"lng"`
	UpdatedAt      *time.Time `json:"updatedAt"`
	ETA            int        `json:"eta"`
	RouteDeviation bool       `json:"routeDeviation"`
	IsOnline       bool       `json:"isOnline"`
}

// GetGroup 按ID查询群组
func GetGroup(db *gorm.DB, id uint) (*Group, error) {
	var group Group
	if err := db.First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// UpsertMembership 读取或创建成员记录，应用修改后保存。
// 同一成员的写互相独立，不需要乐观锁。
func UpsertMembership(db *gorm.DB, groupID, userID uint, mutate func(*GroupMembership)) (*GroupMembership, error) {
	var m GroupMembership
	err := db.Where(GroupMembership{GroupID: groupID, UserID: userID}).
		Attrs(GroupMembership{Role: RoleMember}).
		FirstOrCreate(&m).Error
	if err != nil {
		return nil, err
	}

	if mutate != nil {
		mutate(&m)
	}
	if err := db.Save(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// GroupMembers 读取群组全量成员快照（连同显示名称）
func GroupMembers(db *gorm.DB, groupID uint) ([]MemberSnapshot, error) {
	var snapshots []MemberSnapshot
	err := db.Model(&GroupMembership{}).
		Select("group_memberships.user_id, users.name, group_memberships.last_lat AS lat, "+
			"group_memberships.last_lng AS lng, group_memberships.location_updated_at AS updated_at, "+
			"group_memberships.eta, group_memberships.route_deviation, group_memberships.is_online").
		Joins("LEFT JOIN users ON users.id = group_memberships.user_id").
		Where("group_memberships.group_id = ?", groupID).
		Scan(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}

// GroupsOfUser 返回用户所属的全部群组ID
func GroupsOfUser(db *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := db.Model(&GroupMembership{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	return ids, err
}

// MarkUserOffline 将用户在所有群组的在线状态置为离线，
// 返回受影响的群组ID用于补发快照广播
func MarkUserOffline(db *gorm.DB, userID uint) ([]uint, error) {
	var ids []uint
	err := db.Model(&GroupMembership{}).
		Where("user_id = ? AND is_online = ?", userID, true).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	err = db.Model(&GroupMembership{}).
		Where("user_id = ? AND is_online = ?", userID, true).
		Update("is_online", false).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// SweepStaleOnline 将位置长时间未更新的在线成员置为离线，
// 兜底处理没有走正常断开流程的连接
func SweepStaleOnline(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	res := db.Model(&GroupMembership{}).
		Where("is_online = ? AND (location_updated_at IS NULL OR location_updated_at < ?) AND updated_at < ?",
			true, cutoff, cutoff).
		Update("is_online", false)
	return res.RowsAffected, res.Error
}
