package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"FarmLink/internal/models"
	"FarmLink/pkg/errors"
	"FarmLink/pkg/geo"
	"FarmLink/pkg/websocket"
)

func addContact(t *testing.T, db *gorm.DB, userID, contactID uint, status string) {
	t.Helper()
	require.NoError(t, db.Create(&models.Contact{UserID: userID, ContactID: contactID, Status: status}).Error)
}

func TestTriggerSOSFansOutToGroupsAndContacts(t *testing.T) {
	router := &fakeRouter{}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	sender := createUser(t, db, "老张")
	g1 := createGroup(t, db, nil)
	g2 := createGroup(t, db, nil)
	addMember(t, db, g1.ID, sender.ID)
	addMember(t, db, g2.ID, sender.ID)

	c1 := createUser(t, db, "李姐")
	c2 := createUser(t, db, "王叔")
	c3 := createUser(t, db, "小刘")
	addContact(t, db, sender.ID, c1.ID, models.ContactStatusAccepted)
	addContact(t, db, c2.ID, sender.ID, models.ContactStatusAccepted) // 反向关系同样生效
	addContact(t, db, sender.ID, c3.ID, models.ContactStatusAccepted)

	// 未接受的联系人不收
	pending := createUser(t, db, "陌生人")
	addContact(t, db, sender.ID, pending.ID, "pending")

	loc := &geo.Point{Lat: 30.5, Lng: 114.3}
	alert, err := co.TriggerSOS(context.Background(), sender.ID, loc, "拖拉机坏在路上了")
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, models.SOSStatusActive, alert.Status)

	emissions := broadcaster.byEvent(websocket.EventSOSAlert)
	var rooms, users []emission
	for _, e := range emissions {
		if e.Room != "" {
			rooms = append(rooms, e)
		} else {
			users = append(users, e)
		}
	}
	assert.Len(t, rooms, 2)
	assert.Len(t, users, 3)

	// 每个群组留下一条告警消息
	for _, gid := range []uint{g1.ID, g2.ID} {
		history, err := models.RecentGroupMessages(db, gid, 10)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.True(t, history[0].IsAlert)
		assert.Contains(t, history[0].Content, "老张")
		assert.Contains(t, history[0].Content, "拖拉机坏在路上了")
	}
}

func TestTriggerSOSDedupesMutualContactRows(t *testing.T) {
	router := &fakeRouter{}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	sender := createUser(t, db, "老张")
	friend := createUser(t, db, "李姐")

	// 双方各留了一条已接受的记录，对方也只应收到一次
	addContact(t, db, sender.ID, friend.ID, models.ContactStatusAccepted)
	addContact(t, db, friend.ID, sender.ID, models.ContactStatusAccepted)

	_, err := co.TriggerSOS(context.Background(), sender.ID, nil, "需要帮忙")
	require.NoError(t, err)

	emissions := broadcaster.byEvent(websocket.EventSOSAlert)
	require.Len(t, emissions, 1)
	assert.Equal(t, friend.ID, emissions[0].UserID)

	var count int64
	db.Model(&models.DirectMessage{}).Where("to_id = ?", friend.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestTriggerSOSRejectsInvalidLocation(t *testing.T) {
	router := &fakeRouter{}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	sender := createUser(t, db, "老张")

	_, err := co.TriggerSOS(context.Background(), sender.ID, &geo.Point{Lat: 200, Lng: 0}, "")
	require.Error(t, err)
	assert.Equal(t, errors.CodeBadRequest, errors.GetCode(err))
	assert.Empty(t, broadcaster.byEvent(websocket.EventSOSAlert))
}

func TestTriggerSOSWithoutLocation(t *testing.T) {
	router := &fakeRouter{}
	co, _, db := newTestCoordinator(t, router, DefaultOptions())

	sender := createUser(t, db, "老张")

	alert, err := co.TriggerSOS(context.Background(), sender.ID, nil, "手机快没电了")
	require.NoError(t, err)
	assert.Nil(t, alert.Lat)
	assert.Nil(t, alert.Lng)
}

func TestResolveSOSOwnerOnly(t *testing.T) {
	router := &fakeRouter{}
	co, _, db := newTestCoordinator(t, router, DefaultOptions())

	owner := createUser(t, db, "老张")
	other := createUser(t, db, "李姐")

	alert, err := co.TriggerSOS(context.Background(), owner.ID, nil, "")
	require.NoError(t, err)

	// 非本人解除按不存在处理
	_, err = co.ResolveSOS(alert.ID, other.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))

	resolved, err := co.ResolveSOS(alert.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SOSStatusResolved, resolved.Status)
	assert.NotNil(t, resolved.ResolvedAt)

	// 重复解除幂等
	again, err := co.ResolveSOS(alert.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SOSStatusResolved, again.Status)
}

func TestResolveSOSMissingAlert(t *testing.T) {
	router := &fakeRouter{}
	co, _, db := newTestCoordinator(t, router, DefaultOptions())

	owner := createUser(t, db, "老张")

	_, err := co.ResolveSOS(9999, owner.ID)
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
