package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FarmLink/pkg/geo"
	"FarmLink/pkg/routing"
	"FarmLink/pkg/websocket"
)

func TestLocationUpdatePersistsStateAndBroadcasts(t *testing.T) {
	router := &fakeRouter{result: okRoute(900)}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 0, Lng: 0.01})

	err := co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 0, 0)
	require.NoError(t, err)

	m := membership(t, db, group.ID, user.ID)
	require.NotNil(t, m.LastLat)
	assert.Equal(t, 0.0, *m.LastLat)
	assert.True(t, m.IsOnline)
	assert.Equal(t, 15, m.ETA) // 900秒 = 15分钟
	assert.NotNil(t, m.LastRouteCheck)

	snapshots := broadcaster.byEvent(websocket.EventGroupLocations)
	require.Len(t, snapshots, 1)
	assert.Equal(t, websocket.RoomGroup(group.ID), snapshots[0].Room)
}

func TestThrottleWithinWindow(t *testing.T) {
	router := &fakeRouter{result: okRoute(600)}
	co, _, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 10, Lng: 10})

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.9, 9.9))
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.91, 9.91))

	// 60秒窗口内只允许一次外部调用
	assert.Equal(t, 1, router.callCount())
	assert.Equal(t, 10, membership(t, db, group.ID, user.ID).ETA)
}

func TestThrottleExpiredWindowAllowsSecondCall(t *testing.T) {
	router := &fakeRouter{result: okRoute(600)}
	opts := DefaultOptions()
	opts.ThrottleWindow = 50 * time.Millisecond
	co, _, db := newTestCoordinator(t, router, opts)

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 10, Lng: 10})

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.9, 9.9))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.91, 9.91))

	assert.Equal(t, 2, router.callCount())
}

func TestRoutingFailureKeepsPreviousETA(t *testing.T) {
	router := &fakeRouter{result: okRoute(1200)}
	opts := DefaultOptions()
	opts.ThrottleWindow = time.Millisecond
	co, _, db := newTestCoordinator(t, router, opts)

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 10, Lng: 10})

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.9, 9.9))
	assert.Equal(t, 20, membership(t, db, group.ID, user.ID).ETA)

	// 路线服务故障：ETA 保持旧值，检查时间仍然推进
	router.setResult(routing.Result{})
	time.Sleep(5 * time.Millisecond)
	before := membership(t, db, group.ID, user.ID).LastRouteCheck

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.91, 9.91))

	m := membership(t, db, group.ID, user.ID)
	assert.Equal(t, 20, m.ETA)
	assert.True(t, m.LastRouteCheck.After(*before))
	assert.Equal(t, 2, router.callCount())
}

func TestDeviationFlag(t *testing.T) {
	router := &fakeRouter{result: okRoute(60)}
	co, _, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")

	// 目的地约 1.11 公里外，超过 0.5 公里阈值
	far := createGroup(t, db, &geo.Point{Lat: 0, Lng: 0.01})
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, far.ID, 0, 0))
	assert.True(t, membership(t, db, far.ID, user.ID).RouteDeviation)

	// 目的地约 0.22 公里外
	near := createGroup(t, db, &geo.Point{Lat: 0, Lng: 0.002})
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, near.ID, 0, 0))
	assert.False(t, membership(t, db, near.ID, user.ID).RouteDeviation)
}

func TestDeviationBoundaryIsNotDeviating(t *testing.T) {
	router := &fakeRouter{result: okRoute(60)}
	dest := geo.Point{Lat: 0, Lng: 0.004}
	opts := DefaultOptions()
	// 阈值恰好等于距离，严格大于才算偏航
	opts.DeviationKm = geo.Haversine(geo.Point{Lat: 0, Lng: 0}, dest)
	co, _, db := newTestCoordinator(t, router, opts)

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &dest)

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 0, 0))
	assert.False(t, membership(t, db, group.ID, user.ID).RouteDeviation)
}

func TestInvalidCoordinatesSilentlyDropped(t *testing.T) {
	router := &fakeRouter{result: okRoute(60)}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 0, Lng: 0.01})

	for _, p := range []geo.Point{
		{Lat: 90.5, Lng: 0},
		{Lat: 0, Lng: -180.5},
	} {
		require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, p.Lat, p.Lng))
	}

	assert.Equal(t, 0, router.callCount())
	assert.Empty(t, broadcaster.byEvent(websocket.EventGroupLocations))
}

func TestUnknownGroupSilentlyDropped(t *testing.T) {
	router := &fakeRouter{result: okRoute(60)}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, 9999, 0, 0))

	assert.Equal(t, 0, router.callCount())
	assert.Empty(t, broadcaster.byEvent(websocket.EventGroupLocations))
}

func TestNoDestinationReducedMode(t *testing.T) {
	router := &fakeRouter{result: okRoute(600)}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")
	group := createGroup(t, db, nil)

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 1, 2))

	// 降级模式：保存位置与在线状态，不算 ETA 不判偏航
	m := membership(t, db, group.ID, user.ID)
	assert.Equal(t, 0, m.ETA)
	assert.False(t, m.RouteDeviation)
	assert.Nil(t, m.LastRouteCheck)
	assert.True(t, m.IsOnline)
	assert.Equal(t, 0, router.callCount())
	assert.Len(t, broadcaster.byEvent(websocket.EventGroupLocations), 1)
}

func TestDeviationAlertStateMachine(t *testing.T) {
	router := &fakeRouter{result: okRoute(60)}
	co, broadcaster, db := newTestCoordinator(t, router, DefaultOptions())

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 0, Lng: 0})

	// 偏航两次只提醒一次
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 0, 0.02))
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 0, 0.03))
	assert.Len(t, broadcaster.byEvent(websocket.EventDeviationAlert), 1)
	assert.True(t, membership(t, db, group.ID, user.ID).OffRouteAlertSent)

	// 回到路线后复位
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 0, 0.001))
	assert.False(t, membership(t, db, group.ID, user.ID).OffRouteAlertSent)

	// 再次偏航会再次提醒
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 0, 0.02))
	assert.Len(t, broadcaster.byEvent(websocket.EventDeviationAlert), 2)
}

func TestDelayAlertOneShot(t *testing.T) {
	router := &fakeRouter{result: okRoute(3600)} // 60分钟
	opts := DefaultOptions()
	opts.ThrottleWindow = time.Millisecond
	opts.DelayAlertMinutes = 30
	co, broadcaster, db := newTestCoordinator(t, router, opts)

	user := createUser(t, db, "老张")
	group := createGroup(t, db, &geo.Point{Lat: 10, Lng: 10})

	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.9, 9.9))
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.9, 9.9))

	assert.Len(t, broadcaster.byEvent(websocket.EventDelayAlert), 1)

	// ETA 恢复后复位
	router.setResult(okRoute(300)) // 5分钟
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, co.ProcessLocationUpdate(context.Background(), user.ID, group.ID, 9.99, 9.99))
	assert.False(t, membership(t, db, group.ID, user.ID).DelayAlertSent)
}
