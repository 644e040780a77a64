package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"FarmLink/internal/models"
	"FarmLink/pkg/cache"
	"FarmLink/pkg/geo"
	"FarmLink/pkg/routing"
	"FarmLink/pkg/util"
)

// fakeRouter 可编程的路线服务替身
type fakeRouter struct {
	mu     sync.Mutex
	calls  int
	result routing.Result
}

func (f *fakeRouter) Route(ctx context.Context, origin, dest geo.Point) routing.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result
}

func (f *fakeRouter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRouter) setResult(r routing.Result) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.result = r
}

// emission 记录一次广播
type emission struct {
	Room   string
	UserID uint
	Event  string
	Data   interface{}
}

// recordingBroadcaster 记录所有广播的替身
type recordingBroadcaster struct {
	mu        sync.Mutex
	emissions []emission
}

func (b *recordingBroadcaster) EmitToRoom(room, event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emissions = append(b.emissions, emission{Room: room, Event: event, Data: data})
}

func (b *recordingBroadcaster) EmitToUser(userID uint, event string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.emissions = append(b.emissions, emission{UserID: userID, Event: event, Data: data})
}

func (b *recordingBroadcaster) byEvent(event string) []emission {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []emission
	for _, e := range b.emissions {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(uuid.NewString(), "-", "")
	db, err := util.InitDatabase("", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), false)
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func newTestCoordinator(t *testing.T, router routing.Router, opts Options) (*Coordinator, *recordingBroadcaster, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	broadcaster := &recordingBroadcaster{}
	co := NewCoordinator(db, router, broadcaster, cache.NewGoCache(cache.LocalConfig{}), opts)
	return co, broadcaster, db
}

func createUser(t *testing.T, db *gorm.DB, name string) *models.User {
	t.Helper()
	user := &models.User{Name: name}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createGroup(t *testing.T, db *gorm.DB, dest *geo.Point) *models.Group {
	t.Helper()
	group := &models.Group{Name: "下乡赶集"}
	if dest != nil {
		group.DestLat = &dest.Lat
		group.DestLng = &dest.Lng
	}
	require.NoError(t, db.Create(group).Error)
	return group
}

func addMember(t *testing.T, db *gorm.DB, groupID, userID uint) {
	t.Helper()
	_, err := models.UpsertMembership(db, groupID, userID, nil)
	require.NoError(t, err)
}

func okRoute(durationSeconds float64) routing.Result {
	return routing.Result{DistanceKm: 10, DurationSeconds: durationSeconds, Polyline: "p", OK: true}
}

func membership(t *testing.T, db *gorm.DB, groupID, userID uint) *models.GroupMembership {
	t.Helper()
	var m models.GroupMembership
	require.NoError(t, db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&m).Error)
	return &m
}
