package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	UserID   uint
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	IsAlive  bool
	mu       sync.RWMutex
	rooms    map[string]bool
}

// inboundEvent 客户端发来的事件
type inboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type joinGroupPayload struct {
	GroupID uint `json:"groupId"`
}

type locationUpdatePayload struct {
	GroupID uint    `json:"groupId"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
}

type groupMessagePayload struct {
	GroupID uint   `json:"groupId"`
	Text    string `json:"text"`
}

type directMessagePayload struct {
	ToUserID uint   `json:"toUserId"`
	Text     string `json:"text"`
}

type communityPayload struct {
	CommunityID uint `json:"communityId"`
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 在生产环境中应该检查Origin
			return true
		},
	}
}

// NewConnection 创建连接实例（未绑定底层网络连接）
func NewConnection(hub *Hub, userID uint) *Connection {
	return &Connection{
		ID:       uuid.NewString(),
		UserID:   userID,
		Send:     make(chan []byte, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
		rooms:    make(map[string]bool),
	}
}

// HandleWebSocket 升级连接并接入Hub
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID uint) {
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}

	connection := NewConnection(hub, userID)
	connection.Conn = conn

	hub.register <- connection

	go connection.writePump()
	go connection.readPump()
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			break
		}

		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// 将队列中的其他消息也一起发送
			n := len(c.Send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 解码并分发事件。业务处理失败只记录日志，
// 不会影响其他连接
func (c *Connection) handleMessage(message []byte) {
	var event inboundEvent
	if err := json.Unmarshal(message, &event); err != nil {
		logrus.Errorf("消息解析失败: %v", err)
		return
	}

	switch event.Type {
	case EventPing:
		c.handlePing()
	case EventJoinGroup:
		var p joinGroupPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.GroupID == 0 {
			logrus.Warnf("无效的加入群组数据: %s", event.Data)
			return
		}
		c.JoinRoom(RoomGroup(p.GroupID))
		if c.Hub.sink != nil {
			c.Hub.sink.HandleJoinGroup(c, p.GroupID)
		}
	case EventLeaveGroup:
		var p joinGroupPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.GroupID == 0 {
			return
		}
		c.LeaveRoom(RoomGroup(p.GroupID))
	case EventLocationUpdate:
		var p locationUpdatePayload
		if err := json.Unmarshal(event.Data, &p); err != nil {
			logrus.Warnf("无效的位置数据: %s", event.Data)
			return
		}
		if c.Hub.sink != nil {
			c.Hub.sink.HandleLocationUpdate(c, p.GroupID, p.Lat, p.Lng)
		}
	case EventSendMessage:
		var p groupMessagePayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.GroupID == 0 || p.Text == "" {
			logrus.Warnf("无效的群聊数据: %s", event.Data)
			return
		}
		if c.Hub.sink != nil {
			c.Hub.sink.HandleGroupMessage(c, p.GroupID, p.Text)
		}
	case EventSendDirectMessage:
		var p directMessagePayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.ToUserID == 0 || p.Text == "" {
			logrus.Warnf("无效的私聊数据: %s", event.Data)
			return
		}
		if c.Hub.sink != nil {
			c.Hub.sink.HandleDirectMessage(c, p.ToUserID, p.Text)
		}
	case EventJoinCommunity:
		var p communityPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.CommunityID == 0 {
			return
		}
		// 社区房间只维护订阅关系，不落库
		c.JoinRoom(RoomCommunity(p.CommunityID))
	case EventLeaveCommunity:
		var p communityPayload
		if err := json.Unmarshal(event.Data, &p); err != nil || p.CommunityID == 0 {
			return
		}
		c.LeaveRoom(RoomCommunity(p.CommunityID))
	default:
		logrus.Warnf("未知的消息类型: %s", event.Type)
	}
}

// handlePing 处理ping消息
func (c *Connection) handlePing() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()

	_ = c.SendEvent(EventPong, nil)
}

// SendEvent 向当前连接发送一个事件
func (c *Connection) SendEvent(event string, data interface{}) error {
	payload, err := json.Marshal(&Envelope{
		Type:      event,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return err
	}

	select {
	case c.Send <- payload:
		return nil
	default:
		return fmt.Errorf("发送缓冲区已满")
	}
}

// JoinRoom 加入房间
func (c *Connection) JoinRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()

	c.Hub.joinRoom(c, room)
}

// LeaveRoom 离开房间
func (c *Connection) LeaveRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()

	c.Hub.leaveRoom(c, room)
}

// InRoom 检查是否已订阅房间
func (c *Connection) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Rooms 返回连接订阅的全部房间
func (c *Connection) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
