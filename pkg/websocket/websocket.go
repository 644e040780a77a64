package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Envelope 定义WebSocket消息结构
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
	From      uint        `json:"from,omitempty"`
	To        uint        `json:"to,omitempty"`
	Room      string      `json:"room,omitempty"`
}

// EventSink 业务事件处理接口。连接层只做解码与房间维护，
// 持久化与广播语义由注入的 sink 承担
type EventSink interface {
	HandleJoinGroup(c *Connection, groupID uint)
	HandleLocationUpdate(c *Connection, groupID uint, lat, lng float64)
	HandleGroupMessage(c *Connection, groupID uint, text string)
	HandleDirectMessage(c *Connection, toUserID uint, text string)
	// HandleDisconnect 用户最后一条连接断开时回调
	HandleDisconnect(userID uint, rooms []string)
}

// Hub 管理所有WebSocket连接
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 用户ID到连接ID的映射（个人频道）
	userConnections map[uint]map[string]bool
	// 房间到连接ID的映射
	roomConnections map[string]map[string]bool
	// 广播消息通道
	broadcast chan *Envelope
	// 注册连接通道
	register chan *Connection
	// 注销连接通道
	unregister chan *Connection
	// 连接计数
	connectionCount int64
	// 配置
	config *Config
	// 业务事件处理
	sink EventSink
	// 互斥锁
	mu sync.RWMutex
	// 上下文
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub 创建新的Hub实例
func NewHub(config *Config, sink EventSink) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections:     make(map[string]*Connection),
		userConnections: make(map[uint]map[string]bool),
		roomConnections: make(map[string]map[string]bool),
		broadcast:       make(chan *Envelope, config.MessageQueueSize),
		register:        make(chan *Connection, 256),
		unregister:      make(chan *Connection, 256),
		config:          config,
		sink:            sink,
		ctx:             ctx,
		cancel:          cancel,
	}

	go hub.run()
	return hub
}

// SetSink 注入业务事件处理器（构造后、接入连接前调用）
func (h *Hub) SetSink(sink EventSink) {
	h.sink = sink
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case envelope := <-h.broadcast:
			h.deliver(envelope)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// deliver 按信封的目标投递：个人频道、房间或全体
func (h *Hub) deliver(envelope *Envelope) {
	if envelope.Timestamp == 0 {
		envelope.Timestamp = time.Now().Unix()
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		logrus.Errorf("消息序列化失败: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	switch {
	case envelope.To != 0:
		h.sendToUser(envelope.To, data)
	case envelope.Room != "":
		h.sendToRoom(envelope.Room, data)
	default:
		for _, conn := range h.connections {
			if conn.IsAlive {
				h.trySend(conn, data)
			}
		}
	}
}

// registerConnection 注册连接
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 检查最大连接数
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)

	// 绑定个人频道
	if h.userConnections[conn.UserID] == nil {
		h.userConnections[conn.UserID] = make(map[string]bool)
	}
	h.userConnections[conn.UserID][conn.ID] = true

	logrus.Infof("WebSocket连接已注册: %s, 用户: %d, 当前连接数: %d",
		conn.ID, conn.UserID, atomic.LoadInt64(&h.connectionCount))
}

// unregisterConnection 注销连接并触发断开回调
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()

	if _, exists := h.connections[conn.ID]; !exists {
		h.mu.Unlock()
		return
	}

	delete(h.connections, conn.ID)
	atomic.AddInt64(&h.connectionCount, -1)

	// 从个人频道移除
	lastOfUser := false
	if h.userConnections[conn.UserID] != nil {
		delete(h.userConnections[conn.UserID], conn.ID)
		if len(h.userConnections[conn.UserID]) == 0 {
			delete(h.userConnections, conn.UserID)
			lastOfUser = true
		}
	}

	// 从房间移除
	rooms := conn.Rooms()
	for _, room := range rooms {
		if h.roomConnections[room] != nil {
			delete(h.roomConnections[room], conn.ID)
			if len(h.roomConnections[room]) == 0 {
				delete(h.roomConnections, room)
			}
		}
	}

	close(conn.Send)
	h.mu.Unlock()

	logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d",
		conn.ID, atomic.LoadInt64(&h.connectionCount))

	// 用户完全离线时通知业务层做清理（置离线、补发快照）
	if lastOfUser && h.sink != nil {
		go h.sink.HandleDisconnect(conn.UserID, rooms)
	}
}

// joinRoom 将连接加入房间
func (h *Hub) joinRoom(conn *Connection, room string) {
	h.mu.Lock()
	if h.roomConnections[room] == nil {
		h.roomConnections[room] = make(map[string]bool)
	}
	h.roomConnections[room][conn.ID] = true
	h.mu.Unlock()
}

// leaveRoom 将连接移出房间
func (h *Hub) leaveRoom(conn *Connection, room string) {
	h.mu.Lock()
	if h.roomConnections[room] != nil {
		delete(h.roomConnections[room], conn.ID)
		if len(h.roomConnections[room]) == 0 {
			delete(h.roomConnections, room)
		}
	}
	h.mu.Unlock()
}

// sendToUser 发送消息到用户的个人频道（调用方需持有读锁）
func (h *Hub) sendToUser(userID uint, data []byte) {
	if connections, exists := h.userConnections[userID]; exists {
		for connID := range connections {
			if conn, ok := h.connections[connID]; ok && conn.IsAlive {
				h.trySend(conn, data)
			}
		}
	}
}

// sendToRoom 发送消息到房间内的所有连接（调用方需持有读锁）
func (h *Hub) sendToRoom(room string, data []byte) {
	if connections, exists := h.roomConnections[room]; exists {
		for connID := range connections {
			if conn, ok := h.connections[connID]; ok && conn.IsAlive {
				h.trySend(conn, data)
			}
		}
	}
}

// trySend 背压策略：缓冲区满时按配置丢弃
func (h *Hub) trySend(conn *Connection, data []byte) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			logrus.Warnf("连接 %s 发送缓冲区已满，消息被丢弃", conn.ID)
		}
		return
	}
	conn.Send <- data
}

// EmitToRoom 向房间广播一个事件
func (h *Hub) EmitToRoom(room, event string, data interface{}) {
	h.enqueue(&Envelope{Type: event, Data: data, Room: room})
}

// EmitToUser 向用户个人频道发送一个事件
func (h *Hub) EmitToUser(userID uint, event string, data interface{}) {
	h.enqueue(&Envelope{Type: event, Data: data, To: userID})
}

func (h *Hub) enqueue(envelope *Envelope) {
	select {
	case h.broadcast <- envelope:
	default:
		logrus.Warnf("广播队列已满，消息被丢弃: %s", envelope.Type)
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		if now.Sub(conn.LastPing) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.IsAlive = false
			if conn.Conn != nil {
				conn.Conn.Close()
			}
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// GetUserConnections 获取用户的连接数
func (h *Hub) GetUserConnections(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if connections, exists := h.userConnections[userID]; exists {
		return len(connections)
	}
	return 0
}

// GetRoomConnections 获取房间的连接数
func (h *Hub) GetRoomConnections(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if connections, exists := h.roomConnections[room]; exists {
		return len(connections)
	}
	return 0
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	// 关闭所有连接
	h.mu.Lock()
	for _, conn := range h.connections {
		if conn.Conn != nil {
			conn.Conn.Close()
		}
	}
	h.mu.Unlock()

	logrus.Info("WebSocket Hub已关闭")
}
