package service

import (
	"context"
	"encoding/json"
	"mock_interview_backend/pkg/logger"
	"mock_interview_backend/pkg/monitoring"
	"net/http"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	shardCount     = 32

	// 多实例部署时通过 redis 频道广播会话事件
	SessionEventChannel = "interview_session_events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type Client struct {
	Hub       *SessionHub
	Conn      *websocket.Conn
	Send      chan []byte
	SessionID uint
	UserID    uint
	Limiter   *rate.Limiter
}

// readPump 客户端只发送心跳，其他消息忽略
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()
	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error { c.Conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Log.Error("WebSocket unexpected close", zap.Error(err), zap.Uint("userId", c.UserID))
			}
			break
		}

		if !c.Limiter.Allow() {
			continue
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == "PING" {
			pong, _ := json.Marshal(WSMessage{Type: "PONG"})
			select {
			case c.Send <- pong:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.Hub.done:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		}
	}
}

// room 订阅同一会话的连接
type shard struct {
	rooms map[uint]map[*Client]struct{}
	mu    sync.RWMutex
}

type SessionHub struct {
	shards     [shardCount]*shard
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once
	Redis      *redis.Client
	ctx        context.Context
	cancel     context.CancelFunc
}

type PubSubMessage struct {
	SessionID uint            `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// NewSessionHub rdb 为 nil 时只在本进程内推送
func NewSessionHub(rdb *redis.Client) *SessionHub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &SessionHub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		Redis:      rdb,
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := 0; i < shardCount; i++ {
		h.shards[i] = &shard{rooms: make(map[uint]map[*Client]struct{})}
	}
	return h
}

func (h *SessionHub) getShard(sessionID uint) *shard {
	return h.shards[sessionID%shardCount]
}

func (h *SessionHub) Run() {
	if h.Redis != nil {
		pubsub := h.Redis.Subscribe(h.ctx, SessionEventChannel)
		go func() {
			defer pubsub.Close()
			for msg := range pubsub.Channel() {
				var psMsg PubSubMessage
				if err := json.Unmarshal([]byte(msg.Payload), &psMsg); err != nil {
					logger.Log.Error("PubSub unmarshal error", zap.Error(err))
					continue
				}
				h.pushToLocalRoom(psMsg.SessionID, psMsg.Payload)
			}
		}()
	}

	for {
		select {
		case client := <-h.register:
			s := h.getShard(client.SessionID)
			s.mu.Lock()
			room, ok := s.rooms[client.SessionID]
			if !ok {
				room = make(map[*Client]struct{})
				s.rooms[client.SessionID] = room
			}
			room[client] = struct{}{}
			s.mu.Unlock()
			monitoring.WSConnections.Inc()

		case client := <-h.unregister:
			h.removeClient(client)

		case <-h.done:
			return
		}
	}
}

func (h *SessionHub) removeClient(client *Client) {
	s := h.getShard(client.SessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[client.SessionID]
	if !ok {
		return
	}
	if _, ok := room[client]; !ok {
		return
	}
	delete(room, client)
	close(client.Send)
	if len(room) == 0 {
		delete(s.rooms, client.SessionID)
	}
	monitoring.WSConnections.Dec()
}

// Publish 实现 SessionEventPublisher
func (h *SessionHub) Publish(ctx context.Context, event SessionEvent) {
	msgBytes, err := json.Marshal(WSMessage{Type: event.Type, Data: event})
	if err != nil {
		logger.Log.Error("Session event marshal error", zap.Error(err))
		return
	}

	if h.Redis == nil {
		h.pushToLocalRoom(event.SessionID, msgBytes)
		return
	}

	payload, _ := json.Marshal(PubSubMessage{SessionID: event.SessionID, Payload: msgBytes})
	if err := h.Redis.Publish(ctx, SessionEventChannel, payload).Err(); err != nil {
		logger.Log.Warn("Session event publish failed, delivering locally", zap.Error(err))
		h.pushToLocalRoom(event.SessionID, msgBytes)
	}
}

func (h *SessionHub) pushToLocalRoom(sessionID uint, payload []byte) {
	s := h.getShard(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for client := range s.rooms[sessionID] {
		select {
		case client.Send <- payload:
		default:
		}
	}
}

// RoomSize 当前进程内订阅某会话的连接数
func (h *SessionHub) RoomSize(sessionID uint) int {
	s := h.getShard(sessionID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[sessionID])
}

// Stop 关闭所有连接。Send 只由 removeClient 关闭，readPump 仍可能向其写入
func (h *SessionHub) Stop() {
	h.stopOnce.Do(func() {
		logger.Log.Info("SessionHub stopping: closing connections...")
		h.cancel()
		// writePump 收到 done 后发送关闭帧并断开连接
		close(h.done)

		closed := 0
		for i := 0; i < shardCount; i++ {
			s := h.shards[i]
			s.mu.Lock()
			for sessionID, room := range s.rooms {
				closed += len(room)
				delete(s.rooms, sessionID)
			}
			s.mu.Unlock()
		}

		monitoring.WSConnections.Set(0)
		logger.Log.Info("SessionHub stopped", zap.Int("closedConnections", closed))
	})
}

// ServeWs 调用方需先校验用户可以查看该会话
func ServeWs(hub *SessionHub, w http.ResponseWriter, r *http.Request, sessionID, userID uint) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Error("WebSocket upgrade failed", zap.Error(err), zap.Uint("userId", userID))
		return
	}
	client := &Client{
		Hub:       hub,
		Conn:      conn,
		Send:      make(chan []byte, 64),
		SessionID: sessionID,
		UserID:    userID,
		Limiter:   rate.NewLimiter(rate.Limit(5), 10),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
