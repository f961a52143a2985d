package websocket

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/config"
)

// 错误定义
var (
	ErrClientNotFound = errors.New("客户端未找到")
	ErrSendBufferFull = errors.New("发送缓冲区已满")
	ErrHubClosed      = errors.New("连接中心已关闭")
)

// Hub WebSocket连接管理中心，按连接ID投递出站消息
type Hub struct {
	clients   map[string]*Client
	clientsMu sync.RWMutex
	closed    bool

	cfg    config.WebSocketConfig
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewHub 创建Hub
func NewHub(cfg config.WebSocketConfig, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[string]*Client),
		cfg:     withDefaults(cfg),
		logger:  logger,
	}
}

func withDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	def := config.Default().WebSocket
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = def.PongTimeout
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongTimeout {
		cfg.PingInterval = cfg.PongTimeout * 9 / 10
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = def.RateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = def.RateBurst
	}
	return cfg
}

// Config 生效的连接配置
func (h *Hub) Config() config.WebSocketConfig { return h.cfg }

// Run 阻塞直到 ctx 结束，然后关闭全部连接
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.Close()
}

// Close 关闭全部连接并等待读写协程退出
func (h *Hub) Close() {
	h.clientsMu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.Unlock()

	for _, c := range clients {
		c.closeConn(websocket.CloseGoingAway, "server shutting down")
	}
	h.wg.Wait()
	h.logger.Info("WebSocket连接中心已关闭", zap.Int("clients", len(clients)))
}

// register 注册客户端
func (h *Hub) register(client *Client) error {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if h.closed {
		return ErrHubClosed
	}
	h.clients[client.ID] = client
	h.wg.Add(1)

	h.logger.Info("WebSocket客户端连接",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID),
		zap.String("session_id", client.SessionID))
	return nil
}

// unregister 注销客户端，关闭发送通道
func (h *Hub) unregister(client *Client) {
	h.clientsMu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		delete(h.clients, client.ID)
		close(client.send)
	}
	h.clientsMu.Unlock()

	h.logger.Info("WebSocket客户端断开",
		zap.String("client_id", client.ID),
		zap.String("player_id", client.PlayerID))
}

// SendToClient 发送消息给指定连接，缓冲区满时丢弃
func (h *Hub) SendToClient(clientID string, data []byte) error {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	client, ok := h.clients[clientID]
	if !ok {
		return ErrClientNotFound
	}

	select {
	case client.send <- data:
		return nil
	default:
		h.logger.Warn("客户端发送缓冲区满", zap.String("client_id", clientID))
		return ErrSendBufferFull
	}
}

// GetOnlineCount 获取在线连接数
func (h *Hub) GetOnlineCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}
