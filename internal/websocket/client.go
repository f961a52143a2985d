package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/game"
	"github.com/wfunc/ai-imposter/internal/logger"
	"github.com/wfunc/ai-imposter/internal/view"
)

// 加入和离开事件等待会话处理的最长时间
const membershipTimeout = 5 * time.Second

// Session 连接需要的会话能力
type Session interface {
	ID() string
	Submit(a game.Action) error
	Do(ctx context.Context, a game.Action) error
}

// Client 一个玩家连接
type Client struct {
	ID        string // 连接ID，也是会话里的 Transport
	PlayerID  string
	SessionID string

	hub     *Hub
	conn    *websocket.Conn
	session Session
	send    chan []byte
	limiter *rate.Limiter
	logger  *zap.Logger

	closeOnce sync.Once
}

// NewClient 创建新客户端
func NewClient(hub *Hub, conn *websocket.Conn, session Session, playerID string) *Client {
	cfg := hub.cfg
	id := uuid.NewString()
	return &Client{
		ID:        id,
		PlayerID:  playerID,
		SessionID: session.ID(),
		hub:       hub,
		conn:      conn,
		session:   session,
		send:      make(chan []byte, cfg.SendBuffer),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		logger: hub.logger.With(
			zap.String("client_id", id),
			zap.String("player_id", playerID),
			zap.String("session_id", session.ID())),
	}
}

// Peer 连接对应的会话参与者
func (c *Client) Peer() game.Peer {
	return game.Peer{PlayerID: c.PlayerID, Transport: c.ID}
}

// Serve 注册连接、加入会话并启动读写协程，阻塞直到连接结束
func (h *Hub) Serve(conn *websocket.Conn, session Session, playerID string) error {
	c := NewClient(h, conn, session, playerID)
	if err := h.register(c); err != nil {
		_ = conn.Close()
		return err
	}
	defer h.wg.Done()

	go c.WritePump()

	ctx, cancel := context.WithTimeout(context.Background(), membershipTimeout)
	err := session.Do(ctx, game.Join{Peer: c.Peer()})
	cancel()
	if err != nil {
		c.logger.Warn("加入会话失败", zap.Error(err))
		// 会话内的校验错误已经由会话推送过
		if unavailable(err) {
			c.queue(view.Error(err))
		}
		// 等待超时时Join可能仍在邮箱里，随后补一个Leave
		if apperrors.Is(err, apperrors.ErrCanceled) || apperrors.Is(err, apperrors.ErrSessionBusy) {
			go c.leaveAfterFailedJoin()
		}
		h.unregister(c)
		return err
	}

	c.ReadPump()
	return nil
}

// leaveAfterFailedJoin 邮箱先进先出，Leave 排在未完成的 Join 之后；
// 玩家已经从别的连接重连时，旧连接ID的 Leave 会被会话忽略
func (c *Client) leaveAfterFailedJoin() {
	if err := c.session.Do(context.Background(), game.Leave{Peer: c.Peer()}); err != nil &&
		!apperrors.Is(err, apperrors.ErrSessionClosed) {
		c.logger.Warn("补发离开事件失败", zap.Error(err))
	}
}

// ReadPump 读取消息，退出时离开会话并注销
func (c *Client) ReadPump() {
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), membershipTimeout)
		if err := c.session.Do(ctx, game.Leave{Peer: c.Peer()}); err != nil && !apperrors.Is(err, apperrors.ErrSessionClosed) {
			c.logger.Warn("离开会话失败", zap.Error(err))
		}
		cancel()
		c.hub.unregister(c)
		c.closeConn(websocket.CloseNormalClosure, "")
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket读取错误", zap.Error(err))
			}
			return
		}
		logger.LogWebSocketMessage(c.logger, "in", "frame", len(message))
		if !c.handleMessage(message) {
			return
		}
	}
}

// WritePump 写入消息并定时发送ping
func (c *Client) WritePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeConn(websocket.CloseNormalClosure, "")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// 每条消息单独一帧，客户端按帧解析JSON
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理一条入站消息，返回 false 表示应断开连接
func (c *Client) handleMessage(data []byte) bool {
	if !c.limiter.Allow() {
		c.queue(view.Error(apperrors.New(apperrors.ErrRateLimitExceeded)))
		return true
	}

	msg, err := ParseMessage(data)
	if err != nil {
		c.logger.Debug("解析WebSocket消息失败", zap.Error(err))
		c.queue(view.Error(err))
		return true
	}

	if msg.Type == MessageTypePing {
		c.queue(view.Pong())
		return true
	}

	action, err := DecodeAction(msg, c.Peer())
	if err != nil {
		c.logger.Debug("无法识别的事件", zap.String("type", msg.Type), zap.Error(err))
		c.queue(view.Error(err))
		return true
	}

	if err := c.session.Submit(action); err != nil {
		c.queue(view.Error(err))
		if apperrors.Is(err, apperrors.ErrSessionClosed) {
			return false
		}
	}
	return true
}

func unavailable(err error) bool {
	switch apperrors.GetCode(err) {
	case apperrors.ErrSessionClosed, apperrors.ErrSessionBusy, apperrors.ErrCanceled:
		return true
	}
	return false
}

// queue 直接发给本连接
func (c *Client) queue(env view.Envelope) {
	data, err := env.Encode()
	if err != nil {
		c.logger.Error("序列化消息失败", zap.Error(err))
		return
	}
	if err := c.hub.SendToClient(c.ID, data); err != nil {
		c.logger.Debug("发送失败", zap.Error(err))
	}
}

// closeConn 发送关闭帧并关闭底层连接
func (c *Client) closeConn(code int, reason string) {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.conn.Close()
	})
}
