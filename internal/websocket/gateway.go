package websocket

import (
	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/game"
	"github.com/wfunc/ai-imposter/internal/logger"
	"github.com/wfunc/ai-imposter/internal/view"
)

// Gateway 按接收者渲染会话视图并经由 Hub 推送
type Gateway struct {
	hub    *Hub
	logger *zap.Logger
}

var _ game.Broadcaster = (*Gateway)(nil)

// NewGateway 创建推送网关
func NewGateway(hub *Hub, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{hub: hub, logger: logger}
}

// RenderAndSend 为每个接收者单独渲染
func (g *Gateway) RenderAndSend(v game.View, snap *game.Snapshot, targets []game.Peer) {
	for _, to := range targets {
		g.deliver(to, view.Render(v, snap, to.PlayerID))
	}
}

// SendError 只发给事件发起者
func (g *Gateway) SendError(to game.Peer, err error) {
	g.deliver(to, view.Error(err))
}

func (g *Gateway) deliver(to game.Peer, env view.Envelope) {
	if to.Transport == "" {
		return
	}
	data, err := env.Encode()
	if err != nil {
		g.logger.Error("序列化视图失败", zap.String("type", env.Type), zap.Error(err))
		return
	}
	if err := g.hub.SendToClient(to.Transport, data); err != nil {
		g.logger.Debug("视图推送失败",
			zap.String("player_id", to.PlayerID),
			zap.String("type", env.Type),
			zap.Error(err))
		return
	}
	logger.LogWebSocketMessage(g.logger, "out", env.Type, len(data))
}
