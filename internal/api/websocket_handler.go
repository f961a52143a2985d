package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/middleware"
)

// gameWebSocket 玩家连接，未知的游戏ID按配置自动创建
func (r *Router) gameWebSocket(c *gin.Context) {
	playerID, ok := middleware.GetPlayerID(c)
	if !ok {
		return
	}

	sess, err := r.sessions.GetOrCreate(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	// 新签发的令牌随握手响应写回
	var header http.Header
	if cookies := c.Writer.Header().Values("Set-Cookie"); len(cookies) > 0 {
		header = http.Header{"Set-Cookie": cookies}
	}
	conn, err := r.upgrader.Upgrade(c.Writer, c.Request, header)
	if err != nil {
		r.log.Warn("WebSocket升级失败",
			zap.String("player_id", playerID),
			zap.String("session_id", sess.ID()),
			zap.Error(err))
		return
	}

	if err := r.hub.Serve(conn, sess, playerID); err != nil {
		r.log.Debug("WebSocket连接结束", zap.String("player_id", playerID), zap.Error(err))
	}
}
