package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/logger"
	"github.com/wfunc/ai-imposter/internal/middleware"
	"github.com/wfunc/ai-imposter/internal/view"
)

// CreateGameRequest 创建游戏请求
type CreateGameRequest struct {
	Model string `json:"model"`
}

// CreateGameResponse 创建游戏响应
type CreateGameResponse struct {
	ID        string `json:"id"`
	Model     string `json:"model"`
	WebSocket string `json:"websocket"`
}

// IdentityResponse 玩家身份
type IdentityResponse struct {
	PlayerID string `json:"player_id"`
	Token    string `json:"token"`
}

// listModels 可用模型
func (r *Router) listModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"models":  r.models.Models(),
		"default": r.cfg.Answer.DefaultModel,
	})
}

// issueIdentity 返回当前玩家的令牌，没有时由中间件新签发
func (r *Router) issueIdentity(c *gin.Context) {
	id, _ := middleware.GetPlayerID(c)
	c.JSON(http.StatusOK, IdentityResponse{PlayerID: id, Token: middleware.GetToken(c)})
}

// createGame 创建游戏
func (r *Router) createGame(c *gin.Context) {
	var req CreateGameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam, "请求体格式错误"))
			return
		}
	}

	sess, err := r.sessions.Create(strings.TrimSpace(req.Model))
	if err != nil {
		writeError(c, err)
		return
	}

	playerID, _ := middleware.GetPlayerID(c)
	logger.LogGameEvent(r.log, "game_created", sess.ID(),
		zap.String("model", sess.Model()),
		zap.String("player_id", playerID))

	c.JSON(http.StatusCreated, CreateGameResponse{
		ID:        sess.ID(),
		Model:     sess.Model(),
		WebSocket: "/ws/games/" + sess.ID(),
	})
}

// getGame 按请求者渲染的游戏状态
func (r *Router) getGame(c *gin.Context) {
	sess, err := r.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	playerID, _ := middleware.GetPlayerID(c)
	c.JSON(http.StatusOK, view.Game(sess.Snapshot(), playerID))
}
