package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/config"
	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/game"
	"github.com/wfunc/ai-imposter/internal/view"
)

type staticAnswers struct{}

func (staticAnswers) Generate(context.Context, string, string, []string) (string, error) {
	return "beep", nil
}

type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) (*Hub, *game.GameSession, *httptest.Server) {
	t.Helper()
	hub := NewHub(config.Default().WebSocket, zap.NewNop())
	sess := game.NewGameSession(context.Background(), "abcde", "dev", game.DefaultOptions(), game.SessionDeps{
		Answers: staticAnswers{},
		Out:     NewGateway(hub, zap.NewNop()),
		Logger:  zap.NewNop(),
	})
	t.Cleanup(sess.Stop)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = hub.Serve(conn, sess, r.URL.Query().Get("player"))
	}))
	t.Cleanup(srv.Close)
	return hub, sess, srv
}

func dial(t *testing.T, srv *httptest.Server, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil 读到指定类型的消息为止
func readUntil(t *testing.T, conn *websocket.Conn, typ string) inbound {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg inbound
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestHubSendToClient(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{SendBuffer: 1}, zap.NewNop())
	assert.ErrorIs(t, hub.SendToClient("missing", []byte("x")), ErrClientNotFound)

	c := &Client{ID: "c1", send: make(chan []byte, 1), hub: hub}
	require.NoError(t, hub.register(c))
	assert.Equal(t, 1, hub.GetOnlineCount())

	require.NoError(t, hub.SendToClient("c1", []byte("a")))
	assert.ErrorIs(t, hub.SendToClient("c1", []byte("b")), ErrSendBufferFull)

	hub.unregister(c)
	hub.wg.Done()
	assert.Equal(t, 0, hub.GetOnlineCount())
	_, open := <-c.send
	assert.True(t, open, "buffered message survives close")
	_, open = <-c.send
	assert.False(t, open)
}

func TestHubDefaults(t *testing.T) {
	cfg := NewHub(config.WebSocketConfig{PongTimeout: 10 * time.Second}, nil).Config()
	assert.Equal(t, 9*time.Second, cfg.PingInterval)
	assert.Positive(t, cfg.SendBuffer)
	assert.Positive(t, cfg.RateLimit)
	assert.Positive(t, cfg.MaxMessageSize)
}

func TestServeSession(t *testing.T) {
	hub, sess, srv := newTestServer(t)

	p1 := dial(t, srv, "p1")
	first := readUntil(t, p1, view.TypeGame)
	var gv view.GameView
	require.NoError(t, json.Unmarshal(first.Data, &gv))
	assert.Equal(t, "abcde", gv.ID)
	require.NotNil(t, gv.You)
	assert.Equal(t, "p1", gv.You.ID)

	// 未知事件只回错误，连接保持
	require.NoError(t, p1.WriteJSON(map[string]string{"type": "dance"}))
	errMsg := readUntil(t, p1, view.TypeError)
	var ev view.ErrorView
	require.NoError(t, json.Unmarshal(errMsg.Data, &ev))
	assert.Equal(t, view.MsgUnknownEvent, ev.Message)

	require.NoError(t, p1.WriteJSON(map[string]string{"type": "ping"}))
	readUntil(t, p1, view.TypePong)

	require.NoError(t, p1.WriteJSON(map[string]interface{}{
		"type": "change_name",
		"data": map[string]string{"name": "Ann"},
	}))
	renamed := readUntil(t, p1, view.TypePlayers)
	var pv view.PlayersView
	require.NoError(t, json.Unmarshal(renamed.Data, &pv))
	assert.Equal(t, view.ChangeUpdated, pv.Change)
	require.Len(t, pv.Players, 1)
	assert.Equal(t, "Ann", pv.Players[0].Name)

	p2 := dial(t, srv, "p2")
	readUntil(t, p2, view.TypeGame)
	added := readUntil(t, p1, view.TypePlayers)
	require.NoError(t, json.Unmarshal(added.Data, &pv))
	assert.Equal(t, view.ChangeAdded, pv.Change)
	assert.Len(t, pv.Players, 2)

	require.NoError(t, p2.Close())
	left := readUntil(t, p1, view.TypePlayers)
	require.NoError(t, json.Unmarshal(left.Data, &pv))
	assert.Equal(t, view.ChangeLeft, pv.Change)

	require.Eventually(t, func() bool {
		return len(sess.Snapshot().ConnectedHumans()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	require.NoError(t, p1.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		if _, _, err := p1.ReadMessage(); err != nil {
			break
		}
	}
	assert.Equal(t, 0, hub.GetOnlineCount())
}

func TestServeRejectsMissingPlayer(t *testing.T) {
	hub, _, srv := newTestServer(t)

	conn := dial(t, srv, "")
	msg := readUntil(t, conn, view.TypeError)
	assert.NotEmpty(t, msg.Data)
	require.Eventually(t, func() bool { return hub.GetOnlineCount() == 0 }, time.Second, 10*time.Millisecond)
}

// lateJoinSession 让 Join 进入邮箱，但像等待超时一样提前返回
type lateJoinSession struct {
	*game.GameSession
}

func (s lateJoinSession) Do(ctx context.Context, a game.Action) error {
	if j, ok := a.(game.Join); ok {
		if err := s.GameSession.Submit(j); err != nil {
			return err
		}
		return apperrors.Wrap(context.DeadlineExceeded, apperrors.ErrCanceled)
	}
	return s.GameSession.Do(ctx, a)
}

func TestServeJoinTimeoutLeavesNoGhost(t *testing.T) {
	hub := NewHub(config.Default().WebSocket, zap.NewNop())
	sess := game.NewGameSession(context.Background(), "abcde", "dev", game.DefaultOptions(), game.SessionDeps{
		Answers: staticAnswers{},
		Out:     NewGateway(hub, zap.NewNop()),
		Logger:  zap.NewNop(),
	})
	t.Cleanup(sess.Stop)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var target Session = sess
		if r.URL.Query().Get("late") != "" {
			target = lateJoinSession{sess}
		}
		_ = hub.Serve(conn, target, r.URL.Query().Get("player"))
	}))
	t.Cleanup(srv.Close)

	p1 := dial(t, srv, "p1")
	readUntil(t, p1, view.TypeGame)

	late := dial(t, srv, "p2&late=1")
	readUntil(t, late, view.TypeError)

	// 连接已关闭的玩家不能再算作在线
	require.Eventually(t, func() bool {
		p, ok := sess.Snapshot().Player("p2")
		return ok && !p.Connected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sess.Snapshot().ConnectedHumans(), 1)
	require.Eventually(t, func() bool { return hub.GetOnlineCount() == 1 }, time.Second, 10*time.Millisecond)

	// 重连后旧连接的 Leave 不影响新连接
	p2 := dial(t, srv, "p2")
	readUntil(t, p2, view.TypeGame)
	require.Eventually(t, func() bool {
		p, ok := sess.Snapshot().Player("p2")
		return ok && p.Connected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sess.Snapshot().ConnectedHumans(), 2)
}
