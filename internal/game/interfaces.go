package game

import "context"

// AnswerService 生成AI玩家的伪装答案
type AnswerService interface {
	Generate(ctx context.Context, model, question string, humanAnswers []string) (string, error)
}

// ModelCatalog 可用模型目录
type ModelCatalog interface {
	HasModel(name string) bool
}

// Peer 一个玩家连接
type Peer struct {
	PlayerID  string `json:"player_id"`
	Transport string `json:"transport"`
}

// View 推送给客户端的视图名称
type View string

const (
	ViewGame            View = "game"
	ViewPlayerAdded     View = "player_added"
	ViewPlayerUpdated   View = "player_updated"
	ViewPlayerLeft      View = "player_left"
	ViewAnswerSubmitted View = "answer_submitted"
	ViewAnswerProgress  View = "answer_progress"
	ViewWaitingOnAI     View = "waiting_on_ai"
	ViewVoteProgress    View = "vote_progress"
)

// Broadcaster 按接收者渲染并推送视图
//
// 对同一个接收者的推送必须按调用顺序送达。
type Broadcaster interface {
	RenderAndSend(view View, snap *Snapshot, targets []Peer)
	SendError(to Peer, err error)
}

// NopBroadcaster 丢弃所有推送
type NopBroadcaster struct{}

func (NopBroadcaster) RenderAndSend(View, *Snapshot, []Peer) {}
func (NopBroadcaster) SendError(Peer, error)                 {}
