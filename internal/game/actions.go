package game

import "context"

// Action 玩家发起的事件
//
// 只有本包内的类型能实现该接口；每种事件都通过 apply 调用 actionHandler 上对应的方法，
// 新增事件而没有处理方法时无法通过编译。
type Action interface {
	Source() Peer
	apply(ctx context.Context, h actionHandler) error
}

type actionHandler interface {
	handleJoin(ctx context.Context, a Join) error
	handleLeave(ctx context.Context, a Leave) error
	handleChangeName(ctx context.Context, a ChangeName) error
	handleStartGame(ctx context.Context, a StartGame) error
	handleSkipStage(ctx context.Context, a SkipStage) error
	handleAskQuestion(ctx context.Context, a AskQuestion) error
	handleAnswerQuestion(ctx context.Context, a AnswerQuestion) error
	handleCastVote(ctx context.Context, a CastVote) error
	handlePlayAgain(ctx context.Context, a PlayAgain) error
}

var _ actionHandler = (*GameSession)(nil)

// Source 事件来源
func (p Peer) Source() Peer { return p }

// Join 玩家连接进入会话
type Join struct{ Peer }

// Leave 玩家连接断开
type Leave struct{ Peer }

// ChangeName 修改显示名
type ChangeName struct {
	Peer
	Name string
}

// StartGame 开始游戏
type StartGame struct{ Peer }

// SkipStage 跳过可跳过的阶段
type SkipStage struct{ Peer }

// AskQuestion 提问者出题
type AskQuestion struct {
	Peer
	Question string
}

// AnswerQuestion 提交答案
type AnswerQuestion struct {
	Peer
	Answer string
}

// CastVote 按匿名编号投票
type CastVote struct {
	Peer
	Ballot string
}

// PlayAgain 结束后重开
type PlayAgain struct{ Peer }

func (a Join) apply(ctx context.Context, h actionHandler) error           { return h.handleJoin(ctx, a) }
func (a Leave) apply(ctx context.Context, h actionHandler) error          { return h.handleLeave(ctx, a) }
func (a ChangeName) apply(ctx context.Context, h actionHandler) error     { return h.handleChangeName(ctx, a) }
func (a StartGame) apply(ctx context.Context, h actionHandler) error      { return h.handleStartGame(ctx, a) }
func (a SkipStage) apply(ctx context.Context, h actionHandler) error      { return h.handleSkipStage(ctx, a) }
func (a AskQuestion) apply(ctx context.Context, h actionHandler) error    { return h.handleAskQuestion(ctx, a) }
func (a AnswerQuestion) apply(ctx context.Context, h actionHandler) error { return h.handleAnswerQuestion(ctx, a) }
func (a CastVote) apply(ctx context.Context, h actionHandler) error       { return h.handleCastVote(ctx, a) }
func (a PlayAgain) apply(ctx context.Context, h actionHandler) error      { return h.handlePlayAgain(ctx, a) }
