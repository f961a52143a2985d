// Package view 把会话快照渲染成每个接收者各自的客户端消息
package view

import (
	"encoding/json"
	"time"
)

// 消息类型
const (
	TypeGame            = "game"
	TypePlayers         = "players"
	TypeAnswerSubmitted = "answer_submitted"
	TypeAnswerProgress  = "answer_progress"
	TypeWaitingOnAI     = "waiting_on_ai"
	TypeVoteProgress    = "vote_progress"
	TypeError           = "error"
	TypePong            = "pong"
)

// 名单变化
const (
	ChangeAdded   = "added"
	ChangeUpdated = "updated"
	ChangeLeft    = "left"
)

// 推送给客户端的通用错误提示
const (
	MsgSomethingWrong = "Something went wrong. Please try again."
	MsgUnknownEvent   = "Unknown event"
	MsgWaitingOnAI    = "All answers are in. Waiting on the AI..."
)

// Envelope 出站消息
type Envelope struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Encode 序列化
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

func newEnvelope(typ string, data interface{}) Envelope {
	return Envelope{Type: typ, Data: data, Timestamp: time.Now().UnixMilli()}
}

// PlayerView 名单中的一个玩家
type PlayerView struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Connected    bool   `json:"connected"`
	Eliminated   bool   `json:"eliminated"`
	IsQuestioner bool   `json:"is_questioner,omitempty"`
	Answered     bool   `json:"answered,omitempty"`
	Voted        bool   `json:"voted,omitempty"`
	IsYou        bool   `json:"is_you,omitempty"`
	IsAI         bool   `json:"is_ai,omitempty"`
}

// AnswerCard 匿名答案卡片
type AnswerCard struct {
	Ballot     string `json:"ballot"`
	Answer     string `json:"answer"`
	Votes      *int   `json:"votes,omitempty"`
	Mine       bool   `json:"mine,omitempty"`
	VotedFor   bool   `json:"voted_for,omitempty"`
	AuthorID   string `json:"author_id,omitempty"`
	AuthorName string `json:"author_name,omitempty"`
	IsAI       bool   `json:"is_ai,omitempty"`
}

// You 接收者自己的状态和可执行操作
type You struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	IsQuestioner bool   `json:"is_questioner"`
	Eliminated   bool   `json:"eliminated"`
	Answer       string `json:"answer,omitempty"`
	Voted        bool   `json:"voted"`
	CanStart     bool   `json:"can_start"`
	CanSkip      bool   `json:"can_skip"`
	CanAsk       bool   `json:"can_ask"`
	CanAnswer    bool   `json:"can_answer"`
	CanVote      bool   `json:"can_vote"`
	CanPlayAgain bool   `json:"can_play_again"`
}

// GameView 完整的游戏状态
type GameView struct {
	ID         string       `json:"id"`
	Model      string       `json:"model"`
	Stage      string       `json:"stage"`
	Skippable  bool         `json:"skippable"`
	TimerStart int64        `json:"timer_start,omitempty"` // 毫秒时间戳
	TimerEnd   int64        `json:"timer_end,omitempty"`
	MinPlayers int          `json:"min_players"`
	Questioner *PlayerView  `json:"questioner,omitempty"`
	Question   string       `json:"question,omitempty"`
	Players    []PlayerView `json:"players"`
	Answers    []AnswerCard `json:"answers,omitempty"`
	Eliminated *PlayerView  `json:"eliminated,omitempty"`
	Winner     string       `json:"winner,omitempty"`
	AI         *PlayerView  `json:"ai,omitempty"`
	You        *You         `json:"you,omitempty"`
	Version    uint64       `json:"version"`
}

// PlayersView 名单变化
type PlayersView struct {
	Change  string       `json:"change"`
	Players []PlayerView `json:"players"`
}

// ProgressView 作答或投票进度
type ProgressView struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// AnswerSubmittedView 作答确认
type AnswerSubmittedView struct {
	Answer string `json:"answer"`
}

// NoticeView 提示信息
type NoticeView struct {
	Message string `json:"message"`
}

// ErrorView 错误信息
type ErrorView struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
