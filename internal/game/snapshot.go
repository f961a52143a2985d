package game

import (
	"sort"
	"time"
)

// PlayerState 玩家的只读快照
type PlayerState struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Transport     string `json:"-"`
	Connected     bool   `json:"connected"`
	IsAI          bool   `json:"-"`
	AskedQuestion bool   `json:"asked_question"`
	Answer        string `json:"-"`
	Voted         bool   `json:"voted"`
	VoteTarget    string `json:"-"`
	Votes         int    `json:"votes"`
	Eliminated    bool   `json:"eliminated"`
	Ballot        string `json:"-"`
	CanAnswer     bool   `json:"-"` // 本轮需要作答
	CanVote       bool   `json:"-"` // 在投票池中
}

// Snapshot 会话在某一时刻的只读状态，供渲染和HTTP查询使用
type Snapshot struct {
	ID           string        `json:"id"`
	Model        string        `json:"model"`
	Stage        Stage         `json:"stage"`
	Spec         StageSpec     `json:"spec"`
	Clock        StageClock    `json:"clock"`
	QuestionerID string        `json:"questioner_id,omitempty"`
	Question     string        `json:"question,omitempty"`
	EliminatedID string        `json:"eliminated_id,omitempty"`
	Winner       Team          `json:"winner,omitempty"`
	Players      []PlayerState `json:"-"` // 加入顺序，含AI
	MinPlayers   int           `json:"min_players"`
	Version      uint64        `json:"version"`
	TakenAt      time.Time     `json:"taken_at"`
	LastActivity time.Time     `json:"last_activity"`
}

// Player 按ID查找玩家
func (s *Snapshot) Player(id string) (PlayerState, bool) {
	for _, p := range s.Players {
		if p.ID == id {
			return p, true
		}
	}
	return PlayerState{}, false
}

// AI AI玩家
func (s *Snapshot) AI() PlayerState {
	for _, p := range s.Players {
		if p.IsAI {
			return p
		}
	}
	return PlayerState{}
}

// Humans 全部真人，含已断开的
func (s *Snapshot) Humans() []PlayerState {
	var out []PlayerState
	for _, p := range s.Players {
		if !p.IsAI {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedHumans 在线真人
func (s *Snapshot) ConnectedHumans() []PlayerState {
	var out []PlayerState
	for _, p := range s.Players {
		if !p.IsAI && p.Connected {
			out = append(out, p)
		}
	}
	return out
}

// Peers 在线真人的连接
func (s *Snapshot) Peers() []Peer {
	humans := s.ConnectedHumans()
	out := make([]Peer, 0, len(humans))
	for _, p := range humans {
		out = append(out, Peer{PlayerID: p.ID, Transport: p.Transport})
	}
	return out
}

// AnswerCards 已分配匿名编号的答案，按编号排序
func (s *Snapshot) AnswerCards() []PlayerState {
	var out []PlayerState
	for _, p := range s.Players {
		if p.Ballot != "" {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ballot < out[j].Ballot })
	return out
}

// AnswerProgress 作答进度
func (s *Snapshot) AnswerProgress() (answered, total int) {
	for _, p := range s.Players {
		if p.CanAnswer {
			total++
			if p.Answer != "" {
				answered++
			}
		}
	}
	return answered, total
}

// VoteProgress 投票进度
func (s *Snapshot) VoteProgress() (voted, total int) {
	for _, p := range s.Players {
		if p.CanVote {
			total++
			if p.Voted {
				voted++
			}
		}
	}
	return voted, total
}

// Idle 没有在线真人且空闲超过 timeout
func (s *Snapshot) Idle(now time.Time, timeout time.Duration) bool {
	return len(s.ConnectedHumans()) == 0 && now.Sub(s.LastActivity) > timeout
}
