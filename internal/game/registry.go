package game

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// PlayerRegistry 会话内的玩家名册
//
// 非并发安全，只能在所属会话的事件循环中访问。所有玩家池每次调用时根据当前名册实时计算。
type PlayerRegistry struct {
	players []*Player // 加入顺序
	byID    map[string]*Player
	ai      *Player
	rng     *rand.Rand
}

// NewPlayerRegistry 创建名册并放入唯一的AI玩家
func NewPlayerRegistry(aiID string, rng *rand.Rand) *PlayerRegistry {
	ai := &Player{
		ID:        aiID,
		Name:      AIPlayerName,
		Connected: true,
		IsAI:      true,
		JoinedAt:  time.Now(),
	}
	return &PlayerRegistry{
		players: []*Player{ai},
		byID:    map[string]*Player{aiID: ai},
		ai:      ai,
		rng:     rng,
	}
}

// Join 玩家连接。新玩家返回 isNew=true 并分配顺序名称，老玩家重新绑定连接
func (r *PlayerRegistry) Join(id, transport string) (*Player, bool) {
	if p, ok := r.byID[id]; ok {
		p.Transport = transport
		p.Connected = true
		return p, false
	}

	p := &Player{
		ID:        id,
		Name:      fmt.Sprintf("Player %d", len(r.players)),
		Transport: transport,
		Connected: true,
		JoinedAt:  time.Now(),
	}
	r.players = append(r.players, p)
	r.byID[id] = p
	return p, true
}

// Leave 玩家断开。连接句柄已被新连接替换时忽略，返回是否确实标记了断开
func (r *PlayerRegistry) Leave(id, transport string) (*Player, bool) {
	p, ok := r.byID[id]
	if !ok || p.IsAI || !p.Connected {
		return p, false
	}
	if transport != "" && p.Transport != transport {
		return p, false
	}
	p.Connected = false
	return p, true
}

// Get 查找玩家
func (r *PlayerRegistry) Get(id string) (*Player, bool) {
	p, ok := r.byID[id]
	return p, ok
}

// AI 返回AI玩家
func (r *PlayerRegistry) AI() *Player {
	return r.ai
}

// All 全部玩家（含AI），按加入顺序
func (r *PlayerRegistry) All() []*Player {
	return r.players
}

// Len 名册人数（含AI）
func (r *PlayerRegistry) Len() int {
	return len(r.players)
}

func (r *PlayerRegistry) filter(keep func(p *Player) bool) []*Player {
	var out []*Player
	for _, p := range r.players {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// ConnectedHumans 在线真人
func (r *PlayerRegistry) ConnectedHumans() []*Player {
	return r.filter(func(p *Player) bool { return !p.IsAI && p.Connected })
}

// EligibleQuestioners 本轮循环中还没提过问的在线存活真人
func (r *PlayerRegistry) EligibleQuestioners() []*Player {
	return r.filter(func(p *Player) bool { return p.active() && !p.AskedQuestion })
}

// AnsweringHumans 需要作答的真人（除提问者外的在线存活真人）
func (r *PlayerRegistry) AnsweringHumans(questionerID string) []*Player {
	return r.filter(func(p *Player) bool { return p.active() && p.ID != questionerID })
}

// AnsweringPool 作答池：作答真人加上未淘汰的AI，每次调用重新打乱顺序
func (r *PlayerRegistry) AnsweringPool(questionerID string) []*Player {
	pool := r.AnsweringHumans(questionerID)
	if !r.ai.Eliminated {
		pool = append(pool, r.ai)
	}
	r.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool
}

// VotingPool 有投票权的玩家（在线存活真人）
func (r *PlayerRegistry) VotingPool() []*Player {
	return r.filter(func(p *Player) bool { return p.active() })
}

// RemainingPool 仍在场上的真人
func (r *PlayerRegistry) RemainingPool() []*Player {
	return r.filter(func(p *Player) bool { return p.active() })
}

// SelectQuestioner 从未提问的玩家中随机选出提问者，池空时重置提问标记后重选。
// 没有在线存活真人时返回nil
func (r *PlayerRegistry) SelectQuestioner() *Player {
	options := r.EligibleQuestioners()
	if len(options) == 0 {
		for _, p := range r.ConnectedHumans() {
			p.AskedQuestion = false
		}
		options = r.EligibleQuestioners()
	}
	if len(options) == 0 {
		return nil
	}
	chosen := options[r.rng.IntN(len(options))]
	chosen.AskedQuestion = true
	return chosen
}

// ResetRound 清空全部玩家的轮次数据
func (r *PlayerRegistry) ResetRound() {
	for _, p := range r.players {
		p.resetRound()
	}
}

// ResetGame 清空全部玩家的局内数据
func (r *PlayerRegistry) ResetGame() {
	for _, p := range r.players {
		p.resetGame()
	}
}

// FindBallot 按匿名编号查找作答者
func (r *PlayerRegistry) FindBallot(ballot string) (*Player, bool) {
	if ballot == "" {
		return nil, false
	}
	for _, p := range r.players {
		if p.Ballot == ballot {
			return p, true
		}
	}
	return nil, false
}
