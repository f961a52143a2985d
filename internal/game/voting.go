package game

// Outcome 一次淘汰结算的结果
type Outcome struct {
	Eliminated *Player // 平票或无人得票时为nil
	Winner     Team
}

// VotingEngine 计票与胜负判定
//
// 重复投票时先撤销上一票再计入新票，因此总票数始终等于已投票人数。
type VotingEngine struct {
	players *PlayerRegistry
}

// NewVotingEngine 创建计票器
func NewVotingEngine(players *PlayerRegistry) *VotingEngine {
	return &VotingEngine{players: players}
}

// CastVote 记录一票
func (v *VotingEngine) CastVote(voter, target *Player) {
	if voter.Voted {
		if voter.VoteTarget == target.ID {
			return
		}
		if prev, ok := v.players.Get(voter.VoteTarget); ok && prev.Votes > 0 {
			prev.Votes--
		}
	}
	voter.Voted = true
	voter.VoteTarget = target.ID
	target.Votes++
}

// AllVoted 投票池中的玩家是否都已投票
func (v *VotingEngine) AllVoted() bool {
	voted, total := v.Progress()
	return total > 0 && voted == total
}

// Progress 投票进度
func (v *VotingEngine) Progress() (voted, total int) {
	for _, p := range v.players.VotingPool() {
		total++
		if p.Voted {
			voted++
		}
	}
	return voted, total
}

// Eliminate 在给定候选池中淘汰得票最多者（唯一最高票才淘汰），并判定胜负
func (v *VotingEngine) Eliminate(pool []*Player) Outcome {
	maxVotes := 0
	for _, p := range pool {
		if p.Votes > maxVotes {
			maxVotes = p.Votes
		}
	}
	if maxVotes == 0 {
		return Outcome{}
	}

	var top []*Player
	for _, p := range pool {
		if p.Votes == maxVotes {
			top = append(top, p)
		}
	}
	if len(top) != 1 {
		return Outcome{}
	}

	out := Outcome{Eliminated: top[0]}
	out.Eliminated.Eliminated = true

	switch {
	case out.Eliminated.IsAI:
		out.Winner = TeamHuman
	case len(v.players.RemainingPool()) <= 1:
		out.Winner = TeamAI
	}
	return out
}
