package game

import "time"

// AIPlayerName AI玩家的显示名
const AIPlayerName = "AI Player"

// Player 玩家
type Player struct {
	ID        string // 稳定的外部身份
	Name      string
	Transport string // 当前连接句柄
	Connected bool
	IsAI      bool
	JoinedAt  time.Time

	// 轮次数据
	AskedQuestion bool   // 本轮循环是否已经当过提问者
	Answer        string // 当前答案
	Voted         bool
	VoteTarget    string // 投票对象的玩家ID
	Votes         int    // 收到的票数
	Eliminated    bool
	Ballot        string // 展示答案时的匿名编号
}

// resetRound 清空每轮的答案和投票数据
func (p *Player) resetRound() {
	p.Answer = ""
	p.Voted = false
	p.VoteTarget = ""
	p.Votes = 0
	p.Ballot = ""
}

// resetGame 重开游戏时清空全部局内数据
func (p *Player) resetGame() {
	p.resetRound()
	p.AskedQuestion = false
	p.Eliminated = false
}

// active 在线且未被淘汰的真人
func (p *Player) active() bool {
	return !p.IsAI && p.Connected && !p.Eliminated
}
