package game

import "time"

// Stage 游戏阶段
type Stage string

const (
	StageLobby       Stage = "lobby"        // 大厅，等待开始
	StageIntro       Stage = "intro"        // 开场介绍
	StageQuestion    Stage = "question"     // 提问者出题
	StageAnswer      Stage = "answer"       // 玩家作答
	StageShowAnswers Stage = "show_answers" // 展示答案并投票
	StageEliminate   Stage = "eliminate"    // 淘汰结算
	StageEnding      Stage = "ending"       // 游戏结束
)

// Stages 全部阶段，按默认流转顺序
var Stages = []Stage{
	StageLobby,
	StageIntro,
	StageQuestion,
	StageAnswer,
	StageShowAnswers,
	StageEliminate,
	StageEnding,
}

// Valid 是否为已知阶段
func (s Stage) Valid() bool {
	for _, st := range Stages {
		if st == s {
			return true
		}
	}
	return false
}

func (s Stage) String() string {
	return string(s)
}

// Next 计算下一阶段，ENDING 没有自动后继，只能通过重开回到 LOBBY
func Next(s Stage, hasWinner bool) (Stage, bool) {
	switch s {
	case StageLobby:
		return StageIntro, true
	case StageIntro:
		return StageQuestion, true
	case StageQuestion:
		return StageAnswer, true
	case StageAnswer:
		return StageShowAnswers, true
	case StageShowAnswers:
		return StageEliminate, true
	case StageEliminate:
		if hasWinner {
			return StageEnding, true
		}
		return StageQuestion, true
	default:
		return "", false
	}
}

// StageSpec 阶段的静态描述，所有会话共享，不可修改
type StageSpec struct {
	Duration  time.Duration `json:"duration"` // 0 表示不自动推进
	Skippable bool          `json:"skippable"`
}

// StageTable 阶段描述表
type StageTable map[Stage]StageSpec

// DefaultStageTable 默认阶段时长
func DefaultStageTable() StageTable {
	return StageTable{
		StageLobby:       {},
		StageIntro:       {Duration: 5 * time.Second, Skippable: true},
		StageQuestion:    {Duration: 30 * time.Second},
		StageAnswer:      {Duration: 30 * time.Second},
		StageShowAnswers: {Duration: 30 * time.Second},
		StageEliminate:   {Duration: 15 * time.Second, Skippable: true},
		StageEnding:      {},
	}
}

// Spec 查询阶段描述，未配置的阶段视为不自动推进且不可跳过
func (t StageTable) Spec(s Stage) StageSpec {
	return t[s]
}

// Clone 拷贝一份阶段表
func (t StageTable) Clone() StageTable {
	out := make(StageTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// StageClock 会话当前阶段的计时窗口
type StageClock struct {
	EnteredAt time.Time `json:"entered_at"`
	EndsAt    time.Time `json:"ends_at"`
}

// Remaining 距离阶段结束的剩余时间，不会为负
func (c StageClock) Remaining(now time.Time) time.Duration {
	if c.EndsAt.IsZero() || !c.EndsAt.After(now) {
		return 0
	}
	return c.EndsAt.Sub(now)
}

// Timed 当前阶段是否有计时
func (c StageClock) Timed() bool {
	return c.EndsAt.After(c.EnteredAt)
}

// Team 获胜阵营
type Team string

const (
	TeamNone  Team = ""
	TeamHuman Team = "human"
	TeamAI    Team = "ai"
)
