package game

import (
	"time"

	"github.com/wfunc/ai-imposter/internal/config"
)

// Options 单个会话的规则参数，会话创建时拷贝一份
type Options struct {
	Stages            StageTable
	MinPlayers        int
	AnswerTimeout     time.Duration
	FallbackAnswers   []string
	FallbackQuestions []string
	MaxNameLength     int
	MaxTextLength     int
	MailboxSize       int
}

// DefaultOptions 默认规则
func DefaultOptions() Options {
	return Options{
		Stages:            DefaultStageTable(),
		MinPlayers:        2,
		AnswerTimeout:     20 * time.Second,
		FallbackAnswers:   []string{"hmm, hard to say"},
		FallbackQuestions: []string{"What did you have for breakfast?"},
		MaxNameLength:     32,
		MaxTextLength:     280,
		MailboxSize:       256,
	}
}

// OptionsFromConfig 从游戏配置生成规则，缺省项取默认值
func OptionsFromConfig(cfg config.GameConfig) Options {
	opts := DefaultOptions()
	for name, st := range cfg.Stages {
		stage := Stage(name)
		if !stage.Valid() {
			continue
		}
		opts.Stages[stage] = StageSpec{Duration: st.Duration, Skippable: st.Skippable}
	}
	if cfg.MinPlayers > 0 {
		opts.MinPlayers = cfg.MinPlayers
	}
	if cfg.AnswerTimeout > 0 {
		opts.AnswerTimeout = cfg.AnswerTimeout
	}
	if len(cfg.FallbackAnswers) > 0 {
		opts.FallbackAnswers = append([]string(nil), cfg.FallbackAnswers...)
	}
	if len(cfg.FallbackQuestions) > 0 {
		opts.FallbackQuestions = append([]string(nil), cfg.FallbackQuestions...)
	}
	if cfg.MaxNameLength > 0 {
		opts.MaxNameLength = cfg.MaxNameLength
	}
	if cfg.MaxTextLength > 0 {
		opts.MaxTextLength = cfg.MaxTextLength
	}
	if cfg.MailboxSize > 0 {
		opts.MailboxSize = cfg.MailboxSize
	}
	return opts
}

func (o Options) clone() Options {
	o.Stages = o.Stages.Clone()
	o.FallbackAnswers = append([]string(nil), o.FallbackAnswers...)
	o.FallbackQuestions = append([]string(nil), o.FallbackQuestions...)
	return o
}
