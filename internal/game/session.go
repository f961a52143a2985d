package game

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/logger"
)

type envelope struct {
	action Action
	reply  chan error
}

// SessionDeps 会话依赖
type SessionDeps struct {
	Answers AnswerService
	Out     Broadcaster
	Logger  *zap.Logger
	Rand    *rand.Rand
}

// GameSession 一局游戏
//
// 所有状态修改都在会话自己的事件循环协程里串行执行；其他协程只能通过 Snapshot 读取状态。
type GameSession struct {
	id    string
	model string
	opts  Options

	answers AnswerService
	out     Broadcaster
	logger  *zap.Logger
	rng     *rand.Rand

	players   *PlayerRegistry
	voting    *VotingEngine
	scheduler *StageScheduler

	// 以下字段只在事件循环中读写
	stage        Stage
	clock        StageClock
	questionerID string
	question     string
	eliminatedID string
	winner       Team
	version      uint64

	mailbox chan envelope
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	stopped atomic.Bool

	snapMu       sync.RWMutex
	snap         *Snapshot
	createdAt    time.Time
	lastActivity atomic.Int64
}

// NewGameSession 创建会话并启动事件循环
func NewGameSession(parent context.Context, id, model string, opts Options, deps SessionDeps) *GameSession {
	opts = opts.clone()
	if len(opts.Stages) == 0 {
		opts.Stages = DefaultStageTable()
	}
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultOptions().MailboxSize
	}
	if opts.AnswerTimeout <= 0 {
		opts.AnswerTimeout = DefaultOptions().AnswerTimeout
	}
	if deps.Out == nil {
		deps.Out = NopBroadcaster{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}

	ctx, cancel := context.WithCancel(parent)
	players := NewPlayerRegistry(uuid.NewString(), deps.Rand)
	now := time.Now()

	s := &GameSession{
		id:        id,
		model:     model,
		opts:      opts,
		answers:   deps.Answers,
		out:       deps.Out,
		logger:    deps.Logger.With(zap.String("session_id", id)),
		rng:       deps.Rand,
		players:   players,
		voting:    NewVotingEngine(players),
		scheduler: NewStageScheduler(),
		stage:     StageLobby,
		clock:     StageClock{EnteredAt: now, EndsAt: now},
		mailbox:   make(chan envelope, opts.MailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		createdAt: now,
	}
	s.lastActivity.Store(now.UnixNano())
	s.publish()

	go s.run()
	return s
}

// ID 会话ID
func (s *GameSession) ID() string { return s.id }

// Model 会话使用的模型
func (s *GameSession) Model() string { return s.model }

// CreatedAt 创建时间
func (s *GameSession) CreatedAt() time.Time { return s.createdAt }

// Done 事件循环退出后关闭
func (s *GameSession) Done() <-chan struct{} { return s.done }

// Snapshot 最近一次发布的只读状态
func (s *GameSession) Snapshot() *Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// LastActivity 最近一次处理事件的时间
func (s *GameSession) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// Submit 投递事件，不等待处理结果
func (s *GameSession) Submit(a Action) error {
	return s.enqueue(context.Background(), envelope{action: a}, false)
}

// Do 投递事件并等待处理完成，返回校验或内部错误
func (s *GameSession) Do(ctx context.Context, a Action) error {
	env := envelope{action: a, reply: make(chan error, 1)}
	if err := s.enqueue(ctx, env, true); err != nil {
		return err
	}
	select {
	case err := <-env.reply:
		return err
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled)
	case <-s.done:
		return apperrors.New(apperrors.ErrSessionClosed, s.id)
	}
}

func (s *GameSession) enqueue(ctx context.Context, env envelope, wait bool) error {
	if s.stopped.Load() {
		return apperrors.New(apperrors.ErrSessionClosed, s.id)
	}
	if !wait {
		select {
		case s.mailbox <- env:
			return nil
		case <-s.done:
			return apperrors.New(apperrors.ErrSessionClosed, s.id)
		default:
			return apperrors.New(apperrors.ErrSessionBusy, s.id)
		}
	}
	select {
	case s.mailbox <- env:
		return nil
	case <-ctx.Done():
		return apperrors.Wrap(ctx.Err(), apperrors.ErrCanceled)
	case <-s.done:
		return apperrors.New(apperrors.ErrSessionClosed, s.id)
	}
}

// Stop 停止事件循环并取消排期，等待退出
func (s *GameSession) Stop() {
	s.stopped.Store(true)
	s.cancel()
	<-s.done
}

func (s *GameSession) run() {
	defer close(s.done)
	defer s.scheduler.CancelPending()

	s.logger.Info("游戏会话启动", zap.String("model", s.model))
	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("游戏会话停止")
			return
		case env := <-s.mailbox:
			s.dispatch(env)
		case token := <-s.scheduler.Fired():
			s.onTimer(token)
		}
	}
}

func (s *GameSession) dispatch(env envelope) {
	s.touch()
	err := s.safely(func() error {
		return env.action.apply(s.ctx, s)
	})
	if err != nil {
		src := env.action.Source()
		if apperrors.IsValidation(err) {
			s.logger.Debug("事件校验失败",
				zap.String("player_id", src.PlayerID),
				zap.String("action", fmt.Sprintf("%T", env.action)),
				zap.Error(err))
		} else {
			s.logger.Error("事件处理失败",
				zap.String("player_id", src.PlayerID),
				zap.String("action", fmt.Sprintf("%T", env.action)),
				zap.Error(err))
		}
		s.out.SendError(src, err)
	}
	s.publish()
	if env.reply != nil {
		env.reply <- err
	}
}

func (s *GameSession) onTimer(token uint64) {
	target, ok := s.scheduler.Claim(token)
	if !ok {
		return
	}
	s.touch()
	_ = s.safely(func() error {
		s.enterStage(target, "timer")
		return nil
	})
	s.publish()
}

// safely 捕获处理过程中的panic，尽力推送当前状态，保证事件循环继续运行
func (s *GameSession) safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(s.logger, r, debug.Stack(), zap.String("stage", s.stage.String()))
			err = apperrors.Newf(apperrors.ErrInternal, "%v", r)
			s.broadcastBestEffort()
		}
	}()
	return fn()
}

func (s *GameSession) broadcastBestEffort() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("状态推送失败", zap.Any("panic", r))
		}
	}()
	s.broadcast(ViewGame)
}

func (s *GameSession) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

// enterStage 进入阶段：取消排期、记录计时窗口、执行进入钩子、推送状态、排期下一阶段
func (s *GameSession) enterStage(to Stage, reason string) {
	s.scheduler.CancelPending()

	from := s.stage
	spec := s.opts.Stages.Spec(to)
	now := time.Now()
	s.stage = to
	s.clock = StageClock{EnteredAt: now, EndsAt: now.Add(spec.Duration)}
	logger.LogStageTransition(s.logger, s.id, from.String(), to.String(), reason)

	if err := s.runHook(to); err != nil {
		s.logger.Error("阶段进入处理失败", zap.String("stage", to.String()), zap.Error(err))
	}

	s.broadcast(ViewGame)

	if spec.Duration <= 0 {
		return
	}
	if next, ok := Next(to, s.winner != TeamNone); ok {
		s.scheduler.Schedule(s.clock.Remaining(time.Now()), next)
	}
}

// runHook 执行阶段进入钩子，错误和panic都转换为InternalError返回
func (s *GameSession) runHook(stage Stage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(s.logger, r, debug.Stack(), zap.String("stage", stage.String()))
			err = apperrors.Newf(apperrors.ErrHookFailed, "%s: %v", stage, r)
		}
	}()

	switch stage {
	case StageQuestion:
		s.beforeQuestion()
	case StageAnswer:
		s.beforeAnswer()
	case StageShowAnswers:
		s.beforeShowAnswers()
	case StageEliminate:
		s.beforeEliminate()
	}
	return nil
}

func (s *GameSession) beforeQuestion() {
	s.question = ""
	s.questionerID = ""
	if q := s.players.SelectQuestioner(); q != nil {
		s.questionerID = q.ID
	}
}

func (s *GameSession) beforeAnswer() {
	s.players.ResetRound()
	if s.question == "" && len(s.opts.FallbackQuestions) > 0 {
		s.question = s.opts.FallbackQuestions[s.rng.IntN(len(s.opts.FallbackQuestions))]
		s.logger.Info("提问超时，使用备用问题", zap.String("question", s.question))
	}
}

// beforeShowAnswers 在推送本阶段之前拿到AI的答案，失败时使用备用答案
func (s *GameSession) beforeShowAnswers() {
	humans := s.players.AnsweringHumans(s.questionerID)
	answers := make([]string, 0, len(humans))
	for _, p := range humans {
		if p.Answer != "" {
			answers = append(answers, p.Answer)
		}
	}

	ai := s.players.AI()
	ai.Answer = s.generateAnswer(answers)

	for _, p := range s.players.AnsweringPool(s.questionerID) {
		p.Ballot = newBallot()
	}
}

func (s *GameSession) generateAnswer(humanAnswers []string) (answer string) {
	if s.answers == nil {
		return s.fallbackAnswer()
	}
	// 空白的AI答案会暴露身份，服务panic时同样换成备用答案
	defer func() {
		if r := recover(); r != nil {
			logger.LogPanic(s.logger, r, debug.Stack(), zap.String("model", s.model))
			answer = s.fallbackAnswer()
		}
	}()

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.AnswerTimeout)
	defer cancel()

	start := time.Now()
	answer, err := s.answers.Generate(ctx, s.model, s.question, humanAnswers)
	if err == nil && answer == "" {
		err = apperrors.New(apperrors.ErrAnswerEmpty, s.model)
	}
	if err != nil && ctx.Err() == context.DeadlineExceeded && !apperrors.Is(err, apperrors.ErrAnswerTimeout) {
		err = apperrors.Wrap(err, apperrors.ErrAnswerTimeout, s.model)
	}
	logger.LogAnswerCall(s.logger, s.model, time.Since(start), err)
	if err != nil {
		return s.fallbackAnswer()
	}
	return answer
}

func (s *GameSession) fallbackAnswer() string {
	if len(s.opts.FallbackAnswers) == 0 {
		return "..."
	}
	return s.opts.FallbackAnswers[s.rng.IntN(len(s.opts.FallbackAnswers))]
}

func (s *GameSession) beforeEliminate() {
	if s.winner != TeamNone {
		return
	}
	out := s.voting.Eliminate(s.players.AnsweringPool(s.questionerID))
	s.eliminatedID = ""
	if out.Eliminated != nil {
		s.eliminatedID = out.Eliminated.ID
	}
	s.winner = out.Winner
	logger.LogGameEvent(s.logger, "eliminate", s.id,
		zap.String("eliminated", s.eliminatedID),
		zap.String("winner", string(s.winner)))
}

// reset 重开：清空局内数据，名册保留
func (s *GameSession) reset() {
	s.questionerID = ""
	s.question = ""
	s.eliminatedID = ""
	s.winner = TeamNone
	s.players.ResetGame()
}

func newBallot() string {
	return uuid.NewString()[:8]
}

// broadcast 推送给全部在线真人
func (s *GameSession) broadcast(view View) {
	snap := s.publish()
	s.out.RenderAndSend(view, snap, snap.Peers())
}

// sendTo 只推送给指定玩家
func (s *GameSession) sendTo(view View, peer Peer) {
	snap := s.publish()
	s.out.RenderAndSend(view, snap, []Peer{peer})
}

// publish 生成并发布当前快照
func (s *GameSession) publish() *Snapshot {
	s.version++
	snap := &Snapshot{
		ID:           s.id,
		Model:        s.model,
		Stage:        s.stage,
		Spec:         s.opts.Stages.Spec(s.stage),
		Clock:        s.clock,
		QuestionerID: s.questionerID,
		Question:     s.question,
		EliminatedID: s.eliminatedID,
		Winner:       s.winner,
		MinPlayers:   s.opts.MinPlayers,
		Version:      s.version,
		TakenAt:      time.Now(),
		LastActivity: s.LastActivity(),
	}

	answering := map[string]bool{}
	if s.stage == StageAnswer {
		for _, p := range s.players.AnsweringHumans(s.questionerID) {
			answering[p.ID] = true
		}
	}
	voting := map[string]bool{}
	if s.stage == StageShowAnswers {
		for _, p := range s.players.VotingPool() {
			voting[p.ID] = true
		}
	}

	snap.Players = make([]PlayerState, 0, s.players.Len())
	for _, p := range s.players.All() {
		snap.Players = append(snap.Players, PlayerState{
			ID:            p.ID,
			Name:          p.Name,
			Transport:     p.Transport,
			Connected:     p.Connected,
			IsAI:          p.IsAI,
			AskedQuestion: p.AskedQuestion,
			Answer:        p.Answer,
			Voted:         p.Voted,
			VoteTarget:    p.VoteTarget,
			Votes:         p.Votes,
			Eliminated:    p.Eliminated,
			Ballot:        p.Ballot,
			CanAnswer:     answering[p.ID],
			CanVote:       voting[p.ID],
		})
	}

	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
	return snap
}
