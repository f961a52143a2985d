package game

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

type sent struct {
	view    View
	snap    *Snapshot
	targets []Peer
}

// recorder 记录所有推送
type recorder struct {
	mu     sync.Mutex
	sent   []sent
	errors map[string][]error
}

func newRecorder() *recorder {
	return &recorder{errors: map[string][]error{}}
}

func (r *recorder) RenderAndSend(view View, snap *Snapshot, targets []Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{view: view, snap: snap, targets: targets})
}

func (r *recorder) SendError(to Peer, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[to.PlayerID] = append(r.errors[to.PlayerID], err)
}

func (r *recorder) views(v View) []sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []sent
	for _, s := range r.sent {
		if s.view == v {
			out = append(out, s)
		}
	}
	return out
}

func (r *recorder) errorsFor(id string) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errors[id]...)
}

// fakeAnswers 可控的答案服务
type fakeAnswers struct {
	answer string
	err    error
	delay  time.Duration
	panics bool
	calls  atomic.Int32

	mu       sync.Mutex
	question string
	humans   []string
}

func (f *fakeAnswers) Generate(ctx context.Context, model, question string, humans []string) (string, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.question, f.humans = question, humans
	f.mu.Unlock()
	if f.panics {
		panic("answer service exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.Stages = StageTable{
		StageLobby:       {},
		StageIntro:       {Duration: 20 * time.Millisecond, Skippable: true},
		StageQuestion:    {Duration: 5 * time.Second},
		StageAnswer:      {Duration: 5 * time.Second},
		StageShowAnswers: {Duration: 5 * time.Second},
		StageEliminate:   {Duration: 20 * time.Millisecond, Skippable: true},
		StageEnding:      {},
	}
	opts.AnswerTimeout = 200 * time.Millisecond
	opts.FallbackAnswers = []string{"filler"}
	opts.FallbackQuestions = []string{"fallback question?"}
	return opts
}

func newTestSession(t *testing.T, opts Options, answers AnswerService) (*GameSession, *recorder) {
	t.Helper()
	rec := newRecorder()
	s := NewGameSession(context.Background(), "test1", "dev", opts, SessionDeps{
		Answers: answers,
		Out:     rec,
		Logger:  zap.NewNop(),
	})
	t.Cleanup(s.Stop)
	return s, rec
}

func peer(id string) Peer {
	return Peer{PlayerID: id, Transport: "conn-" + id}
}

func join(t *testing.T, s *GameSession, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.Do(context.Background(), Join{peer(id)}))
	}
}

func waitStage(t *testing.T, s *GameSession, stage Stage) *Snapshot {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.Snapshot().Stage == stage
	}, 2*time.Second, 5*time.Millisecond, "等待阶段 %s，当前 %s", stage, s.Snapshot().Stage)
	return s.Snapshot()
}

// playToVoting 开局、出题、全部作答，返回进入展示阶段后的快照
func playToVoting(t *testing.T, s *GameSession) *Snapshot {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Do(ctx, StartGame{peer("p1")}))
	snap := waitStage(t, s, StageQuestion)
	require.NotEmpty(t, snap.QuestionerID)

	require.NoError(t, s.Do(ctx, AskQuestion{Peer: peer(snap.QuestionerID), Question: "  favourite food?  "}))
	snap = s.Snapshot()
	require.Equal(t, StageAnswer, snap.Stage)
	assert.Equal(t, "favourite food?", snap.Question)

	for _, p := range snap.ConnectedHumans() {
		if p.ID == snap.QuestionerID {
			continue
		}
		require.NoError(t, s.Do(ctx, AnswerQuestion{Peer: peer(p.ID), Answer: "answer from " + p.ID}))
	}
	return waitStage(t, s, StageShowAnswers)
}

func aiBallot(snap *Snapshot) string {
	return snap.AI().Ballot
}

func TestSessionEndToEndHumansWin(t *testing.T) {
	answers := &fakeAnswers{answer: "pizza obviously"}
	s, rec := newTestSession(t, testOptions(), answers)
	join(t, s, "p1", "p2", "p3", "p4")

	snap := playToVoting(t, s)
	cards := snap.AnswerCards()
	require.Len(t, cards, 4, "3个真人答案加1个AI答案")
	assert.Equal(t, "pizza obviously", snap.AI().Answer)
	assert.EqualValues(t, 1, answers.calls.Load())
	assert.Len(t, answers.humans, 3)
	assert.NotEmpty(t, rec.views(ViewWaitingOnAI))

	ctx := context.Background()
	for _, p := range snap.ConnectedHumans() {
		require.NoError(t, s.Do(ctx, CastVote{Peer: peer(p.ID), Ballot: aiBallot(snap)}))
	}

	snap = waitStage(t, s, StageEnding)
	assert.Equal(t, TeamHuman, snap.Winner)
	assert.Equal(t, snap.AI().ID, snap.EliminatedID)

	// ENDING 不会自动离开
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StageEnding, s.Snapshot().Stage)

	require.NoError(t, s.Do(ctx, PlayAgain{peer("p2")}))
	snap = s.Snapshot()
	assert.Equal(t, StageLobby, snap.Stage)
	assert.Equal(t, TeamNone, snap.Winner)
	assert.Empty(t, snap.EliminatedID)
	for _, p := range snap.Players {
		assert.False(t, p.Eliminated)
		assert.False(t, p.AskedQuestion)
	}
	assert.Len(t, snap.ConnectedHumans(), 4)
}

func TestSessionEliminateHumanLoopsToQuestion(t *testing.T) {
	opts := testOptions()
	opts.Stages[StageEliminate] = StageSpec{Duration: 150 * time.Millisecond, Skippable: true}
	s, _ := newTestSession(t, opts, &fakeAnswers{answer: "meh"})
	join(t, s, "p1", "p2", "p3")

	snap := playToVoting(t, s)
	var target PlayerState
	for _, c := range snap.AnswerCards() {
		if !c.IsAI {
			target = c
			break
		}
	}
	require.NotEmpty(t, target.ID)

	ctx := context.Background()
	for _, p := range snap.ConnectedHumans() {
		if p.ID == target.ID {
			require.NoError(t, s.Do(ctx, CastVote{Peer: peer(p.ID), Ballot: aiBallot(snap)}))
			continue
		}
		require.NoError(t, s.Do(ctx, CastVote{Peer: peer(p.ID), Ballot: target.Ballot}))
	}

	snap = s.Snapshot()
	require.Equal(t, StageEliminate, snap.Stage)
	assert.Equal(t, target.ID, snap.EliminatedID)
	assert.Equal(t, TeamNone, snap.Winner)

	snap = waitStage(t, s, StageQuestion)
	assert.NotEqual(t, target.ID, snap.QuestionerID)
	eliminated, _ := snap.Player(target.ID)
	assert.True(t, eliminated.Eliminated)
}

func TestSessionValidationErrors(t *testing.T) {
	s, rec := newTestSession(t, testOptions(), &fakeAnswers{answer: "x"})
	ctx := context.Background()
	join(t, s, "p1")

	err := s.Do(ctx, StartGame{peer("p1")})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotEnoughPlayers))

	err = s.Do(ctx, AskQuestion{Peer: peer("p1"), Question: "q"})
	assert.True(t, apperrors.Is(err, apperrors.ErrWrongStage))

	err = s.Do(ctx, SkipStage{peer("p1")})
	assert.True(t, apperrors.Is(err, apperrors.ErrStageNotSkippable))

	err = s.Do(ctx, PlayAgain{peer("p1")})
	assert.True(t, apperrors.Is(err, apperrors.ErrWrongStage))

	err = s.Do(ctx, StartGame{peer("ghost")})
	assert.True(t, apperrors.Is(err, apperrors.ErrPlayerNotFound))

	err = s.Do(ctx, ChangeName{Peer: peer("p1"), Name: "   "})
	assert.True(t, apperrors.Is(err, apperrors.ErrEmptyText))

	assert.Len(t, rec.errorsFor("p1"), 5, "错误只发给发起者")
	assert.Len(t, rec.errorsFor("ghost"), 1)
	assert.Equal(t, StageLobby, s.Snapshot().Stage)
}

func TestSessionRoleChecks(t *testing.T) {
	opts := testOptions()
	opts.Stages[StageIntro] = StageSpec{Duration: 5 * time.Second, Skippable: true}
	s, _ := newTestSession(t, opts, &fakeAnswers{answer: "x"})
	ctx := context.Background()
	join(t, s, "p1", "p2", "p3")

	require.NoError(t, s.Do(ctx, StartGame{peer("p1")}))
	// INTRO 可以跳过
	require.NoError(t, s.Do(ctx, SkipStage{peer("p2")}))
	snap := s.Snapshot()
	require.Equal(t, StageQuestion, snap.Stage)

	var other string
	for _, p := range snap.ConnectedHumans() {
		if p.ID != snap.QuestionerID {
			other = p.ID
			break
		}
	}
	err := s.Do(ctx, AskQuestion{Peer: peer(other), Question: "hi?"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotQuestioner))

	require.NoError(t, s.Do(ctx, AskQuestion{Peer: peer(snap.QuestionerID), Question: "hi?"}))

	err = s.Do(ctx, AnswerQuestion{Peer: peer(snap.QuestionerID), Answer: "me"})
	assert.True(t, apperrors.Is(err, apperrors.ErrNotAllowedToAnswer))

	// 覆盖答案
	require.NoError(t, s.Do(ctx, AnswerQuestion{Peer: peer(other), Answer: "first"}))
	require.NoError(t, s.Do(ctx, AnswerQuestion{Peer: peer(other), Answer: "second"}))
	p, _ := s.Snapshot().Player(other)
	assert.Equal(t, "second", p.Answer)
	assert.Equal(t, StageAnswer, s.Snapshot().Stage)

	err = s.Do(ctx, CastVote{Peer: peer(other), Ballot: "nope"})
	assert.True(t, apperrors.Is(err, apperrors.ErrWrongStage))
}

func TestSessionVoteTargets(t *testing.T) {
	s, rec := newTestSession(t, testOptions(), &fakeAnswers{answer: "x"})
	join(t, s, "p1", "p2", "p3")
	snap := playToVoting(t, s)
	ctx := context.Background()

	var answerer PlayerState
	for _, c := range snap.AnswerCards() {
		if !c.IsAI {
			answerer = c
		}
	}
	err := s.Do(ctx, CastVote{Peer: peer(answerer.ID), Ballot: answerer.Ballot})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidVoteTarget), "不能投自己")

	err = s.Do(ctx, CastVote{Peer: peer(answerer.ID), Ballot: "missing"})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidVoteTarget))

	require.NoError(t, s.Do(ctx, CastVote{Peer: peer(answerer.ID), Ballot: aiBallot(snap)}))
	assert.NotEmpty(t, rec.views(ViewVoteProgress))
	voted, total := s.Snapshot().VoteProgress()
	assert.Equal(t, 1, voted)
	assert.Equal(t, 3, total)
}

func TestSessionQuestionTimeoutUsesFallback(t *testing.T) {
	opts := testOptions()
	opts.Stages[StageQuestion] = StageSpec{Duration: 30 * time.Millisecond}
	s, _ := newTestSession(t, opts, &fakeAnswers{answer: "x"})
	join(t, s, "p1", "p2")

	require.NoError(t, s.Do(context.Background(), StartGame{peer("p1")}))
	snap := waitStage(t, s, StageAnswer)
	assert.Equal(t, "fallback question?", snap.Question)
}

func TestSessionAnswerServiceFailureUsesFiller(t *testing.T) {
	tests := []struct {
		name    string
		answers *fakeAnswers
	}{
		{"service error", &fakeAnswers{err: apperrors.New(apperrors.ErrAnswerUpstream)}},
		{"timeout", &fakeAnswers{answer: "late", delay: time.Second}},
		{"empty", &fakeAnswers{answer: ""}},
		{"panic", &fakeAnswers{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestSession(t, testOptions(), tt.answers)
			join(t, s, "p1", "p2")
			snap := playToVoting(t, s)

			assert.Equal(t, StageShowAnswers, snap.Stage)
			assert.Equal(t, "filler", snap.AI().Answer)
			assert.NotEmpty(t, snap.AI().Ballot)
			assert.Len(t, snap.AnswerCards(), 2)
			if tt.answers.panics {
				require.NoError(t, s.Do(context.Background(), ChangeName{Peer: peer("p1"), Name: "still alive"}))
			}
		})
	}
}

func TestSessionZeroAnswerTimeoutUsesDefault(t *testing.T) {
	opts := testOptions()
	opts.AnswerTimeout = 0
	s, _ := newTestSession(t, opts, &fakeAnswers{answer: "real", delay: 20 * time.Millisecond})
	join(t, s, "p1", "p2")

	snap := playToVoting(t, s)
	assert.Equal(t, "real", snap.AI().Answer)
}

func TestSessionReconnectKeepsAnswer(t *testing.T) {
	s, _ := newTestSession(t, testOptions(), &fakeAnswers{answer: "x"})
	ctx := context.Background()
	join(t, s, "p1", "p2", "p3")

	require.NoError(t, s.Do(ctx, StartGame{peer("p1")}))
	snap := waitStage(t, s, StageQuestion)
	require.NoError(t, s.Do(ctx, AskQuestion{Peer: peer(snap.QuestionerID), Question: "q?"}))

	var answerer, straggler string
	for _, p := range snap.ConnectedHumans() {
		if p.ID == snap.QuestionerID {
			continue
		}
		if answerer == "" {
			answerer = p.ID
		} else {
			straggler = p.ID
		}
	}
	require.NoError(t, s.Do(ctx, AnswerQuestion{Peer: peer(answerer), Answer: "mine"}))

	require.NoError(t, s.Do(ctx, Leave{peer(answerer)}))
	require.NoError(t, s.Do(ctx, Join{Peer{PlayerID: answerer, Transport: "new-conn"}}))

	// 旧连接迟到的断开不影响新连接
	require.NoError(t, s.Do(ctx, Leave{peer(answerer)}))

	snap = s.Snapshot()
	p, _ := snap.Player(answerer)
	assert.True(t, p.Connected)
	assert.Equal(t, "mine", p.Answer)
	assert.True(t, p.CanAnswer)
	assert.Equal(t, StageAnswer, snap.Stage)

	require.NoError(t, s.Do(ctx, AnswerQuestion{Peer: peer(straggler), Answer: "theirs"}))
	waitStage(t, s, StageShowAnswers)
}

func TestSessionLeaveCompletesRound(t *testing.T) {
	s, _ := newTestSession(t, testOptions(), &fakeAnswers{answer: "x"})
	ctx := context.Background()
	join(t, s, "p1", "p2", "p3")

	require.NoError(t, s.Do(ctx, StartGame{peer("p1")}))
	snap := waitStage(t, s, StageQuestion)
	require.NoError(t, s.Do(ctx, AskQuestion{Peer: peer(snap.QuestionerID), Question: "q?"}))

	var answering []string
	for _, p := range snap.ConnectedHumans() {
		if p.ID != snap.QuestionerID {
			answering = append(answering, p.ID)
		}
	}
	require.Len(t, answering, 2)
	require.NoError(t, s.Do(ctx, AnswerQuestion{Peer: peer(answering[0]), Answer: "a"}))
	require.NoError(t, s.Do(ctx, Leave{peer(answering[1])}))

	waitStage(t, s, StageShowAnswers)
}

func TestSessionJoinBroadcasts(t *testing.T) {
	s, rec := newTestSession(t, testOptions(), nil)
	ctx := context.Background()
	join(t, s, "p1", "p2")

	added := rec.views(ViewPlayerAdded)
	require.Len(t, added, 2)
	assert.Empty(t, added[0].targets, "第一个玩家加入时没有其他人")
	assert.Equal(t, []Peer{peer("p1")}, added[1].targets)

	require.NoError(t, s.Do(ctx, Leave{peer("p2")}))
	require.NoError(t, s.Do(ctx, Join{peer("p2")}))
	assert.Len(t, rec.views(ViewPlayerUpdated), 1)
	assert.Len(t, rec.views(ViewPlayerLeft), 1)

	p, _ := s.Snapshot().Player("p2")
	assert.Equal(t, "Player 2", p.Name)
	require.NoError(t, s.Do(ctx, ChangeName{Peer: peer("p2"), Name: "Zed"}))
	p, _ = s.Snapshot().Player("p2")
	assert.Equal(t, "Zed", p.Name)
	assert.Len(t, rec.views(ViewPlayerUpdated), 2)

	err := s.Do(ctx, ChangeName{Peer: peer("p1"), Name: AIPlayerName})
	assert.True(t, apperrors.IsValidation(err) || apperrors.Is(err, apperrors.ErrInvalidParam))
}

func TestSessionStopRejectsActions(t *testing.T) {
	s := NewGameSession(context.Background(), "stop1", "dev", testOptions(), SessionDeps{})
	s.Stop()

	err := s.Submit(Join{peer("p1")})
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionClosed))
	err = s.Do(context.Background(), Join{peer("p1")})
	assert.True(t, apperrors.Is(err, apperrors.ErrSessionClosed))
}

func TestSessionDoRespectsContext(t *testing.T) {
	s, _ := newTestSession(t, testOptions(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Do(ctx, Join{peer("p1")})
	if err != nil {
		assert.True(t, errors.Is(err, context.Canceled) || apperrors.Is(err, apperrors.ErrCanceled))
	}
}
