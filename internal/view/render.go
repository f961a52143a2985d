package view

import (
	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/game"
)

// Render 为某个接收者渲染视图
func Render(v game.View, snap *game.Snapshot, recipientID string) Envelope {
	switch v {
	case game.ViewPlayerAdded:
		return newEnvelope(TypePlayers, PlayersView{Change: ChangeAdded, Players: roster(snap, recipientID)})
	case game.ViewPlayerUpdated:
		return newEnvelope(TypePlayers, PlayersView{Change: ChangeUpdated, Players: roster(snap, recipientID)})
	case game.ViewPlayerLeft:
		return newEnvelope(TypePlayers, PlayersView{Change: ChangeLeft, Players: roster(snap, recipientID)})
	case game.ViewAnswerSubmitted:
		me, _ := snap.Player(recipientID)
		return newEnvelope(TypeAnswerSubmitted, AnswerSubmittedView{Answer: me.Answer})
	case game.ViewAnswerProgress:
		done, total := snap.AnswerProgress()
		return newEnvelope(TypeAnswerProgress, ProgressView{Done: done, Total: total})
	case game.ViewWaitingOnAI:
		return newEnvelope(TypeWaitingOnAI, NoticeView{Message: MsgWaitingOnAI})
	case game.ViewVoteProgress:
		done, total := snap.VoteProgress()
		return newEnvelope(TypeVoteProgress, ProgressView{Done: done, Total: total})
	default:
		return newEnvelope(TypeGame, Game(snap, recipientID))
	}
}

// Error 渲染发给事件发起者的错误
func Error(err error) Envelope {
	code := apperrors.GetCode(err)
	msg := MsgSomethingWrong
	switch {
	case code == apperrors.ErrUnknownAction || code == apperrors.ErrMessageFormat:
		msg = MsgUnknownEvent
	case apperrors.IsValidation(err) || code == apperrors.ErrRateLimitExceeded:
		if appErr, ok := apperrors.As(err); ok {
			msg = appErr.Message
			if appErr.Details != "" {
				msg += ": " + appErr.Details
			}
		}
	}
	return newEnvelope(TypeError, ErrorView{Code: int(code), Message: msg})
}

// Pong 心跳回应
func Pong() Envelope {
	return newEnvelope(TypePong, nil)
}

// revealed AI身份是否公开
func revealed(snap *game.Snapshot) bool {
	if snap.Stage == game.StageEnding {
		return true
	}
	return snap.EliminatedID != "" && snap.EliminatedID == snap.AI().ID
}

func playerView(p game.PlayerState, snap *game.Snapshot, recipientID string) PlayerView {
	return PlayerView{
		ID:           p.ID,
		Name:         p.Name,
		Connected:    p.Connected,
		Eliminated:   p.Eliminated,
		IsQuestioner: p.ID == snap.QuestionerID,
		Answered:     p.CanAnswer && p.Answer != "",
		Voted:        p.Voted,
		IsYou:        p.ID == recipientID,
		IsAI:         p.IsAI,
	}
}

// roster 真人名单，不含AI
func roster(snap *game.Snapshot, recipientID string) []PlayerView {
	humans := snap.Humans()
	out := make([]PlayerView, 0, len(humans))
	for _, p := range humans {
		out = append(out, playerView(p, snap, recipientID))
	}
	return out
}

// Game 渲染完整游戏状态
func Game(snap *game.Snapshot, recipientID string) GameView {
	gv := GameView{
		ID:         snap.ID,
		Model:      snap.Model,
		Stage:      snap.Stage.String(),
		Skippable:  snap.Spec.Skippable,
		MinPlayers: snap.MinPlayers,
		Question:   snap.Question,
		Players:    roster(snap, recipientID),
		Winner:     string(snap.Winner),
		Version:    snap.Version,
	}
	if snap.Clock.Timed() {
		gv.TimerStart = snap.Clock.EnteredAt.UnixMilli()
		gv.TimerEnd = snap.Clock.EndsAt.UnixMilli()
	}

	if q, ok := snap.Player(snap.QuestionerID); ok {
		pv := playerView(q, snap, recipientID)
		gv.Questioner = &pv
	}

	reveal := revealed(snap)
	ai := snap.AI()
	if reveal && ai.ID != "" {
		pv := playerView(ai, snap, recipientID)
		gv.AI = &pv
	}

	if e, ok := snap.Player(snap.EliminatedID); ok {
		pv := playerView(e, snap, recipientID)
		gv.Eliminated = &pv
	}

	gv.Answers = answerCards(snap, recipientID, reveal)
	gv.You = you(snap, recipientID)
	return gv
}

// answerCards 展示答案阶段起才有答案卡片
func answerCards(snap *game.Snapshot, recipientID string, reveal bool) []AnswerCard {
	switch snap.Stage {
	case game.StageShowAnswers, game.StageEliminate, game.StageEnding:
	default:
		return nil
	}
	me, _ := snap.Player(recipientID)
	counted := snap.Stage != game.StageShowAnswers

	var cards []AnswerCard
	for _, p := range snap.AnswerCards() {
		card := AnswerCard{
			Ballot:   p.Ballot,
			Answer:   p.Answer,
			Mine:     p.ID == recipientID,
			VotedFor: me.VoteTarget != "" && me.VoteTarget == p.ID,
		}
		if counted {
			votes := p.Votes
			card.Votes = &votes
		}
		if p.ID == snap.EliminatedID || (reveal && p.IsAI) {
			card.AuthorID = p.ID
			card.AuthorName = p.Name
			card.IsAI = p.IsAI
		}
		cards = append(cards, card)
	}
	return cards
}

func you(snap *game.Snapshot, recipientID string) *You {
	me, ok := snap.Player(recipientID)
	if !ok || me.IsAI {
		return nil
	}
	_, hasNext := game.Next(snap.Stage, snap.Winner != game.TeamNone)
	return &You{
		ID:           me.ID,
		Name:         me.Name,
		IsQuestioner: me.ID == snap.QuestionerID,
		Eliminated:   me.Eliminated,
		Answer:       me.Answer,
		Voted:        me.Voted,
		CanStart:     snap.Stage == game.StageLobby && len(snap.ConnectedHumans()) >= snap.MinPlayers,
		CanSkip:      snap.Spec.Skippable && hasNext,
		CanAsk:       snap.Stage == game.StageQuestion && (snap.QuestionerID == "" || snap.QuestionerID == me.ID),
		CanAnswer:    me.CanAnswer && snap.Stage == game.StageAnswer,
		CanVote:      me.CanVote && snap.Stage == game.StageShowAnswers,
		CanPlayAgain: snap.Stage == game.StageEnding,
	}
}
