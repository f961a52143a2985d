package game

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/logger"
)

// requirePlayer 事件发起者必须是在线玩家
func (s *GameSession) requirePlayer(peer Peer) (*Player, error) {
	p, ok := s.players.Get(peer.PlayerID)
	if !ok || p.IsAI || !p.Connected {
		return nil, apperrors.New(apperrors.ErrPlayerNotFound, peer.PlayerID)
	}
	return p, nil
}

func (s *GameSession) requireStage(stage Stage) error {
	if s.stage != stage {
		return apperrors.Newf(apperrors.ErrWrongStage, "当前阶段: %s", s.stage)
	}
	return nil
}

// cleanText 去掉首尾空白并检查长度
func cleanText(text string, max int) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperrors.New(apperrors.ErrEmptyText)
	}
	if max > 0 && utf8.RuneCountInString(text) > max {
		return "", apperrors.Newf(apperrors.ErrTextTooLong, "最多 %d 个字符", max)
	}
	return text, nil
}

func contains(pool []*Player, id string) bool {
	for _, p := range pool {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *GameSession) handleJoin(_ context.Context, a Join) error {
	if a.PlayerID == "" {
		return apperrors.New(apperrors.ErrInvalidParam, "player_id")
	}
	if p, ok := s.players.Get(a.PlayerID); ok && p.IsAI {
		return apperrors.New(apperrors.ErrPermissionDenied, a.PlayerID)
	}

	p, isNew := s.players.Join(a.PlayerID, a.Transport)
	logger.LogGameEvent(s.logger, "player_joined", s.id,
		zap.String("player_id", p.ID),
		zap.Bool("new", isNew))

	view := ViewPlayerUpdated
	if isNew {
		view = ViewPlayerAdded
	}
	snap := s.publish()
	others := make([]Peer, 0, len(snap.Peers()))
	for _, peer := range snap.Peers() {
		if peer.PlayerID != p.ID {
			others = append(others, peer)
		}
	}
	s.out.RenderAndSend(view, snap, others)
	s.sendTo(ViewGame, a.Peer)
	return nil
}

func (s *GameSession) handleLeave(_ context.Context, a Leave) error {
	p, ok := s.players.Leave(a.PlayerID, a.Transport)
	if !ok {
		return nil
	}
	logger.LogGameEvent(s.logger, "player_left", s.id, zap.String("player_id", p.ID))
	s.broadcast(ViewPlayerLeft)

	// 离开的玩家可能是最后一个还没作答或投票的人
	if len(s.players.ConnectedHumans()) == 0 {
		return nil
	}
	switch s.stage {
	case StageAnswer:
		if s.allAnswered() {
			s.finishAnswers("player_left")
		}
	case StageShowAnswers:
		if s.voting.AllVoted() {
			s.enterStage(StageEliminate, "player_left")
		}
	}
	return nil
}

func (s *GameSession) handleChangeName(_ context.Context, a ChangeName) error {
	p, err := s.requirePlayer(a.Peer)
	if err != nil {
		return err
	}
	name, err := cleanText(a.Name, s.opts.MaxNameLength)
	if err != nil {
		return err
	}
	if name == AIPlayerName {
		return apperrors.Newf(apperrors.ErrInvalidParam, "名称不可用: %s", name)
	}
	p.Name = name
	s.broadcast(ViewPlayerUpdated)
	return nil
}

func (s *GameSession) handleStartGame(_ context.Context, a StartGame) error {
	if _, err := s.requirePlayer(a.Peer); err != nil {
		return err
	}
	if err := s.requireStage(StageLobby); err != nil {
		return err
	}
	if n := len(s.players.ConnectedHumans()); n < s.opts.MinPlayers {
		return apperrors.Newf(apperrors.ErrNotEnoughPlayers, "至少需要 %d 名玩家，当前 %d 名", s.opts.MinPlayers, n)
	}
	s.enterStage(StageIntro, "start_game")
	return nil
}

func (s *GameSession) handleSkipStage(_ context.Context, a SkipStage) error {
	if _, err := s.requirePlayer(a.Peer); err != nil {
		return err
	}
	if !s.opts.Stages.Spec(s.stage).Skippable {
		return apperrors.Newf(apperrors.ErrStageNotSkippable, "当前阶段: %s", s.stage)
	}
	next, ok := Next(s.stage, s.winner != TeamNone)
	if !ok {
		return apperrors.Newf(apperrors.ErrStageNotSkippable, "当前阶段: %s", s.stage)
	}
	s.enterStage(next, "skip_stage")
	return nil
}

func (s *GameSession) handleAskQuestion(_ context.Context, a AskQuestion) error {
	if _, err := s.requirePlayer(a.Peer); err != nil {
		return err
	}
	if err := s.requireStage(StageQuestion); err != nil {
		return err
	}
	if s.questionerID != "" && s.questionerID != a.PlayerID {
		return apperrors.New(apperrors.ErrNotQuestioner)
	}
	question, err := cleanText(a.Question, s.opts.MaxTextLength)
	if err != nil {
		return err
	}
	s.question = question
	s.enterStage(StageAnswer, "ask_question")
	return nil
}

func (s *GameSession) handleAnswerQuestion(_ context.Context, a AnswerQuestion) error {
	p, err := s.requirePlayer(a.Peer)
	if err != nil {
		return err
	}
	if err := s.requireStage(StageAnswer); err != nil {
		return err
	}
	if !contains(s.players.AnsweringHumans(s.questionerID), p.ID) {
		return apperrors.New(apperrors.ErrNotAllowedToAnswer)
	}
	answer, err := cleanText(a.Answer, s.opts.MaxTextLength)
	if err != nil {
		return err
	}
	p.Answer = answer
	s.sendTo(ViewAnswerSubmitted, a.Peer)

	if s.allAnswered() {
		s.finishAnswers("answer_question")
		return nil
	}
	s.broadcast(ViewAnswerProgress)
	return nil
}

func (s *GameSession) allAnswered() bool {
	for _, p := range s.players.AnsweringHumans(s.questionerID) {
		if p.Answer == "" {
			return false
		}
	}
	return true
}

// finishAnswers 最后一个答案到达：先通知等待AI，再进入展示阶段
func (s *GameSession) finishAnswers(reason string) {
	s.scheduler.CancelPending()
	s.broadcast(ViewWaitingOnAI)
	s.enterStage(StageShowAnswers, reason)
}

func (s *GameSession) handleCastVote(_ context.Context, a CastVote) error {
	voter, err := s.requirePlayer(a.Peer)
	if err != nil {
		return err
	}
	if err := s.requireStage(StageShowAnswers); err != nil {
		return err
	}
	if !contains(s.players.VotingPool(), voter.ID) {
		return apperrors.New(apperrors.ErrNotAllowedToVote)
	}
	target, ok := s.players.FindBallot(a.Ballot)
	if !ok || target.ID == voter.ID || target.Eliminated {
		return apperrors.New(apperrors.ErrInvalidVoteTarget, a.Ballot)
	}

	s.voting.CastVote(voter, target)

	if s.voting.AllVoted() {
		s.enterStage(StageEliminate, "all_voted")
		return nil
	}
	s.broadcast(ViewVoteProgress)
	return nil
}

func (s *GameSession) handlePlayAgain(_ context.Context, a PlayAgain) error {
	if _, err := s.requirePlayer(a.Peer); err != nil {
		return err
	}
	if err := s.requireStage(StageEnding); err != nil {
		return err
	}
	s.scheduler.CancelPending()
	s.reset()
	s.enterStage(StageLobby, "play_again")
	return nil
}
