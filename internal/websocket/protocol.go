package websocket

import (
	"encoding/json"
	"strings"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/game"
)

// Message 客户端发来的消息
type Message struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// 入站消息类型
const (
	MessageTypePing           = "ping"
	MessageTypeChangeName     = "change_name"
	MessageTypeStartGame      = "start_game"
	MessageTypeSkipStage      = "skip_stage"
	MessageTypeAskQuestion    = "ask_question"
	MessageTypeAnswerQuestion = "answer_question"
	MessageTypeVote           = "vote"
	MessageTypePlayAgain      = "play_again"
)

type changeNameData struct {
	Name string `json:"name"`
}

type askQuestionData struct {
	Question string `json:"question"`
}

type answerQuestionData struct {
	Answer string `json:"answer"`
}

type voteData struct {
	Ballot string `json:"ballot"`
}

// ParseMessage 解析消息外壳
func ParseMessage(raw []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrMessageFormat)
	}
	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return nil, apperrors.New(apperrors.ErrMessageFormat, "缺少 type")
	}
	return &msg, nil
}

// DecodeAction 把消息转换成游戏事件
func DecodeAction(msg *Message, from game.Peer) (game.Action, error) {
	switch msg.Type {
	case MessageTypeChangeName:
		var d changeNameData
		if err := decodeData(msg, &d); err != nil {
			return nil, err
		}
		return game.ChangeName{Peer: from, Name: d.Name}, nil
	case MessageTypeStartGame:
		return game.StartGame{Peer: from}, nil
	case MessageTypeSkipStage:
		return game.SkipStage{Peer: from}, nil
	case MessageTypeAskQuestion:
		var d askQuestionData
		if err := decodeData(msg, &d); err != nil {
			return nil, err
		}
		return game.AskQuestion{Peer: from, Question: d.Question}, nil
	case MessageTypeAnswerQuestion:
		var d answerQuestionData
		if err := decodeData(msg, &d); err != nil {
			return nil, err
		}
		return game.AnswerQuestion{Peer: from, Answer: d.Answer}, nil
	case MessageTypeVote:
		var d voteData
		if err := decodeData(msg, &d); err != nil {
			return nil, err
		}
		return game.CastVote{Peer: from, Ballot: d.Ballot}, nil
	case MessageTypePlayAgain:
		return game.PlayAgain{Peer: from}, nil
	default:
		return nil, apperrors.New(apperrors.ErrUnknownAction, msg.Type)
	}
}

func decodeData(msg *Message, v interface{}) error {
	if len(msg.Data) == 0 {
		return apperrors.Newf(apperrors.ErrMessageFormat, "%s 缺少 data", msg.Type)
	}
	if err := json.Unmarshal(msg.Data, v); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrMessageFormat, "%s data 格式错误", msg.Type)
	}
	return nil
}
