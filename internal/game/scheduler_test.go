package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// drain 在窗口期内收集并认领所有到期令牌
func drain(s *StageScheduler, window time.Duration) []Stage {
	var claimed []Stage
	deadline := time.After(window)
	for {
		select {
		case tok := <-s.Fired():
			if target, ok := s.Claim(tok); ok {
				claimed = append(claimed, target)
			}
		case <-deadline:
			return claimed
		}
	}
}

func TestSchedulerFiresOnce(t *testing.T) {
	s := NewStageScheduler()
	s.Schedule(10*time.Millisecond, StageQuestion)

	target, _, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, StageQuestion, target)

	assert.Equal(t, []Stage{StageQuestion}, drain(s, 100*time.Millisecond))
	_, _, ok = s.Pending()
	assert.False(t, ok)
}

func TestSchedulerRapidReschedule(t *testing.T) {
	s := NewStageScheduler()
	for i := 0; i < 200; i++ {
		s.Schedule(time.Duration(i%3)*time.Millisecond, StageAnswer)
		s.CancelPending()
		s.Schedule(time.Millisecond, StageShowAnswers)
	}
	assert.Equal(t, []Stage{StageShowAnswers}, drain(s, 100*time.Millisecond))
}

func TestSchedulerCancelAfterFire(t *testing.T) {
	s := NewStageScheduler()
	s.Schedule(time.Millisecond, StageIntro)
	time.Sleep(20 * time.Millisecond)

	// 计时已经到期但还没被认领
	s.CancelPending()
	assert.Empty(t, drain(s, 30*time.Millisecond))

	s.CancelPending()
	s.CancelPending()
}

func TestSchedulerStaleToken(t *testing.T) {
	s := NewStageScheduler()
	first := s.Schedule(time.Hour, StageIntro)
	second := s.Schedule(time.Hour, StageQuestion)
	assert.NotEqual(t, first, second)

	_, ok := s.Claim(first)
	assert.False(t, ok)
	target, ok := s.Claim(second)
	assert.True(t, ok)
	assert.Equal(t, StageQuestion, target)
	_, ok = s.Claim(second)
	assert.False(t, ok)
}

func TestSchedulerNegativeDelay(t *testing.T) {
	s := NewStageScheduler()
	s.Schedule(-time.Second, StageEnding)
	assert.Equal(t, []Stage{StageEnding}, drain(s, 50*time.Millisecond))
}
