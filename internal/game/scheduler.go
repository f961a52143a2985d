package game

import (
	"sync"
	"time"
)

// pendingTransition 已排期的阶段切换
type pendingTransition struct {
	token    uint64
	target   Stage
	timer    *time.Timer
	cancel   chan struct{} // 取消令牌
	settled  chan struct{} // 计时协程退出后关闭
	deadline time.Time
}

// StageScheduler 每个会话最多一个待触发的阶段切换
//
// 计时到期只会把令牌投递到 Fired 通道，真正的切换由会话事件循环调用 Claim 后执行。
// CancelPending 返回后，被取消的计时器不会再产生任何切换。
type StageScheduler struct {
	mu      sync.Mutex
	pending *pendingTransition
	seq     uint64
	fired   chan uint64
}

// NewStageScheduler 创建调度器
func NewStageScheduler() *StageScheduler {
	return &StageScheduler{fired: make(chan uint64, 1)}
}

// Fired 计时到期通知
func (s *StageScheduler) Fired() <-chan uint64 {
	return s.fired
}

// Schedule 在 delay 之后切换到 target，已有的排期会先被取消
func (s *StageScheduler) Schedule(delay time.Duration, target Stage) uint64 {
	s.CancelPending()
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	s.seq++
	p := &pendingTransition{
		token:    s.seq,
		target:   target,
		timer:    time.NewTimer(delay),
		cancel:   make(chan struct{}),
		settled:  make(chan struct{}),
		deadline: time.Now().Add(delay),
	}
	s.pending = p
	s.mu.Unlock()

	go s.wait(p)
	return p.token
}

func (s *StageScheduler) wait(p *pendingTransition) {
	defer close(p.settled)
	select {
	case <-p.timer.C:
		select {
		case s.fired <- p.token:
		case <-p.cancel:
		}
	case <-p.cancel:
		p.timer.Stop()
	}
}

// CancelPending 取消当前排期，等待计时协程退出并丢弃它可能已经投递的令牌。可重复调用
func (s *StageScheduler) CancelPending() {
	s.mu.Lock()
	p := s.pending
	s.pending = nil
	s.mu.Unlock()

	if p == nil {
		return
	}

	close(p.cancel)
	<-p.settled

	select {
	case <-s.fired:
	default:
	}
}

// Claim 认领到期令牌。令牌不是当前排期（已取消或已被替换）时返回false
func (s *StageScheduler) Claim(token uint64) (Stage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil || s.pending.token != token {
		return "", false
	}
	target := s.pending.target
	s.pending = nil
	return target, true
}

// Pending 当前是否有待触发的排期
func (s *StageScheduler) Pending() (Stage, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return "", time.Time{}, false
	}
	return s.pending.target, s.pending.deadline, true
}
