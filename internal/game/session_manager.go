package game

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,32}$`)

// SessionManager 游戏会话管理器
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*GameSession
	logger   *zap.Logger

	answers AnswerService
	out     Broadcaster
	catalog ModelCatalog

	optsMu sync.RWMutex
	opts   Options

	sessionTimeout time.Duration
	maxSessions    int
	idLength       int
	autoCreate     bool
	defaultModel   string

	ctx    context.Context
	cancel context.CancelFunc
}

// SessionConfig 会话管理器配置
type SessionConfig struct {
	Logger         *zap.Logger
	Answers        AnswerService
	Out            Broadcaster
	Catalog        ModelCatalog // 为nil时不校验模型
	Options        Options
	SessionTimeout time.Duration
	MaxSessions    int
	IDLength       int
	AutoCreate     bool
	DefaultModel   string
}

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg *SessionConfig) *SessionManager {
	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}
	idLength := cfg.IDLength
	if idLength <= 0 || idLength > 32 {
		idLength = 5
	}
	timeout := cfg.SessionTimeout
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &SessionManager{
		sessions:       make(map[string]*GameSession),
		logger:         l,
		answers:        cfg.Answers,
		out:            cfg.Out,
		catalog:        cfg.Catalog,
		opts:           cfg.Options.clone(),
		sessionTimeout: timeout,
		maxSessions:    cfg.MaxSessions,
		idLength:       idLength,
		autoCreate:     cfg.AutoCreate,
		defaultModel:   cfg.DefaultModel,
		ctx:            ctx,
		cancel:         cancel,
	}
}

// SetOptions 更新之后创建的会话使用的规则
func (sm *SessionManager) SetOptions(opts Options) {
	sm.optsMu.Lock()
	defer sm.optsMu.Unlock()
	sm.opts = opts.clone()
}

func (sm *SessionManager) options() Options {
	sm.optsMu.RLock()
	defer sm.optsMu.RUnlock()
	return sm.opts.clone()
}

// SetBroadcaster 设置推送出口，需要在创建会话之前调用
func (sm *SessionManager) SetBroadcaster(out Broadcaster) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.out = out
}

// Create 用随机ID创建会话
func (sm *SessionManager) Create(model string) (*GameSession, error) {
	for i := 0; i < 8; i++ {
		s, err := sm.CreateWithID(sm.newID(), model)
		if apperrors.Is(err, apperrors.ErrAlreadyExists) {
			continue
		}
		return s, err
	}
	return nil, apperrors.New(apperrors.ErrAlreadyExists, "无法生成唯一的会话ID")
}

// CreateWithID 用指定ID创建会话
func (sm *SessionManager) CreateWithID(id, model string) (*GameSession, error) {
	if !sessionIDPattern.MatchString(id) {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "会话ID无效: %q", id)
	}
	if model == "" {
		model = sm.defaultModel
	}
	if sm.catalog != nil && !sm.catalog.HasModel(model) {
		return nil, apperrors.New(apperrors.ErrUnknownModel, model)
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.ctx.Err() != nil {
		return nil, apperrors.New(apperrors.ErrSessionClosed, "会话管理器已关闭")
	}
	if _, exists := sm.sessions[id]; exists {
		return nil, apperrors.New(apperrors.ErrAlreadyExists, id)
	}
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, apperrors.New(apperrors.ErrCapacityExceeded, "会话数量已达上限")
	}

	session := NewGameSession(sm.ctx, id, model, sm.options(), SessionDeps{
		Answers: sm.answers,
		Out:     sm.out,
		Logger:  sm.logger,
	})
	sm.sessions[id] = session

	sm.logger.Info("创建游戏会话",
		zap.String("session_id", id),
		zap.String("model", model),
		zap.Int("total", len(sm.sessions)))

	return session, nil
}

// Get 获取会话
func (sm *SessionManager) Get(id string) (*GameSession, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[id]
	if !exists {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "会话不存在: %s", id)
	}
	return session, nil
}

// GetOrCreate 获取会话，不存在且开启自动创建时用默认模型创建
func (sm *SessionManager) GetOrCreate(id string) (*GameSession, error) {
	if session, err := sm.Get(id); err == nil {
		return session, nil
	}
	if !sm.autoCreate {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "会话不存在: %s", id)
	}
	session, err := sm.CreateWithID(id, sm.defaultModel)
	if apperrors.Is(err, apperrors.ErrAlreadyExists) {
		// 并发创建，取已存在的那个
		return sm.Get(id)
	}
	return session, err
}

// Delete 移除并停止会话
func (sm *SessionManager) Delete(id string) error {
	sm.mu.Lock()
	session, exists := sm.sessions[id]
	if exists {
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	if !exists {
		return apperrors.Newf(apperrors.ErrNotFound, "会话不存在: %s", id)
	}
	session.Stop()

	sm.logger.Info("移除游戏会话", zap.String("session_id", id))
	return nil
}

// List 当前全部会话的快照
func (sm *SessionManager) List() []*Snapshot {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]*Snapshot, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// Count 会话数
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// CleanupInactiveSessions 清理没有在线玩家且超时的会话，返回清理数量
func (sm *SessionManager) CleanupInactiveSessions() int {
	now := time.Now()

	sm.mu.Lock()
	var removed []*GameSession
	for id, session := range sm.sessions {
		if session.Snapshot().Idle(now, sm.sessionTimeout) {
			removed = append(removed, session)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, session := range removed {
		session.Stop()
		sm.logger.Info("清理超时会话",
			zap.String("session_id", session.ID()),
			zap.Duration("inactive", now.Sub(session.LastActivity())))
	}
	return len(removed)
}

// StartCleanupTask 启动清理任务
func (sm *SessionManager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sm.logger.Info("停止会话清理任务")
				return
			case <-sm.ctx.Done():
				return
			case <-ticker.C:
				sm.CleanupInactiveSessions()
			}
		}
	}()
}

// Shutdown 停止全部会话
func (sm *SessionManager) Shutdown() {
	sm.mu.Lock()
	sessions := sm.sessions
	sm.sessions = make(map[string]*GameSession)
	sm.mu.Unlock()

	sm.cancel()
	for _, session := range sessions {
		<-session.Done()
	}
	sm.logger.Info("会话管理器已关闭", zap.Int("sessions", len(sessions)))
}

func (sm *SessionManager) newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:sm.idLength]
}
