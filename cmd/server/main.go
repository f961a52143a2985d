package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/ai-imposter/internal/answer"
	"github.com/wfunc/ai-imposter/internal/api"
	"github.com/wfunc/ai-imposter/internal/config"
	apperrors "github.com/wfunc/ai-imposter/internal/errors"
	"github.com/wfunc/ai-imposter/internal/game"
	"github.com/wfunc/ai-imposter/internal/identity"
	"github.com/wfunc/ai-imposter/internal/logger"
	ws "github.com/wfunc/ai-imposter/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	models   *answer.Registry
	hub      *ws.Hub
	sessions *game.SessionManager
	http     *http.Server

	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}
	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	server := NewServer(cfg)
	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("服务器已安全关闭")
	logger.Cleanup()
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动AI卧底游戏服务器...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
	)

	if err := s.initComponents(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternal, "初始化组件失败")
	}
	s.startServices()

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功", zap.String("http", s.cfg.Server.Address()))
	return nil
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	models, err := answer.NewFromConfig(s.cfg.Answer, logger.GetModuleLogger("answer"))
	if err != nil {
		return err
	}
	if !models.HasModel(s.cfg.Answer.DefaultModel) {
		return apperrors.Newf(apperrors.ErrConfigValidate, "默认模型未注册: %s", s.cfg.Answer.DefaultModel)
	}
	s.models = models

	s.hub = ws.NewHub(s.cfg.WebSocket, logger.GetModuleLogger("websocket"))

	gc := s.cfg.Game
	s.sessions = game.NewSessionManager(&game.SessionConfig{
		Logger:         logger.GetModuleLogger("game"),
		Answers:        models,
		Out:            ws.NewGateway(s.hub, logger.GetModuleLogger("websocket")),
		Catalog:        models,
		Options:        game.OptionsFromConfig(gc),
		SessionTimeout: gc.SessionTimeout,
		MaxSessions:    gc.MaxSessions,
		IDLength:       gc.IDLength,
		AutoCreate:     gc.AutoCreate,
		DefaultModel:   s.cfg.Answer.DefaultModel,
	})

	router := api.NewRouter(api.Deps{
		Config:   s.cfg,
		Sessions: s.sessions,
		Models:   models,
		Hub:      s.hub,
		Identity: identity.NewManagerFromConfig(s.cfg.Security.JWT),
		Logger:   logger.GetModuleLogger("api"),
	})
	s.http = &http.Server{
		Addr:        s.cfg.Server.Address(),
		Handler:     router.Handler(),
		ReadTimeout: s.cfg.Server.ReadTimeout,
		// WriteTimeout 对WebSocket长连接不适用，只限制响应头
		ReadHeaderTimeout: s.cfg.Server.ReadTimeout,
	}

	s.logger.Info("所有组件初始化完成", zap.Strings("models", models.Models()))
	return nil
}

// startServices 启动服务
func (s *Server) startServices() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Info("HTTP服务监听", zap.String("address", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
			s.cancel()
		}
	}()

	s.sessions.StartCleanupTask(s.ctx, s.cfg.Game.CleanupInterval)
}

// WaitForShutdown 等待退出信号或服务异常
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigCh:
		s.logger.Info("收到退出信号", zap.String("signal", sig.String()))
	case <-s.ctx.Done():
		s.logger.Warn("服务异常，开始关闭")
	}
	close(s.shutdownCh)
}

// Shutdown 优雅关闭：HTTP服务、连接、会话
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("HTTP服务关闭超时", zap.Error(err))
	}
	// 先断开连接，玩家离开事件还能被会话处理
	s.hub.Close()
	s.sessions.Shutdown()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// reloadConfig 应用新配置，游戏规则只影响之后创建的会话
func (s *Server) reloadConfig(newCfg *config.Config) {
	s.cfg = newCfg
	logger.SetLevel(newCfg.Log.Level)
	s.sessions.SetOptions(game.OptionsFromConfig(newCfg.Game))
	s.logger.Info("配置重新加载完成",
		zap.String("log_level", newCfg.Log.Level),
		zap.Int("min_players", newCfg.Game.MinPlayers))
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("AI卧底游戏服务器\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("AI卧底游戏服务器")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  ai-imposter-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  AI_IMPOSTER_SERVER_PORT            监听端口")
	fmt.Println("  AI_IMPOSTER_ANSWER_OPENAI_API_KEY  OpenAI API key")
	fmt.Println("  AI_IMPOSTER_SECURITY_JWT_SECRET    玩家令牌签名密钥")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  ai-imposter-server -config=/path/to/config.yaml")
	fmt.Println("  ai-imposter-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("                       AI Imposter Server")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | PID: %d\n", Version, cfg.Server.Mode, os.Getpid())
	fmt.Printf("配置文件: %s\n", config.ConfigFile())
	fmt.Printf("启动时间: %s\n", time.Now().Format(time.RFC3339))
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
