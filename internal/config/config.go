package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	apperrors "github.com/wfunc/ai-imposter/internal/errors"
)

// Config 全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Game      GameConfig      `mapstructure:"game"`
	Answer    AnswerConfig    `mapstructure:"answer"`
	Log       LogConfig       `mapstructure:"log"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	ReadBufferSize    int           `mapstructure:"read_buffer_size"`
	WriteBufferSize   int           `mapstructure:"write_buffer_size"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	PingInterval      time.Duration `mapstructure:"ping_interval"`
	PongTimeout       time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
	SendBuffer        int           `mapstructure:"send_buffer"`
	EnableCompression bool          `mapstructure:"enable_compression"`
	RateLimit         float64       `mapstructure:"rate_limit"` // 每秒允许的事件数
	RateBurst         int           `mapstructure:"rate_burst"`
}

// StageConfig 单个阶段的时长配置
type StageConfig struct {
	Duration  time.Duration `mapstructure:"duration"`
	Skippable bool          `mapstructure:"skippable"`
}

// GameConfig 游戏配置
type GameConfig struct {
	Stages            map[string]StageConfig `mapstructure:"stages"`
	MinPlayers        int                    `mapstructure:"min_players"`
	MaxSessions       int                    `mapstructure:"max_sessions"`
	SessionTimeout    time.Duration          `mapstructure:"session_timeout"`
	CleanupInterval   time.Duration          `mapstructure:"cleanup_interval"`
	IDLength          int                    `mapstructure:"id_length"`
	AutoCreate        bool                   `mapstructure:"auto_create"`
	AnswerTimeout     time.Duration          `mapstructure:"answer_timeout"`
	FallbackAnswers   []string               `mapstructure:"fallback_answers"`
	FallbackQuestions []string               `mapstructure:"fallback_questions"`
	MaxNameLength     int                    `mapstructure:"max_name_length"`
	MaxTextLength     int                    `mapstructure:"max_text_length"`
	MailboxSize       int                    `mapstructure:"mailbox_size"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	Name     string        `mapstructure:"name"`
	Provider string        `mapstructure:"provider"` // mock | openai
	Delay    time.Duration `mapstructure:"delay"`    // 仅mock使用
	Text     string        `mapstructure:"text"`     // 仅mock使用
}

// OpenAIConfig OpenAI接口配置
type OpenAIConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Instructions string        `mapstructure:"instructions"`
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
}

// AnswerConfig 答案生成服务配置
type AnswerConfig struct {
	DefaultModel string        `mapstructure:"default_model"`
	Retries      int           `mapstructure:"retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	Models       []ModelConfig `mapstructure:"models"`
	OpenAI       OpenAIConfig  `mapstructure:"openai"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT         JWTConfig `mapstructure:"jwt"`
	CookieName  string    `mapstructure:"cookie_name"`
	CORSOrigins []string  `mapstructure:"cors_origins"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
	Issuer      string `mapstructure:"issuer"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化全局配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		var loaded *Config
		v, loaded, err = load(configPath)
		if err != nil {
			return
		}
		mu.Lock()
		cfg = loaded
		mu.Unlock()
	})
	return err
}

// Load 读取配置但不修改全局实例
func Load(configPath string) (*Config, error) {
	_, c, err := load(configPath)
	return c, err
}

func load(configPath string) (*viper.Viper, *Config, error) {
	vp := viper.New()

	if configPath != "" {
		vp.SetConfigFile(configPath)
	} else {
		vp.SetConfigName("config")
		vp.SetConfigType("yaml")
		vp.AddConfigPath("./config")
		vp.AddConfigPath(".")
	}

	vp.SetEnvPrefix("AI_IMPOSTER")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()

	setDefaults(vp)

	if err := vp.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认配置
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, apperrors.Wrap(err, apperrors.ErrConfigLoad)
		}
	}

	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.ErrConfigParse)
	}
	if err := c.Validate(); err != nil {
		return nil, nil, err
	}
	return vp, c, nil
}

// Default 返回纯默认值的配置
func Default() *Config {
	vp := viper.New()
	setDefaults(vp)
	c := &Config{}
	_ = vp.Unmarshal(c)
	return c
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// 服务器
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// WebSocket
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.ping_interval", "30s")
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("websocket.enable_compression", false)
	v.SetDefault("websocket.rate_limit", 5.0)
	v.SetDefault("websocket.rate_burst", 10)

	// 游戏阶段
	v.SetDefault("game.stages", map[string]interface{}{
		"lobby":        map[string]interface{}{"duration": "0s", "skippable": false},
		"intro":        map[string]interface{}{"duration": "5s", "skippable": true},
		"question":     map[string]interface{}{"duration": "30s", "skippable": false},
		"answer":       map[string]interface{}{"duration": "30s", "skippable": false},
		"show_answers": map[string]interface{}{"duration": "30s", "skippable": false},
		"eliminate":    map[string]interface{}{"duration": "15s", "skippable": true},
		"ending":       map[string]interface{}{"duration": "0s", "skippable": false},
	})
	v.SetDefault("game.min_players", 2)
	v.SetDefault("game.max_sessions", 1000)
	v.SetDefault("game.session_timeout", "30m")
	v.SetDefault("game.cleanup_interval", "1m")
	v.SetDefault("game.id_length", 5)
	v.SetDefault("game.auto_create", true)
	v.SetDefault("game.answer_timeout", "20s")
	v.SetDefault("game.fallback_answers", []string{"hmm, hard to say", "no idea honestly", "pass"})
	v.SetDefault("game.fallback_questions", []string{
		"What did you have for breakfast?",
		"What is your favourite holiday?",
		"Describe your perfect weekend.",
	})
	v.SetDefault("game.max_name_length", 32)
	v.SetDefault("game.max_text_length", 280)
	v.SetDefault("game.mailbox_size", 256)

	// 答案生成
	v.SetDefault("answer.default_model", "dev")
	v.SetDefault("answer.retries", 1)
	v.SetDefault("answer.retry_delay", "500ms")
	v.SetDefault("answer.models", []map[string]interface{}{
		{"name": "dev", "provider": "mock", "delay": "5s", "text": "This is a mock response."},
		{"name": "gpt-5-nano", "provider": "openai"},
	})
	v.SetDefault("answer.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("answer.openai.api_key", "")
	v.SetDefault("answer.openai.instructions", "")
	v.SetDefault("answer.openai.http_timeout", "30s")

	// 日志
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "ai-imposter.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	// 安全
	v.SetDefault("security.jwt.secret", "change-me-in-production")
	v.SetDefault("security.jwt.expire_hours", 24*30)
	v.SetDefault("security.jwt.issuer", "ai-imposter")
	v.SetDefault("security.cookie_name", "player_token")
	v.SetDefault("security.cors_origins", []string{"*"})
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "server.port 无效: %d", c.Server.Port)
	}
	if c.Game.MinPlayers < 1 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "game.min_players 必须大于0: %d", c.Game.MinPlayers)
	}
	if c.Game.IDLength < 3 || c.Game.IDLength > 32 {
		return apperrors.Newf(apperrors.ErrConfigValidate, "game.id_length 必须在3到32之间: %d", c.Game.IDLength)
	}
	if c.Game.AnswerTimeout <= 0 {
		return apperrors.New(apperrors.ErrConfigValidate, "game.answer_timeout 必须大于0")
	}
	for name, st := range c.Game.Stages {
		if st.Duration < 0 {
			return apperrors.Newf(apperrors.ErrConfigValidate, "阶段 %s 的时长不能为负数", name)
		}
	}
	if len(c.Answer.Models) == 0 {
		return apperrors.New(apperrors.ErrConfigMissing, "answer.models")
	}
	seen := make(map[string]bool, len(c.Answer.Models))
	for _, m := range c.Answer.Models {
		if m.Name == "" {
			return apperrors.New(apperrors.ErrConfigValidate, "模型名称不能为空")
		}
		if seen[m.Name] {
			return apperrors.Newf(apperrors.ErrConfigValidate, "模型重复: %s", m.Name)
		}
		seen[m.Name] = true
		switch m.Provider {
		case "mock", "openai":
		default:
			return apperrors.Newf(apperrors.ErrConfigValidate, "模型 %s 的provider无效: %s", m.Name, m.Provider)
		}
	}
	if !seen[c.Answer.DefaultModel] {
		return apperrors.Newf(apperrors.ErrConfigValidate, "默认模型未配置: %s", c.Answer.DefaultModel)
	}
	return nil
}

// Address 返回监听地址
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载校验失败: %v\n", err)
			return
		}

		mu.Lock()
		cfg = newCfg
		mu.Unlock()

		if callback != nil {
			callback(newCfg)
		}

		fmt.Printf("配置已重新加载: %s\n", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	return v.GetString(key)
}

// GetDuration 获取时间间隔配置
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet 检查配置项是否存在
func IsSet(key string) bool {
	return v.IsSet(key)
}

// ConfigFile 实际加载的配置文件，未找到文件时为空
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
