// Package config 載入服務設定：config.yaml、環境變數與 .env 檔案。
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 服務設定
type Config struct {
	Server    ServerConfig
	WebSocket WebSocketConfig
	Log       LogConfig
	Match     MatchConfig
	NATS      NATSConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type WebSocketConfig struct {
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	WriteWait      time.Duration `mapstructure:"write_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	SendBuffer     int           `mapstructure:"send_buffer"`
}

type LogConfig struct {
	Level  string
	Format string
}

// MatchConfig 比賽規則的可選行為
type MatchConfig struct {
	SettingsWriteOnce bool `mapstructure:"settings_write_once"`
	HostOnlyConfig    bool `mapstructure:"host_only_config"`
	DedupeScores      bool `mapstructure:"dedupe_scores"`
}

// NATSConfig URL 為空時不發布比賽事件
type NATSConfig struct {
	URL           string
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Addr 監聽位址
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadDotEnv 載入 .env（檔案不存在時略過，不覆蓋已存在的環境變數）
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Load 從 configPath/config.yaml 與環境變數載入設定
func Load(configPath string) (*Config, error) {
	if err := LoadDotEnv(filepath.Join(configPath, ".env")); err != nil {
		return nil, fmt.Errorf("載入 .env 失敗: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	// 常見的部署平台只提供 PORT
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("nats.url", "NATS_URL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("讀取設定檔失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析設定失敗: %w", err)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("無效的端口: %d", cfg.Server.Port)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("websocket.ping_interval", "54s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.max_message_size", 1<<20)
	v.SetDefault("websocket.send_buffer", 256)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("match.settings_write_once", false)
	v.SetDefault("match.host_only_config", false)
	v.SetDefault("match.dedupe_scores", false)
	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "quiz.match")
}
