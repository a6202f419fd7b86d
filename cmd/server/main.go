package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/system-design/quiz-match/internal"
	"github.com/koopa0/system-design/quiz-match/internal/config"
)

func main() {
	configPath := flag.String("config", "./config", "設定檔目錄")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("載入設定失敗", "error", err)
		os.Exit(1)
	}

	// 設置日誌
	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)

	// 比賽事件通知（未設定 NATS 時不發布）
	var notifier internal.MatchNotifier = internal.NopNotifier{}
	if cfg.NATS.URL != "" {
		nc, err := internal.ConnectNATS(cfg.NATS.URL, logger)
		if err != nil {
			logger.Warn("NATS 不可用，比賽事件停用", "error", err)
		} else {
			defer nc.Drain()
			notifier = internal.NewNATSNotifier(nc, cfg.NATS.SubjectPrefix, logger)
			logger.Info("已連接 NATS", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
		}
	}

	// 創建 WebSocket Hub 與房間管理器
	wsHub := internal.NewWebSocketHub(internal.WebSocketConfig{
		PingInterval:   cfg.WebSocket.PingInterval,
		PongWait:       cfg.WebSocket.PongWait,
		WriteWait:      cfg.WebSocket.WriteWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	}, logger)

	manager := internal.NewManager(logger, wsHub,
		internal.WithPolicy(internal.Policy{
			SettingsWriteOnce: cfg.Match.SettingsWriteOnce,
			HostOnlyConfig:    cfg.Match.HostOnlyConfig,
			DedupeScores:      cfg.Match.DedupeScores,
		}),
		internal.WithNotifier(notifier),
	)

	dispatcher := internal.NewDispatcher(wsHub, manager, logger)
	handler := internal.NewHandler(manager, wsHub, logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.HandleFunc("GET /ws", dispatcher.ServeWS)

	// WebSocket 是長連接，不設 Read/WriteTimeout
	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// 啟動服務器
	go func() {
		logger.Info("問答對戰服務器啟動",
			"addr", server.Addr,
			"log_level", cfg.Log.Level,
			"log_format", cfg.Log.Format)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// 停止接受新連接
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	wsHub.Stop()
	manager.Stop()

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
