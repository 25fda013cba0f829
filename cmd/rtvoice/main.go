package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/lisuiheng/rtvoice/core"
	"github.com/lisuiheng/rtvoice/logger"
	"github.com/lisuiheng/rtvoice/metrics"
)

func main() {
	// 定义命令行参数
	configPath := flag.String("c", "", "Path to config file (default searches ./config.yaml, ./config/config.yaml, /etc/rtvoice/config.yaml)")
	record := flag.Bool("record", false, "Start recording as soon as the session is running")
	debug := flag.Bool("debug", false, "Enable debug logging to stdout")
	flag.Parse()

	// .env 中的 RTVOICE_* 变量可以覆盖配置文件
	if err := core.LoadEnv(); err != nil {
		logger.Warn("Failed to load .env file", "error", err)
	}

	// 加载配置
	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := initLogger(cfg, *debug); err != nil {
		logger.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	defer logger.Info("Shutting down rtvoice")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := startMetricsServer(cfg.Metrics.Listen, reg)

	// 创建会话
	session, err := core.NewSession(cfg, core.Options{
		Logger:  logger.Logger(),
		Metrics: m,
	})
	if err != nil {
		logger.Error("Failed to create session", "error", err)
		os.Exit(1)
	}

	// 设置信号处理
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *record {
		if err := session.StartRecording(); err != nil {
			logger.Error("Failed to start recording", "error", err)
		}
	}

	logger.Info("Starting rtvoice", "url", cfg.System.Network.Websocket.URL)
	if err := session.Run(ctx); err != nil {
		logger.Error("Session runtime error", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Failed to stop metrics server", "error", err)
		}
	}
	logger.Info("Service shutdown completed")
}

// initLogger 初始化日志系统
func initLogger(cfg core.Config, debug bool) error {
	logCfg := logger.Config{
		Level:   cfg.Logging.Level,
		Outputs: cfg.Logging.Outputs,
		MaxAge:  cfg.Logging.MaxAge,
	}

	// 调试模式覆盖配置
	if debug {
		logCfg.Level = "debug"
		logCfg.Outputs = []string{"stdout"}
	}
	return logger.Init(logCfg)
}

// startMetricsServer 在 listen 非空时暴露 /metrics
func startMetricsServer(listen string, reg *prometheus.Registry) *http.Server {
	if listen == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Metrics server listening", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", "error", err)
		}
	}()
	return srv
}
