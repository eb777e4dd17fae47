package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"monitoring-service/api"
	"monitoring-service/logger"
	"monitoring-service/service"
	"monitoring-service/service/config"
)

func main() {
	cfg := config.Load()
	logger.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container, err := service.Init(ctx, cfg)
	if err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}
	container.Start()
	defer container.Close()

	opts := api.Options{
		Monitor:     container.Monitor,
		ServiceName: cfg.ServiceName,
		Version:     cfg.ServiceVersion,
	}
	if container.IngestLimiter != nil {
		opts.IngestLimiter = container.IngestLimiter
	}

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if cfg.BaseContext != "" {
		mux.Route(cfg.BaseContext, func(r chi.Router) {
			api.InitRoute(r, opts)
			r.Handle("/metrics", promhttp.Handler())
		})
	} else {
		api.InitRoute(mux, opts)
		mux.Handle("/metrics", promhttp.Handler())
	}

	s := daprd.NewServiceWithMux(":"+cfg.ListenPort, mux)

	go func() {
		<-ctx.Done()
		slog.Info("收到退出信号，正在关闭服务")
		if err := s.GracefulStop(); err != nil {
			slog.Error("关闭HTTP服务失败", "error", err)
		}
	}()

	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}
}
