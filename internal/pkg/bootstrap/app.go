// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"promo/internal/pkg/logger"
	"promo/internal/pkg/nacos"
	"promo/internal/pkg/tracing"
)

// Component 是跟随服务生命周期的长驻组件（消费者、轮询 worker、
// 监听器）。Start 不阻塞，Stop 在优雅关停时按注册顺序的逆序调用。
type Component interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context)
}

// AppCtx 传给业务方的注册钩子。
type AppCtx struct {
	Mux *http.ServeMux
}

// AppInfo 包含启动一个微服务所需的全部信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	Components       []Component
}

// StartService 封装所有服务的通用启动和优雅关停逻辑：
// tracing、Nacos 注册、HTTP(健康检查 + /metrics)、组件生命周期。
// 调用方阻塞在这里直到收到退出信号。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	cfg := GetCurrentConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	log := logger.Ctx(ctx)

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	namingClient, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize nacos client")
	}

	ip, err := getOutboundIP()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to get outbound IP address")
	}
	if err := namingClient.Register(info.ServiceName, ip, info.Port); err != nil {
		log.Fatal().Err(err).Msg("failed to register service with nacos")
	}
	log.Info().Str("ip", ip).Int("port", info.Port).Msg("✅ Service registered to Nacos")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}

	for _, c := range info.Components {
		if err := c.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start component")
		}
	}

	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		log.Info().Str("addr", server.Addr).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// 关停按启动的逆序执行
	cancel()
	for i := len(info.Components) - 1; i >= 0; i-- {
		info.Components[i].Stop(shutdownCtx)
	}

	if err := namingClient.Deregister(info.ServiceName, ip, info.Port); err != nil {
		log.Error().Err(err).Msg("Error deregistering from Nacos")
	}
	namingClient.Close()

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down tracer provider")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error shutting down http server")
	}
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// getOutboundIP 获取本机对外 IP，用于 Nacos 注册。
func getOutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
