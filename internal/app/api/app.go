// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	"github.com/hertz-contrib/obs-opentelemetry/provider"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"support-agent/internal/agent"
	apigrpc "support-agent/internal/api/grpc"
	"support-agent/internal/api/http"
	"support-agent/internal/api/http/middleware"
	"support-agent/internal/app"
	"support-agent/pkg/config"
	"support-agent/pkg/log"
	"support-agent/pkg/tracing"
	"support-agent/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用（装配 HTTP Router、Handler、Middleware 与 gRPC 健康检查）
type App struct {
	config       *app.Bootstrap
	agent        *agent.Agent
	router       *http.Router
	handler      *http.Handler
	hertz        *server.Hertz
	metrics      *server.Hertz
	grpcServer   *apigrpc.Server
	otelProvider otelProviderShutdown
}

// NewApp 创建 API 应用（由 cmd/api 调用）
func NewApp(bootstrap *app.Bootstrap) (*App, error) {
	cfg := bootstrap.Config
	a := bootstrap.NewAgent()

	handler := http.NewHandler(a, bootstrap.Store, bootstrap.KB)
	handler.SetTopK(cfg.KB.TopK)

	var origins []string
	if cfg.API.CORS.Enable {
		origins = cfg.API.CORS.AllowOrigins
	}
	router := http.NewRouter(handler, middleware.NewMiddleware(origins...))

	mw := cfg.API.Middleware
	if mw.RateLimit {
		router.SetRateLimit(utils.PositiveInt(mw.RateLimitRPS, 100))
	}
	if mw.Auth {
		auth, err := middleware.NewAuth(middleware.AuthConfig{
			Key:         mw.JWTKey,
			OperatorKey: mw.OperatorKey,
			Timeout:     config.ParseDuration(mw.JWTTimeout, time.Hour),
			MaxRefresh:  config.ParseDuration(mw.JWTMaxRefresh, time.Hour),
		})
		if err != nil {
			return nil, fmt.Errorf("初始化 JWT 中间件失败: %w", err)
		}
		router.SetAuth(auth)
	}

	appObj := &App{
		config:  bootstrap,
		agent:   a,
		router:  router,
		handler: handler,
	}
	if cfg.API.Grpc.Enable && cfg.API.Grpc.Port > 0 {
		gs := apigrpc.NewServer(bootstrap.Store, bootstrap.KB)
		if err := gs.Start(cfg.API.Grpc.Port, 15*time.Second); err != nil {
			bootstrap.Logger.Warn("gRPC 服务启动失败", "error", err)
		} else {
			appObj.grpcServer = gs
			bootstrap.Logger.Info("gRPC 服务已启动", "port", cfg.API.Grpc.Port)
		}
	}
	return appObj, nil
}

// Addr 根据 api.host 与 api.port 计算监听地址，默认 ":8080"
func Addr(cfg *config.Config) string {
	if cfg == nil {
		return ":8080"
	}
	return fmt.Sprintf("%s:%d", cfg.API.Host, utils.PositiveInt(cfg.API.Port, 8080))
}

// Run 启动 HTTP 服务，addr 如 ":8080"
func (a *App) Run(addr string) error {
	a.config.Logger.Info("API 服务启动", "addr", addr)
	cfg := a.config.Config

	// 使用 Hertz slog 扩展，与 bootstrap 配置对齐
	var output io.Writer = os.Stdout
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("打开日志文件失败: %w", err)
		}
		output = f
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hertzLogger := hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	)
	hlog.SetLogger(hertzLogger)

	// 可选：启用链路追踪（OpenTelemetry）
	tracingCfg := cfg.Monitoring.Tracing
	exportEndpoint := utils.CoalesceString(tracingCfg.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if tracingCfg.Enable && exportEndpoint != "" {
		serviceName := utils.CoalesceString(tracingCfg.ServiceName, "support-agent-api")
		if tracingCfg.Protocol == "http" {
			tp, err := tracing.InitTracer(tracing.OTelConfig{
				ServiceName:    serviceName,
				ExportEndpoint: exportEndpoint,
				Insecure:       tracingCfg.Insecure,
			})
			if err != nil {
				return fmt.Errorf("初始化链路追踪失败: %w", err)
			}
			a.otelProvider = tp
		} else {
			opts := []provider.Option{
				provider.WithServiceName(serviceName),
				provider.WithExportEndpoint(exportEndpoint),
			}
			if tracingCfg.Insecure {
				opts = append(opts, provider.WithInsecure())
			}
			a.otelProvider = provider.NewOpenTelemetryProvider(opts...)
		}
		tracerOpt, tcfg := hertztracing.NewServerTracer()
		a.hertz = a.router.Build(addr, tracerOpt)
		a.hertz.Use(hertztracing.ServerMiddleware(tcfg))
		a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", exportEndpoint)
	} else {
		a.hertz = a.router.Build(addr)
	}

	// 独立的 Prometheus 抓取端口
	prom := cfg.Monitoring.Prometheus
	if prom.Enable && prom.Port > 0 && prom.Port != cfg.API.Port {
		a.metrics = server.Default(server.WithHostPorts(fmt.Sprintf(":%d", prom.Port)))
		a.metrics.GET("/metrics", a.handler.Metrics)
		go func() {
			if err := a.metrics.Run(); err != nil {
				a.config.Logger.Warn("Prometheus 端口退出", "port", prom.Port, "error", err)
			}
		}()
		a.config.Logger.Info("Prometheus 指标端口已启动", "port", prom.Port)
	}
	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）
func (a *App) Shutdown(ctx context.Context) error {
	if a.grpcServer != nil {
		a.grpcServer.Stop()
	}
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if a.hertz != nil {
		if err := a.hertz.Shutdown(ctx); err != nil {
			return err
		}
	}
	if a.otelProvider != nil {
		_ = a.otelProvider.Shutdown(ctx)
	}
	return a.config.Close()
}
