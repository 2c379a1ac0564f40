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

// Package grpc 提供 gRPC 健康检查服务，供负载均衡与编排系统探活
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"support-agent/internal/kb"
	"support-agent/internal/storage/helpdesk"
)

// ServiceName 对外暴露的服务名
const ServiceName = "support_agent.SupportAgent"

// Server gRPC 服务端，根据存储与知识库状态维护健康状态
type Server struct {
	health *health.Server
	store  helpdesk.Store
	kb     *kb.KnowledgeBase
	srv    *grpc.Server
	lis    net.Listener
	done   chan struct{}
}

// NewServer 创建 gRPC Server
func NewServer(store helpdesk.Store, knowledge *kb.KnowledgeBase) *Server {
	return &Server{health: health.NewServer(), store: store, kb: knowledge, done: make(chan struct{})}
}

// Register 注册健康检查服务到 grpc.Server
func (s *Server) Register(grpcServer *grpc.Server) {
	healthpb.RegisterHealthServer(grpcServer, s.health)
	s.Refresh(context.Background())
}

// Refresh 探测依赖并更新健康状态：存储可读且知识库已加载时为 SERVING
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.store != nil {
		if _, err := s.store.ListCustomers(ctx); err != nil {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.kb != nil && s.kb.State() != kb.StateLoaded {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Start 在指定端口监听并在 goroutine 中 Serve，同时周期刷新健康状态
func (s *Server) Start(port int, interval time.Duration) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	s.srv = grpc.NewServer()
	s.lis = lis
	s.Register(s.srv)
	go func() {
		_ = s.srv.Serve(lis)
	}()
	if interval > 0 {
		go func() {
			t := time.NewTicker(interval)
			defer t.Stop()
			for {
				select {
				case <-s.done:
					return
				case <-t.C:
					s.Refresh(context.Background())
				}
			}
		}()
	}
	return nil
}

// Addr 实际监听地址
func (s *Server) Addr() net.Addr {
	if s.lis == nil {
		return nil
	}
	return s.lis.Addr()
}

// Stop 标记为 NOT_SERVING 并优雅停止
func (s *Server) Stop() {
	close(s.done)
	s.health.Shutdown()
	if s.srv != nil {
		s.srv.GracefulStop()
	}
}
