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

package grpc

import (
	"context"
	"fmt"
	"net"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"support-agent/internal/kb"
	"support-agent/internal/storage/helpdesk"
)

func TestRefresh_KBStateDrivesHealth(t *testing.T) {
	k := kb.New(t.TempDir())
	s := NewServer(helpdesk.NewMemoryStore(), k)
	if got := s.Refresh(context.Background()); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("before load: %v", got)
	}
	if err := k.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Refresh(context.Background()); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("after load: %v", got)
	}
}

func TestServer_HealthCheckOverNetwork(t *testing.T) {
	k := kb.New(t.TempDir())
	if err := k.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := NewServer(helpdesk.NewMemoryStore(), k)
	if err := s.Start(0, 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer s.Stop()

	conn, err := grpc.NewClient(fmt.Sprintf("127.0.0.1:%d", s.Addr().(*net.TCPAddr).Port), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ServiceName})
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v", resp.GetStatus())
	}
}
