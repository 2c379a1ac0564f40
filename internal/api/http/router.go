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

package http

import (
	"context"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/jwt"

	"support-agent/internal/api/http/middleware"
)

// Router HTTP 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	auth       *jwt.HertzJWTMiddleware
	rateLimit  int
}

// NewRouter 创建新的 HTTP 路由器
func NewRouter(handler *Handler, mw *middleware.Middleware) *Router {
	return &Router{handler: handler, middleware: mw}
}

// SetAuth 启用 JWT：审批、写动作、工单变更与知识库重载需登录
func (r *Router) SetAuth(auth *jwt.HertzJWTMiddleware) {
	r.auth = auth
}

// SetRateLimit 设置全局限流（每秒请求数）
func (r *Router) SetRateLimit(rps int) {
	r.rateLimit = rps
}

// Build 创建 Hertz 服务并注册路由
func (r *Router) Build(addr string, opts ...config.Option) *server.Hertz {
	opts = append([]config.Option{server.WithHostPorts(addr)}, opts...)
	h := server.Default(opts...)
	h.Use(r.middleware.CORS())
	if r.rateLimit > 0 {
		h.Use(r.middleware.RateLimit(r.rateLimit))
	}

	h.OPTIONS("/*path", func(ctx context.Context, c *app.RequestContext) {
		c.Status(consts.StatusNoContent)
	})
	h.GET("/health", r.handler.HealthCheck)
	h.GET("/metrics", r.handler.Metrics)

	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)

	// 需要运维登录的写操作
	protected := []app.HandlerFunc{}
	if r.auth != nil {
		api.POST("/auth/login", r.auth.LoginHandler)
		api.GET("/auth/refresh", r.auth.RefreshHandler)
		protected = append(protected, r.auth.MiddlewareFunc())
	}
	guard := func(fn app.HandlerFunc) []app.HandlerFunc {
		return append(append([]app.HandlerFunc{}, protected...), fn)
	}

	customers := api.Group("/customers")
	{
		customers.GET("", r.handler.ListCustomers)
		customers.POST("", guard(r.handler.CreateCustomer)...)
		customers.GET("/:id/messages", r.handler.ListMessages)
		customers.POST("/:id/messages", r.handler.CreateMessage)
		customers.POST("/:id/approve", guard(r.handler.Approve)...)
		customers.GET("/:id/latest-agent-run", r.handler.LatestRun)
		customers.GET("/:id/tickets", r.handler.ListCustomerTickets)
		customers.POST("/:id/tickets", guard(r.handler.CreateTicket)...)
		customers.POST("/:id/tickets/:ticket_id/close", guard(r.handler.CloseCustomerTicket)...)
	}

	tickets := api.Group("/tickets")
	{
		tickets.GET("", r.handler.ListTickets)
		tickets.POST("/:id/close", guard(r.handler.CloseTicket)...)
	}

	api.POST("/agent-runs/:id/execute-action", guard(r.handler.ExecuteAction)...)

	knowledge := api.Group("/kb")
	{
		knowledge.GET("/search", r.handler.KBSearch)
		knowledge.POST("/reload", guard(r.handler.KBReload)...)
	}
	return h
}
