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

package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/hertz-contrib/jwt"
)

// IdentityKey JWT 中的运维人员标识
const IdentityKey = "operator"

// AuthConfig 运维登录配置
type AuthConfig struct {
	Key         string        // HMAC 签名密钥
	OperatorKey string        // 登录口令
	Timeout     time.Duration // token 有效期
	MaxRefresh  time.Duration
}

type loginRequest struct {
	Operator string `json:"operator"`
	Key      string `json:"key"`
}

// NewAuth 创建 JWT 中间件：POST /api/auth/login 以运维口令换取 token，审批与写动作路由需携带 Bearer token
func NewAuth(cfg AuthConfig) (*jwt.HertzJWTMiddleware, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("jwt_key 未配置")
	}
	if cfg.OperatorKey == "" {
		return nil, fmt.Errorf("operator_key 未配置")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Hour
	}
	if cfg.MaxRefresh <= 0 {
		cfg.MaxRefresh = cfg.Timeout
	}
	return jwt.New(&jwt.HertzJWTMiddleware{
		Realm:       "support-agent",
		Key:         []byte(cfg.Key),
		Timeout:     cfg.Timeout,
		MaxRefresh:  cfg.MaxRefresh,
		IdentityKey: IdentityKey,
		PayloadFunc: func(data interface{}) jwt.MapClaims {
			if name, ok := data.(string); ok {
				return jwt.MapClaims{IdentityKey: name}
			}
			return jwt.MapClaims{}
		},
		IdentityHandler: func(ctx context.Context, c *app.RequestContext) interface{} {
			claims := jwt.ExtractClaims(ctx, c)
			return claims[IdentityKey]
		},
		Authenticator: func(ctx context.Context, c *app.RequestContext) (interface{}, error) {
			var req loginRequest
			if err := c.BindJSON(&req); err != nil || req.Operator == "" || req.Key == "" {
				return nil, jwt.ErrMissingLoginValues
			}
			if subtle.ConstantTimeCompare([]byte(req.Key), []byte(cfg.OperatorKey)) != 1 {
				return nil, jwt.ErrFailedAuthentication
			}
			return req.Operator, nil
		},
		Unauthorized: func(ctx context.Context, c *app.RequestContext, code int, message string) {
			c.JSON(code, map[string]string{"error": message})
		},
		TokenLookup:   "header: Authorization, query: token",
		TokenHeadName: "Bearer",
		TimeFunc:      time.Now,
	})
}
