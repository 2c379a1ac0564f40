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

package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 API/CLI 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		RunTotal, ToolTotal, ToolDuration,
		WriteActionTotal, ClassifyTotal, ReplyTotal,
		KBSearchDuration, KBChunks,
		RateLimitWaitSeconds, BreakerState,
	)
}

// RunTotal Agent Run 总数（按意图）
var RunTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "support_agent_run_total",
		Help: "Agent Run 总数（按意图）",
	},
	[]string{"intent"},
)

// ToolTotal 工具调用总数
var ToolTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "support_agent_tool_total",
		Help: "工具调用总数",
	},
	[]string{"tool", "success"},
)

// ToolDuration 工具调用耗时（秒）
var ToolDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "support_agent_tool_duration_seconds",
		Help:    "工具调用耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"tool"},
)

// WriteActionTotal 审批后写动作执行总数
var WriteActionTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "support_agent_write_action_total",
		Help: "写动作执行总数",
	},
	[]string{"action", "success"},
)

// ClassifyTotal 意图分类次数（按来源 llm | keyword）
var ClassifyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "support_agent_classify_total",
		Help: "意图分类次数（按来源）",
	},
	[]string{"source"},
)

// ReplyTotal 回复生成次数（按来源 llm | template）
var ReplyTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "support_agent_reply_total",
		Help: "回复生成次数（按来源）",
	},
	[]string{"source"},
)

// KBSearchDuration 知识库检索耗时（秒）
var KBSearchDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "support_agent_kb_search_duration_seconds",
		Help:    "知识库检索耗时（秒）",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
	},
)

// KBChunks 当前已加载的知识库分块数
var KBChunks = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "support_agent_kb_chunks",
		Help: "当前已加载的知识库分块数",
	},
)

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "support_agent_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "provider"},
)

// BreakerState LLM 熔断器状态（0 closed, 1 half-open, 2 open）
var BreakerState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "support_agent_breaker_state",
		Help: "LLM 熔断器状态",
	},
	[]string{"name"},
)

// BoolLabel 将 bool 转为标签值
func BoolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
