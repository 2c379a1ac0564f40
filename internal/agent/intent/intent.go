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

// Package intent 将客户消息归类为固定的九种意图之一
package intent

import "strings"

// Intent 客户消息意图
type Intent string

const (
	PricingInquiry    Intent = "pricing_inquiry"
	TechnicalSupport  Intent = "technical_support"
	BillingIssue      Intent = "billing_issue"
	FeatureRequest    Intent = "feature_request"
	BugReport         Intent = "bug_report"
	AccountHelp       Intent = "account_help"
	IntegrationHelp   Intent = "integration_help"
	GeneralQuestion   Intent = "general_question"
	EscalationRequest Intent = "escalation_request"
)

// All 全部意图，顺序即提示词中的列举顺序
var All = []Intent{
	PricingInquiry,
	TechnicalSupport,
	BillingIssue,
	FeatureRequest,
	BugReport,
	AccountHelp,
	IntegrationHelp,
	GeneralQuestion,
	EscalationRequest,
}

// Parse 解析意图标签；未知标签返回 false
func Parse(s string) (Intent, bool) {
	s = strings.TrimSpace(s)
	for _, in := range All {
		if string(in) == s {
			return in, true
		}
	}
	return "", false
}

// String 实现 fmt.Stringer
func (i Intent) String() string { return string(i) }

// Source 分类结果来源
type Source string

const (
	SourceLLM     Source = "llm"
	SourceKeyword Source = "keyword"
)

// Result 分类结果
type Result struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// rule 关键词规则：任一关键词作为子串出现即命中
type rule struct {
	keywords   []string
	intent     Intent
	confidence float64
}

// rules 按顺序匹配，先命中者胜出
var rules = []rule{
	{[]string{"price", "pricing", "cost", "plan", "subscription", "trial"}, PricingInquiry, 0.7},
	{[]string{"bug", "error", "broken", "not working", "crash", "fix"}, BugReport, 0.7},
	{[]string{"integrate", "api", "webhook", "connect", "sync"}, IntegrationHelp, 0.7},
	{[]string{"bill", "invoice", "payment", "charge", "refund"}, BillingIssue, 0.7},
	{[]string{"feature", "request", "add", "would like", "suggestion"}, FeatureRequest, 0.6},
	{[]string{"account", "password", "login", "profile", "settings"}, AccountHelp, 0.7},
	{[]string{"help", "support", "issue", "problem"}, TechnicalSupport, 0.6},
	{[]string{"manager", "escalate", "supervisor", "complaint"}, EscalationRequest, 0.8},
}

// fallbackConfidence 无规则命中时的置信度
const fallbackConfidence = 0.5

// ClassifyKeywords 确定性关键词分类，不依赖任何外部服务
func ClassifyKeywords(text string) Result {
	lower := strings.ToLower(text)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return Result{Intent: r.intent, Confidence: r.confidence, Source: SourceKeyword}
			}
		}
	}
	return Result{Intent: GeneralQuestion, Confidence: fallbackConfidence, Source: SourceKeyword}
}
