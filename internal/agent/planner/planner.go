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

// Package planner 根据意图生成确定性的动作计划
package planner

import (
	"support-agent/internal/agent/intent"
)

const (
	titleMaxRunes   = 80
	reasonMaxRunes  = 150
	generalMaxRunes = 100
)

// 各意图使用的知识库查询
const (
	pricingQuery       = "pricing plans cost subscription student discount"
	bugQuery           = "troubleshooting error fix"
	integrationQuery   = "integration api webhook connect 401 error"
	billingQuery       = "billing invoice payment refund account"
	accountQuery       = "account password login profile settings security"
	technicalQuery     = "troubleshooting help support"
	generateDesc       = "Generate AI response based on gathered context"
	profileDescription = "Fetch customer profile and history"
)

// ticketTemplate create_ticket 步骤模板
type ticketTemplate struct {
	description string
	titlePrefix string
	priority    string
	category    string
}

// builder 追加步骤并维护连续步骤号
type builder struct {
	plan       Plan
	customerID int64
}

func (b *builder) add(action Action, description string, params map[string]any) {
	if params == nil {
		params = map[string]any{}
	}
	s := PlanStep{
		Step:        len(b.plan) + 1,
		Action:      action,
		Type:        action.Kind(),
		Description: description,
		Params:      params,
	}
	if s.Type == KindWrite {
		s.Status = StatusPending
	}
	b.plan = append(b.plan, s)
}

func (b *builder) openTickets(description string) {
	b.add(ActionGetOpenTickets, description, map[string]any{"customer_id": b.customerID})
}

func (b *builder) searchKB(description, query string) {
	b.add(ActionSearchKB, description, map[string]any{"query": query})
}

func (b *builder) createTicket(t ticketTemplate, text string) {
	b.add(ActionCreateTicket, t.description, map[string]any{
		"customer_id": b.customerID,
		"title":       t.titlePrefix + truncateRunes(text, titleMaxRunes),
		"description": shortText(text),
		"priority":    t.priority,
		"category":    t.category,
	})
}

// Build 由意图、消息文本与客户 ID 生成计划；纯函数
func Build(in intent.Intent, text string, customerID int64) Plan {
	b := &builder{customerID: customerID}
	b.add(ActionGetCustomerProfile, profileDescription, map[string]any{"customer_id": customerID})

	switch in {
	case intent.PricingInquiry:
		b.searchKB("Search knowledge base for pricing information", pricingQuery)

	case intent.BugReport:
		b.openTickets("Check for existing tickets from customer")
		b.searchKB("Search troubleshooting guides", bugQuery)
		b.createTicket(ticketTemplate{"Create support ticket for bug report", "Bug Report: ", "high", "bug"}, text)

	case intent.IntegrationHelp:
		b.searchKB("Search integration documentation", integrationQuery)
		b.openTickets("Check for existing integration tickets")
		b.createTicket(ticketTemplate{"Create integration support ticket", "Integration Help: ", "high", "integration"}, text)

	case intent.BillingIssue:
		b.openTickets("Check for existing billing tickets")
		b.searchKB("Search billing documentation", billingQuery)
		b.createTicket(ticketTemplate{"Create billing support ticket", "Billing Issue: ", "medium", "billing"}, text)

	case intent.AccountHelp:
		b.searchKB("Search account management docs", accountQuery)

	case intent.TechnicalSupport:
		b.openTickets("Check existing support tickets")
		b.searchKB("Search troubleshooting guides", technicalQuery)
		b.createTicket(ticketTemplate{"Create technical support ticket", "Support Request: ", "medium", "support"}, text)

	case intent.FeatureRequest:
		b.openTickets("Check for similar feature requests")
		b.createTicket(ticketTemplate{"Create feature request ticket", "Feature Request: ", "low", "feature"}, text)

	case intent.EscalationRequest:
		b.openTickets("Review all open tickets")
		b.add(ActionEscalateToHuman, "Escalate to human support agent", map[string]any{
			"customer_id": customerID,
			"reason":      shortText(text),
		})

	default:
		b.searchKB("Search knowledge base for relevant info", truncateRunes(text, generalMaxRunes))
	}

	b.add(ActionGenerateResponse, generateDesc, nil)
	return b.plan
}

// truncateRunes 按字符截断
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// shortText 截断到 150 字符，超长时追加 "..."
func shortText(s string) string {
	t := truncateRunes(s, reasonMaxRunes)
	if t != s {
		return t + "..."
	}
	return t
}
