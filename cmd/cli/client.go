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

package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-resty/resty/v2"
)

func apiBaseURL() string {
	if u := os.Getenv("SUPPORT_AGENT_API_URL"); u != "" {
		return u
	}
	return "http://localhost:8080"
}

// apiClient support-agent HTTP API 客户端
type apiClient struct {
	rc *resty.Client
}

func newAPIClient(baseURL, token string) *apiClient {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(60 * time.Second).
		SetHeader("Content-Type", "application/json")
	if token != "" {
		rc.SetAuthToken(token)
	}
	return &apiClient{rc: rc}
}

func (c *apiClient) get(path string, query map[string]string) (interface{}, error) {
	var out interface{}
	resp, err := c.rc.R().
		SetQueryParams(query).
		SetResult(&out).
		Get(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %d %s", path, resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (c *apiClient) post(path string, body interface{}) (interface{}, error) {
	var out interface{}
	resp, err := c.rc.R().
		SetBody(body).
		SetResult(&out).
		Post(path)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK && resp.StatusCode() != http.StatusCreated {
		return nil, fmt.Errorf("POST %s: %d %s", path, resp.StatusCode(), resp.String())
	}
	return out, nil
}

func (c *apiClient) health() (interface{}, error) {
	return c.get("/api/health", nil)
}

func (c *apiClient) listCustomers() (interface{}, error) {
	return c.get("/api/customers", nil)
}

func (c *apiClient) createCustomer(name, email, company string) (interface{}, error) {
	return c.post("/api/customers", map[string]string{"name": name, "email": email, "company": company})
}

func (c *apiClient) sendMessage(customerID, text string) (interface{}, error) {
	return c.post("/api/customers/"+customerID+"/messages", map[string]string{"text": text})
}

func (c *apiClient) approve(customerID, draft string) (interface{}, error) {
	return c.post("/api/customers/"+customerID+"/approve", map[string]string{"draft_text": draft})
}

func (c *apiClient) latestRun(customerID string) (interface{}, error) {
	return c.get("/api/customers/"+customerID+"/latest-agent-run", nil)
}

func (c *apiClient) listTickets(status string) (interface{}, error) {
	var query map[string]string
	if status != "" {
		query = map[string]string{"status": status}
	}
	return c.get("/api/tickets", query)
}

func prettyJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
