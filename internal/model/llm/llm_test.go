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

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClient_Chat(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"intent\":\"bug_report\",\"confidence\":0.9}"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClientWithBaseURL("openai", "gpt-test", "sk-test", srv.URL)
	require.NoError(t, err)
	out, err := c.ChatWithContext(context.Background(), []Message{SystemMessage("sys"), UserMessage("hi")}, GenerateOptions{MaxTokens: 100, Temperature: 0.1})
	require.NoError(t, err)
	assert.Contains(t, out, "bug_report")
	assert.Equal(t, "gpt-test", got.Model)
	assert.Equal(t, 100, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
}

func TestOpenAIClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))
	defer srv.Close()

	c, err := NewOpenAIClientWithBaseURL("openai", "", "sk", srv.URL)
	require.NoError(t, err)
	_, err = c.Generate("hello", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()
	c, _ := NewOpenAIClientWithBaseURL("qwen", "", "sk", srv.URL)
	c.setRetryCount(0)
	_, err := c.Generate("hello", GenerateOptions{})
	require.Error(t, err)
	assert.Equal(t, "qwen", c.Provider())
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(context.Background(), "openai", "gpt", "", "")
	assert.Error(t, err, "missing api key")
	_, err = NewClient(context.Background(), "unknown", "gpt", "sk", "")
	assert.Error(t, err)
	c, err := NewClient(context.Background(), "openai", "gpt-4o-mini", "sk", "http://localhost")
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o-mini", c.Model())
}

func TestParseDefaultKey(t *testing.T) {
	p, m, err := ParseDefaultKey("openai.gpt_35_turbo")
	require.NoError(t, err)
	assert.Equal(t, "openai", p)
	assert.Equal(t, "gpt_35_turbo", m)
	_, _, err = ParseDefaultKey("openai")
	assert.Error(t, err)
}

// fakeClient 可编排返回值的 Client
type fakeClient struct {
	reply string
	err   error
	delay time.Duration
	calls int32
}

func (f *fakeClient) Generate(p string, o GenerateOptions) (string, error) {
	return f.GenerateWithContext(context.Background(), p, o)
}
func (f *fakeClient) GenerateWithContext(ctx context.Context, p string, o GenerateOptions) (string, error) {
	return f.ChatWithContext(ctx, []Message{UserMessage(p)}, o)
}
func (f *fakeClient) Chat(m []Message, o GenerateOptions) (string, error) {
	return f.ChatWithContext(context.Background(), m, o)
}
func (f *fakeClient) ChatWithContext(ctx context.Context, _ []Message, _ GenerateOptions) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}
func (f *fakeClient) Model() string    { return "fake-model" }
func (f *fakeClient) Provider() string { return "fake" }
func (f *fakeClient) SetModel(string)  {}
func (f *fakeClient) SetAPIKey(string) {}

func TestBreakerClient_OpensAfterFailures(t *testing.T) {
	inner := &fakeClient{err: errors.New("boom")}
	var transitions []string
	c := NewBreakerClient(inner, BreakerConfig{
		MaxFailures: 2,
		OpenTimeout: time.Minute,
		OnStateChange: func(_ string, from, to string) {
			transitions = append(transitions, from+"->"+to)
		},
	})

	for i := 0; i < 2; i++ {
		_, err := c.Generate("x", GenerateOptions{})
		require.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, "open", c.State())

	_, err := c.Generate("x", GenerateOptions{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.calls), "open breaker must not call inner client")
	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreakerClient_CallTimeout(t *testing.T) {
	inner := &fakeClient{reply: "late", delay: 200 * time.Millisecond}
	c := NewBreakerClient(inner, BreakerConfig{CallTimeout: 20 * time.Millisecond})
	_, err := c.Chat([]Message{UserMessage("x")}, GenerateOptions{})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorContains(t, err, context.DeadlineExceeded.Error())

	inner.delay = 0
	out, err := c.Chat([]Message{UserMessage("x")}, GenerateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "late", out)
}

func TestRateLimitedClient_PassThroughAndStats(t *testing.T) {
	rl := NewLLMRateLimiter(map[string]LLMLimitConfig{
		"fake": {TokensPerMinute: 600000, RequestsPerMinute: 6000, MaxConcurrent: 2},
	}, nil)
	inner := &fakeClient{reply: "ok"}
	c := NewRateLimitedClient(inner, rl)
	out, err := c.GenerateWithContext(context.Background(), "hello world", GenerateOptions{MaxTokens: 50})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	stats := rl.GetStats("fake")
	require.NotNil(t, stats)
	assert.Equal(t, 0, stats["current_concurrent"], "slot released after call")
	assert.Greater(t, stats["tokens_used_minute"].(int), 50)
	assert.Nil(t, rl.GetStats("other"))
}

func TestLLMRateLimiter_WaitRespectsContext(t *testing.T) {
	rl := NewLLMRateLimiter(map[string]LLMLimitConfig{"p": {MaxConcurrent: 1}}, nil)
	require.NoError(t, rl.Wait(context.Background(), "p", 1))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, "p", 1), "second caller blocks until ctx done")
	rl.Release("p")
	require.NoError(t, rl.Wait(context.Background(), "p", 1))
}

func TestLLMRateLimiter_TokenRequestLargerThanBurst(t *testing.T) {
	rl := NewLLMRateLimiter(map[string]LLMLimitConfig{"p": {TokensPerMinute: 60}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rl.Wait(ctx, "p", 10000))
}

// fakeChatModel 实现 eino model.BaseChatModel
type fakeChatModel struct {
	lastInput []*schema.Message
	lastOpts  *model.Options
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.lastInput = input
	m.lastOpts = model.GetCommonOptions(nil, opts...)
	return &schema.Message{Role: schema.Assistant, Content: "eino reply"}, nil
}

func (m *fakeChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestEinoClient_Chat(t *testing.T) {
	cm := &fakeChatModel{}
	c := NewEinoClientFromModel(cm, "gpt-4o-mini")
	out, err := c.ChatWithContext(context.Background(), []Message{SystemMessage("s"), UserMessage("u")}, GenerateOptions{MaxTokens: 200, Temperature: 0.7})
	require.NoError(t, err)
	assert.Equal(t, "eino reply", out)
	require.Len(t, cm.lastInput, 2)
	assert.Equal(t, schema.System, cm.lastInput[0].Role)
	assert.Equal(t, schema.User, cm.lastInput[1].Role)
	require.NotNil(t, cm.lastOpts.MaxTokens)
	assert.Equal(t, 200, *cm.lastOpts.MaxTokens)
	assert.Equal(t, "eino", c.Provider())
}
