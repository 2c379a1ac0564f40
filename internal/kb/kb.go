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

// Package kb 内存知识库：按标题切分 Markdown 文章，关键词打分检索
package kb

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"support-agent/internal/splitter"
	"support-agent/pkg/errors"
	"support-agent/pkg/log"
	"support-agent/pkg/metrics"
)

// DefaultTopK 默认返回条数
const DefaultTopK = 3

// State 知识库生命周期状态
type State int

const (
	StateUninitialized State = iota
	StateLoaded
)

func (s State) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "uninitialized"
}

// Chunk 可检索的文章分块，加载后只读
type Chunk struct {
	SourceFile string
	Heading    string
	Content    string
	ChunkID    string

	contentLower string
	contentTerms map[string]struct{}
	headingTerms map[string]struct{}
}

// SearchResult 检索结果
type SearchResult struct {
	SourceFile string  `json:"source_file"`
	Heading    string  `json:"heading"`
	Snippet    string  `json:"snippet"`
	Score      float64 `json:"score"`
}

func newChunk(sourceFile, heading, content string) *Chunk {
	return &Chunk{
		SourceFile:   sourceFile,
		Heading:      heading,
		Content:      content,
		ChunkID:      sourceFile + ":" + heading,
		contentLower: strings.ToLower(content),
		contentTerms: termSet(content),
		headingTerms: termSet(heading),
	}
}

// Option 构造选项
type Option func(*KnowledgeBase)

// WithLogger 设置日志
func WithLogger(l *log.Logger) Option {
	return func(k *KnowledgeBase) { k.logger = l }
}

// KnowledgeBase 内存知识库；Load/Reload 互斥，检索并发安全
type KnowledgeBase struct {
	dir      string
	engine   *splitter.Engine
	logger   *log.Logger
	mu       sync.RWMutex
	state    State
	chunks   []*Chunk
	loadedAt time.Time
}

// New 创建未加载的知识库
func New(dir string, opts ...Option) *KnowledgeBase {
	k := &KnowledgeBase{
		dir:    dir,
		engine: splitter.NewEngine(),
		logger: log.Nop(),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Dir 文章目录
func (k *KnowledgeBase) Dir() string { return k.dir }

// State 当前状态
func (k *KnowledgeBase) State() State {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.state
}

// LoadedAt 最近一次加载时间
func (k *KnowledgeBase) LoadedAt() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.loadedAt
}

// Len 分块数
func (k *KnowledgeBase) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.chunks)
}

// Chunks 返回分块副本（按文件名、节顺序）
func (k *KnowledgeBase) Chunks() []Chunk {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]Chunk, 0, len(k.chunks))
	for _, c := range k.chunks {
		out = append(out, Chunk{SourceFile: c.SourceFile, Heading: c.Heading, Content: c.Content, ChunkID: c.ChunkID})
	}
	return out
}

// Load 加载目录下全部 *.md；已加载时为空操作。目录不存在视为空知识库
func (k *KnowledgeBase) Load() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.state == StateLoaded {
		return nil
	}
	return k.loadLocked()
}

// Reload 丢弃当前分块并重新加载
func (k *KnowledgeBase) Reload() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadLocked()
}

func (k *KnowledgeBase) loadLocked() error {
	chunks, err := k.readDir()
	if err != nil {
		return err
	}
	k.chunks = chunks
	k.state = StateLoaded
	k.loadedAt = time.Now()
	metrics.KBChunks.Set(float64(len(chunks)))
	k.logger.Info("知识库加载完成", "dir", k.dir, "chunks", len(chunks))
	return nil
}

func (k *KnowledgeBase) readDir() ([]*Chunk, error) {
	entries, err := os.ReadDir(k.dir)
	if err != nil {
		if os.IsNotExist(err) {
			k.logger.Warn("知识库目录不存在", "dir", k.dir)
			return nil, nil
		}
		return nil, errors.Wrapf(err, "读取知识库目录 %s 失败", k.dir)
	}

	var chunks []*Chunk
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(k.dir, e.Name()))
		if err != nil {
			k.logger.Error("读取知识库文章失败", "file", e.Name(), "error", err)
			continue
		}
		fileChunks, err := k.chunkDocument(e.Name(), string(data))
		if err != nil {
			k.logger.Error("切分知识库文章失败", "file", e.Name(), "error", err)
			continue
		}
		k.logger.Debug("已加载知识库文章", "file", e.Name(), "chunks", len(fileChunks))
		chunks = append(chunks, fileChunks...)
	}
	return chunks, nil
}

// chunkDocument 将单篇文章切为分块
func (k *KnowledgeBase) chunkDocument(name, content string) ([]*Chunk, error) {
	parts, err := k.engine.Split(content, "markdown", nil)
	if err != nil {
		return nil, err
	}
	out := make([]*Chunk, 0, len(parts))
	for _, p := range parts {
		out = append(out, newChunk(name, p.Heading, p.Content))
	}
	return out, nil
}

// AddDocument 直接加入一篇文章（不落盘），用于测试与运行期补充
func (k *KnowledgeBase) AddDocument(name, content string) error {
	chunks, err := k.chunkDocument(name, content)
	if err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.chunks = append(k.chunks, chunks...)
	k.state = StateLoaded
	metrics.KBChunks.Set(float64(len(k.chunks)))
	return nil
}

// Search 关键词检索，按得分降序返回前 topK 条（topK<=0 使用 DefaultTopK）。
// 未加载时先加载；空查询或分词后无有效词返回空列表
func (k *KnowledgeBase) Search(query string, topK int) []SearchResult {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if k.State() != StateLoaded {
		if err := k.Load(); err != nil {
			k.logger.Error("知识库加载失败", "error", err)
		}
	}

	start := time.Now()
	defer func() { metrics.KBSearchDuration.Observe(time.Since(start).Seconds()) }()

	terms := Tokenize(query)
	if len(terms) == 0 {
		return []SearchResult{}
	}

	k.mu.RLock()
	defer k.mu.RUnlock()

	results := make([]SearchResult, 0)
	for _, c := range k.chunks {
		score := scoreChunk(c, terms)
		if score <= 0 {
			continue
		}
		results = append(results, SearchResult{
			SourceFile: c.SourceFile,
			Heading:    c.Heading,
			Snippet:    makeSnippet(c.Content, terms),
			Score:      score,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Score = roundScore(results[i].Score)
	}
	return results
}

// 进程级默认知识库，由启动流程显式 Init
var (
	defaultMu sync.Mutex
	defaultKB *KnowledgeBase
)

// DefaultDir 未 Init 时默认知识库使用的目录
const DefaultDir = "kb"

// Init 创建并加载进程级默认知识库，替换已有实例
func Init(dir string, opts ...Option) (*KnowledgeBase, error) {
	k := New(dir, opts...)
	err := k.Load()
	defaultMu.Lock()
	defaultKB = k
	defaultMu.Unlock()
	return k, err
}

// Default 返回进程级默认知识库；未 Init 时返回基于 DefaultDir 的未加载实例（首次检索时加载）
func Default() *KnowledgeBase {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultKB == nil {
		defaultKB = New(DefaultDir)
	}
	return defaultKB
}
