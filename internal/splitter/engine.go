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

package splitter

import (
	"fmt"
	"sort"
)

// Chunk 切片结果
type Chunk struct {
	Heading string
	Content string
	Index   int
}

// Splitter 切片器接口
type Splitter interface {
	Split(content string, options map[string]interface{}) ([]Chunk, error)
	Name() string
}

// Engine 切片引擎
type Engine struct {
	name      string
	splitters map[string]Splitter
}

// NewEngine 创建新的切片引擎，内置 markdown 切片器
func NewEngine() *Engine {
	engine := &Engine{
		name:      "splitter_engine",
		splitters: make(map[string]Splitter),
	}
	engine.registerSplitters()
	return engine
}

// Name 返回引擎名称
func (e *Engine) Name() string {
	return e.name
}

// registerSplitters 注册切片器
func (e *Engine) registerSplitters() {
	e.splitters["markdown"] = NewMarkdownSplitter()
}

// GetSplitter 获取切片器
func (e *Engine) GetSplitter(name string) (Splitter, error) {
	splitter, exists := e.splitters[name]
	if !exists {
		return nil, fmt.Errorf("splitter not found: %s", name)
	}
	return splitter, nil
}

// Split 执行切片
func (e *Engine) Split(content string, splitterName string, options map[string]interface{}) ([]Chunk, error) {
	splitter, err := e.GetSplitter(splitterName)
	if err != nil {
		return nil, err
	}

	chunks, err := splitter.Split(content, options)
	if err != nil {
		return nil, fmt.Errorf("split failed: %w", err)
	}

	return chunks, nil
}

// GetSplitters 获取所有切片器名称（已排序）
func (e *Engine) GetSplitters() []string {
	splitterNames := make([]string, 0, len(e.splitters))
	for name := range e.splitters {
		splitterNames = append(splitterNames, name)
	}
	sort.Strings(splitterNames)
	return splitterNames
}

// intOption 读取 int 选项，兼容 JSON 解码得到的 float64
func intOption(options map[string]interface{}, key string, def int) int {
	switch v := options[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}
