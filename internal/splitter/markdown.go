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
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultHeading 文档开头无标题时使用的标题
const DefaultHeading = "Introduction"

// ContinuationSuffix 长段落拆分后续块的标题后缀
const ContinuationSuffix = " (cont.)"

// Section 按标题切分出的一节
type Section struct {
	Heading string
	Body    string
}

// MarkdownSplitter 按 #、##、### 标题切分，过短的节丢弃，过长的节按段落二次打包
type MarkdownSplitter struct {
	name string
}

// NewMarkdownSplitter 创建 Markdown 标题切片器
func NewMarkdownSplitter() *MarkdownSplitter {
	return &MarkdownSplitter{name: "markdown_splitter"}
}

// Name 返回切片器名称
func (s *MarkdownSplitter) Name() string {
	return s.name
}

// Split 执行标题切片。选项：min_body（默认 20）、max_section（默认 600）、chunk_size（默认 500）
func (s *MarkdownSplitter) Split(content string, options map[string]interface{}) ([]Chunk, error) {
	minBody := intOption(options, "min_body", 20)
	maxSection := intOption(options, "max_section", 600)
	chunkSize := intOption(options, "chunk_size", 500)

	var chunks []Chunk
	for _, sec := range SplitSections(content) {
		bodyLen := utf8.RuneCountInString(sec.Body)
		if sec.Body == "" || bodyLen < minBody {
			continue
		}
		if bodyLen <= maxSection {
			chunks = append(chunks, Chunk{Heading: sec.Heading, Content: sec.Body, Index: len(chunks)})
			continue
		}
		for i, part := range PackParagraphs(sec.Body, chunkSize) {
			heading := sec.Heading
			if i > 0 {
				heading += ContinuationSuffix
			}
			chunks = append(chunks, Chunk{Heading: heading, Content: part, Index: len(chunks)})
		}
	}
	return chunks, nil
}

// SplitSections 在每个以 1~3 个 '#' 加空白开头的行前切分，返回各节标题与正文
func SplitSections(content string) []Section {
	var sections []Section
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' && isHeadingStart(content[i+1:]) {
			if sec, ok := parseSection(content[start:i]); ok {
				sections = append(sections, sec)
			}
			start = i + 1
		}
	}
	if sec, ok := parseSection(content[start:]); ok {
		sections = append(sections, sec)
	}
	return sections
}

// headingLevel 返回行首连续 '#' 数量，后面须紧跟空白，且数量为 1~3；否则返回 0
func headingLevel(s string) int {
	n := 0
	for n < len(s) && s[n] == '#' {
		n++
	}
	if n == 0 || n > 3 || n >= len(s) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s[n:])
	if !unicode.IsSpace(r) {
		return 0
	}
	return n
}

func isHeadingStart(s string) bool {
	return headingLevel(s) > 0
}

// parseSection 去除首尾空白后解析标题行；空节返回 false
func parseSection(raw string) (Section, bool) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Section{}, false
	}
	level := headingLevel(text)
	if level == 0 {
		return Section{Heading: DefaultHeading, Body: text}, true
	}
	rest := strings.TrimLeftFunc(text[level:], unicode.IsSpace)
	if rest == "" {
		return Section{Heading: DefaultHeading, Body: text}, true
	}
	line, body, _ := strings.Cut(rest, "\n")
	return Section{
		Heading: strings.TrimSpace(line),
		Body:    strings.TrimSpace(body),
	}, true
}
