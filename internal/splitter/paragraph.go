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
	"unicode/utf8"
)

// PackParagraphs 按 "\n\n" 切分段落并顺序合并，合并后长度（含 "\n\n" 分隔）不超过 maxChars；
// 单个超长段落独立成块。长度按字符（rune）计。无可用段落时返回前 maxChars 个字符。
func PackParagraphs(text string, maxChars int) []string {
	var chunks []string
	var current strings.Builder
	currentLen := 0

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		paraLen := utf8.RuneCountInString(para)

		if currentLen+paraLen+2 <= maxChars {
			if current.Len() > 0 {
				current.WriteString("\n\n")
				currentLen += 2
			}
			current.WriteString(para)
			currentLen += paraLen
			continue
		}

		if current.Len() > 0 {
			chunks = append(chunks, current.String())
		}
		current.Reset()
		current.WriteString(para)
		currentLen = paraLen
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	if len(chunks) == 0 {
		return []string{truncateRunes(text, maxChars)}
	}
	return chunks
}

// truncateRunes 截取前 n 个字符
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
