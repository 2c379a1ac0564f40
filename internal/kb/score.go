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

package kb

import (
	"math"
	"strings"
	"unicode"
)

// 评分权重
const (
	headingTermWeight      = 5.0
	headingSubstringWeight = 3.0
	contentTermWeight      = 2.0
	occurrenceWeight       = 0.5
	occurrenceCap          = 3.0
	multiTermBoost         = 0.2
)

// 摘要参数
const (
	SnippetLength  = 200
	snippetLead    = 30
	snippetEdgeCut = 20
	snippetTailCut = 30
)

// scoreChunk 对单个分块按查询词打分；结果 <= 0 表示不相关
func scoreChunk(c *Chunk, queryTerms []string) float64 {
	contentLower := c.contentLower
	headingLower := strings.ToLower(c.Heading)

	score := 0.0
	for _, term := range queryTerms {
		if _, ok := c.headingTerms[term]; ok {
			score += headingTermWeight
		} else if strings.Contains(headingLower, term) {
			score += headingSubstringWeight
		}

		if _, ok := c.contentTerms[term]; ok {
			score += contentTermWeight
		}

		if strings.Contains(contentLower, term) {
			count := float64(strings.Count(contentLower, term))
			score += math.Min(count*occurrenceWeight, occurrenceCap)
		}
	}

	matched := 0
	for _, term := range queryTerms {
		if strings.Contains(contentLower, term) || strings.Contains(headingLower, term) {
			matched++
		}
	}
	if matched > 1 {
		score *= 1 + multiTermBoost*float64(matched-1)
	}
	return score
}

// makeSnippet 以第一个命中的查询词为中心截取摘要，按字符（rune）计
func makeSnippet(content string, queryTerms []string) string {
	runes := []rune(content)
	if len(runes) <= SnippetLength {
		return content
	}
	lower := make([]rune, len(runes))
	for i, r := range runes {
		lower[i] = unicode.ToLower(r)
	}

	start := 0
	for _, term := range queryTerms {
		if pos := indexRunes(lower, []rune(term)); pos >= 0 {
			start = pos - snippetLead
			if start < 0 {
				start = 0
			}
			break
		}
	}

	end := start + SnippetLength
	if end > len(runes) {
		end = len(runes)
	}
	snippet := runes[start:end]

	prefix := ""
	if start > 0 {
		if sp := indexRune(snippet, ' '); sp >= 0 && sp < snippetEdgeCut {
			snippet = snippet[sp+1:]
		}
		prefix = "..."
	}

	suffix := ""
	if start+SnippetLength < len(runes) {
		if sp := lastIndexRune(snippet, ' '); sp >= 0 && sp > len(snippet)-snippetTailCut {
			snippet = snippet[:sp]
		}
		suffix = "..."
	}
	return prefix + string(snippet) + suffix
}

// roundScore 保留 3 位小数
func roundScore(s float64) float64 {
	return math.Round(s*1000) / 1000
}

func indexRunes(s, sub []rune) int {
	if len(sub) == 0 {
		return 0
	}
outer:
	for i := 0; i+len(sub) <= len(s); i++ {
		for j := range sub {
			if s[i+j] != sub[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

func indexRune(s []rune, r rune) int {
	for i, c := range s {
		if c == r {
			return i
		}
	}
	return -1
}

func lastIndexRune(s []rune, r rune) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == r {
			return i
		}
	}
	return -1
}
