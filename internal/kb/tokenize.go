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
	"strings"
	"unicode"
)

// stopWords 检索时忽略的常用词
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a an the is are was were be been being
		have has had do does did will would could
		should may might must shall can need dare
		to of in for on with at by from as
		into through during before after above below
		between under again further then once here
		there when where why how all each few
		more most other some such no nor not
		only own same so than too very just
		and but if or because until while what
		which who whom this that these those am
		i me my myself we our ours ourselves
		you your yours yourself yourselves he him
		his himself she her hers herself it its
		itself they them their theirs themselves`) {
		stopWords[w] = struct{}{}
	}
}

// IsStopWord 是否为停用词
func IsStopWord(w string) bool {
	_, ok := stopWords[w]
	return ok
}

// Tokenize 小写化后提取独立的纯 ASCII 字母单词（两侧为非单词字符），
// 过滤停用词与长度不超过 2 的词。重复词保留，顺序与原文一致。
func Tokenize(text string) []string {
	lower := strings.ToLower(text)
	var terms []string
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := lower[start:end]
		start = -1
		if !isASCIILower(word) || len(word) <= 2 || IsStopWord(word) {
			return
		}
		terms = append(terms, word)
	}
	for i, r := range lower {
		if isWordRune(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(lower))
	return terms
}

// termSet 去重后的词集合
func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range Tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

// isWordRune 单词字符：字母、数字、下划线及组合符号
func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}

func isASCIILower(w string) bool {
	for i := 0; i < len(w); i++ {
		if w[i] < 'a' || w[i] > 'z' {
			return false
		}
	}
	return w != ""
}
