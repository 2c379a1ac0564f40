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
	"testing"
	"unicode/utf8"
)

func TestSplitSections_Headings(t *testing.T) {
	doc := "Welcome to the product handbook for new customers.\n" +
		"# Pricing\nPlans start at ten dollars.\n" +
		"## Student Discount\nStudents get fifty percent off.\n" +
		"#### Not a heading\nstill student text\n" +
		"### Trials\nFourteen day trial."
	secs := SplitSections(doc)
	if len(secs) != 4 {
		t.Fatalf("sections: got %d (%+v)", len(secs), secs)
	}
	if secs[0].Heading != DefaultHeading {
		t.Errorf("first heading: %q", secs[0].Heading)
	}
	if secs[1].Heading != "Pricing" || secs[1].Body != "Plans start at ten dollars." {
		t.Errorf("pricing section: %+v", secs[1])
	}
	if secs[2].Heading != "Student Discount" || !strings.Contains(secs[2].Body, "#### Not a heading") {
		t.Errorf("level-4 marker must stay in body: %+v", secs[2])
	}
	if secs[3].Heading != "Trials" {
		t.Errorf("trials heading: %q", secs[3].Heading)
	}
}

func TestSplitSections_HashWithoutSpace(t *testing.T) {
	secs := SplitSections("intro text here\n#hashtag line\nmore")
	if len(secs) != 1 {
		t.Fatalf("#hashtag should not start a section, got %d", len(secs))
	}
}

func TestMarkdownSplitter_DropsShortBodies(t *testing.T) {
	doc := "# Short\ntoo short\n# Long Enough\nThis body has more than twenty characters."
	chunks, err := NewMarkdownSplitter().Split(doc, nil)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Heading != "Long Enough" {
		t.Fatalf("chunks: %+v", chunks)
	}
}

func TestMarkdownSplitter_LongSectionContinuation(t *testing.T) {
	para := strings.Repeat("word ", 60) // 300 chars incl. trailing space
	body := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)
	doc := "## Guide\n" + body
	chunks, err := NewMarkdownSplitter().Split(doc, nil)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 sub-chunks, got %d", len(chunks))
	}
	if chunks[0].Heading != "Guide" {
		t.Errorf("first heading: %q", chunks[0].Heading)
	}
	for _, c := range chunks[1:] {
		if c.Heading != "Guide (cont.)" {
			t.Errorf("continuation heading: %q", c.Heading)
		}
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("index %d: got %d", i, c.Index)
		}
	}
}

func TestPackParagraphs(t *testing.T) {
	a := strings.Repeat("a", 200)
	b := strings.Repeat("b", 200)
	c := strings.Repeat("c", 200)
	got := PackParagraphs(a+"\n\n"+b+"\n\n"+c, 500)
	if len(got) != 2 {
		t.Fatalf("expected 2 packed chunks, got %d", len(got))
	}
	if got[0] != a+"\n\n"+b {
		t.Errorf("first chunk should join a and b")
	}
	for _, s := range got {
		if utf8.RuneCountInString(s) > 500 {
			t.Errorf("chunk exceeds cap: %d", len(s))
		}
	}

	huge := strings.Repeat("x", 700)
	got = PackParagraphs(huge, 500)
	if len(got) != 1 || got[0] != huge {
		t.Errorf("single oversized paragraph should stay whole")
	}
}

func TestEngine_Split(t *testing.T) {
	e := NewEngine()
	if _, err := e.Split("x", "missing", nil); err == nil {
		t.Fatal("expected error for unknown splitter")
	}
	names := e.GetSplitters()
	if len(names) != 1 || names[0] != "markdown" {
		t.Fatalf("splitters: %v", names)
	}
	if _, err := e.Split("one paragraph\n\nanother paragraph", "structural", nil); err == nil {
		t.Fatal("structural splitter is not registered")
	}
	chunks, err := e.Split("# Doc\n\n## Setup\n\nInstall the desktop client and sign in with your work email.\n", "markdown", nil)
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	if len(chunks) != 1 || chunks[0].Heading != "Setup" {
		t.Fatalf("markdown split: %+v", chunks)
	}
}
