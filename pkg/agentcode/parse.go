// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package agentcode parses synthesized agent source into an ordered list of
// top-level declarations so a single task block can be replaced while every
// other byte of the file is preserved.
//
// Agent source is a Ruby DSL of the form:
//
//	agent "billing-bot" do
//	  description "Answers billing questions"
//
//	  task :summarize,
//	    inputs: { text: 'string' },
//	    outputs: { summary: 'string' } do |inputs|
//	    { summary: inputs[:text][0, 100] }
//	  end
//	end
//
// The parser does not understand the language. It splits the scope (the body
// of the outermost agent block, or the whole file) into declarations by
// indentation: a line at the scope's indent starts a new declaration unless it
// closes or continues the previous one, or the previous one still has an open
// string literal or bracket.
package agentcode

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrTaskNotFound is returned when a named task block does not exist.
var ErrTaskNotFound = errors.New("task not found")

// SegmentKind classifies a raw region of source text.
type SegmentKind int

const (
	// SegmentPreamble is everything up to and including the agent block opener.
	SegmentPreamble SegmentKind = iota
	// SegmentDeclaration is one top-level declaration inside the scope.
	SegmentDeclaration
	// SegmentGap holds blank and comment lines between declarations.
	SegmentGap
	// SegmentTrailer is the agent block closer and anything after it.
	SegmentTrailer
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentPreamble:
		return "preamble"
	case SegmentDeclaration:
		return "declaration"
	case SegmentGap:
		return "gap"
	case SegmentTrailer:
		return "trailer"
	default:
		return "unknown"
	}
}

// Segment is a contiguous run of source lines.
type Segment struct {
	Kind    SegmentKind
	Keyword string // declaration keyword, e.g. "task", "main", "description"
	Name    string // declared name for `task :name`, empty otherwise
	Text    string
}

// Document is parsed agent source. Concatenating the segment texts yields the
// original input.
type Document struct {
	Segments []Segment
	indent   string
}

var (
	wrapperRe   = regexp.MustCompile(`^(\s*)agent\b.*\bdo(\s*\|[^|]*\|)?\s*$`)
	keywordRe   = regexp.MustCompile(`^([a-z_][A-Za-z0-9_]*[?!]?)`)
	nameRe      = regexp.MustCompile(`^[a-z_][A-Za-z0-9_]*[?!]?\s*\(?\s*(?::([A-Za-z_][A-Za-z0-9_]*[?!]?)|"([^"]*)"|'([^']*)')`)
	heredocRe   = regexp.MustCompile(`<<[~-]?(['"]?)([A-Z_][A-Z0-9_]*)['"]?`)
	closerRe    = regexp.MustCompile(`^(end\b|[}\])]|\.|&&|\|\||rescue\b|ensure\b|else\b|elsif\b)`)
	continuedRe = regexp.MustCompile(`(,|\\|\(|\[|\{|\|[^|]*\||\bdo|\+|&&|\|\||=)\s*$`)
)

// Parse splits src into segments.
func Parse(src string) (*Document, error) {
	lines := splitLines(src)
	doc := &Document{}

	bodyStart, bodyEnd := 0, len(lines)
	wrapperIndent := ""
	for i, line := range lines {
		if m := wrapperRe.FindStringSubmatch(strings.TrimRight(line, "\r\n")); m != nil {
			wrapperIndent = m[1]
			bodyStart = i + 1
			bodyEnd = findCloser(lines, bodyStart, wrapperIndent)
			if bodyEnd < 0 {
				return nil, fmt.Errorf("agent block opened on line %d is never closed", i+1)
			}
			break
		}
	}
	if bodyStart > 0 {
		doc.Segments = append(doc.Segments, Segment{Kind: SegmentPreamble, Text: strings.Join(lines[:bodyStart], "")})
	}

	doc.indent = scopeIndent(lines[bodyStart:bodyEnd])
	doc.Segments = append(doc.Segments, parseScope(lines[bodyStart:bodyEnd], doc.indent)...)

	if bodyEnd < len(lines) {
		doc.Segments = append(doc.Segments, Segment{Kind: SegmentTrailer, Text: strings.Join(lines[bodyEnd:], "")})
	}
	return doc, nil
}

// parseScope groups scope lines into declarations and gaps.
func parseScope(lines []string, indent string) []Segment {
	var (
		out      []Segment
		cur      *Segment
		pending  []string // blank and comment lines not yet assigned
		heredocs []string // terminators still open
		lastCode string   // last non-blank line of the current declaration
		lex      literalState
	)

	flushPendingInto := func(seg *Segment) {
		seg.Text += strings.Join(pending, "")
		pending = nil
	}
	closeCurrent := func() {
		if cur != nil {
			out = append(out, *cur)
			cur = nil
		}
		if len(pending) > 0 {
			out = append(out, Segment{Kind: SegmentGap, Text: strings.Join(pending, "")})
			pending = nil
		}
	}

	for _, line := range lines {
		content := strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(content)

		if len(heredocs) > 0 {
			// Inside a heredoc every line belongs to the current segment.
			if cur == nil {
				cur = &Segment{Kind: SegmentGap}
			}
			flushPendingInto(cur)
			cur.Text += line
			if trimmed == heredocs[0] {
				heredocs = heredocs[1:]
			}
			continue
		}

		if !lex.inLiteral() && (trimmed == "" || strings.HasPrefix(trimmed, "#") && leadingSpace(content) == indent) {
			pending = append(pending, line)
			continue
		}

		atScope := len(leadingSpace(content)) <= len(indent)
		closer := closerRe.MatchString(trimmed)
		if atScope && closer && !lex.inLiteral() {
			lex.depth = 0
		}
		open := cur != nil && (continuedRe.MatchString(lastCode) || lex.unbalanced())
		startsNew := atScope && !closer && !open
		if startsNew {
			closeCurrent()
			cur = &Segment{Kind: SegmentDeclaration}
			cur.Keyword, cur.Name = declarationName(trimmed)
			lex = literalState{}
		} else if cur == nil {
			// Stray continuation before any declaration.
			cur = &Segment{Kind: SegmentGap}
		}

		flushPendingInto(cur)
		cur.Text += line
		if lex.inLiteral() {
			lastCode = ""
		} else if !strings.HasPrefix(trimmed, "#") {
			lastCode = stripComment(trimmed)
		}
		lex.scan(content)
		for _, m := range heredocRe.FindAllStringSubmatch(content, -1) {
			heredocs = append(heredocs, m[2])
		}
	}

	if cur != nil {
		out = append(out, *cur)
	}
	if len(pending) > 0 {
		out = append(out, Segment{Kind: SegmentGap, Text: strings.Join(pending, "")})
	}
	return out
}

// findCloser returns the index of the `end` line closing a block opened at
// indent, searching backwards from the end of the file.
func findCloser(lines []string, from int, indent string) int {
	for i := len(lines) - 1; i >= from; i-- {
		content := strings.TrimRight(lines[i], "\r\n")
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if leadingSpace(content) == indent && (trimmed == "end" || strings.HasPrefix(trimmed, "end ") || strings.HasPrefix(trimmed, "end#")) {
			return i
		}
		return -1
	}
	return -1
}

// scopeIndent is the indentation of the first code line in scope.
func scopeIndent(lines []string) string {
	for _, line := range lines {
		content := strings.TrimRight(line, "\r\n")
		trimmed := strings.TrimSpace(content)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		return leadingSpace(content)
	}
	return "  "
}

func declarationName(trimmed string) (keyword, name string) {
	if m := keywordRe.FindStringSubmatch(trimmed); m != nil {
		keyword = m[1]
	}
	if m := nameRe.FindStringSubmatch(trimmed); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				return keyword, g
			}
		}
	}
	return keyword, ""
}

func stripComment(trimmed string) string {
	// Good enough for trailing comments; a '#' inside a string literal only
	// makes continuation detection more conservative.
	if i := strings.Index(trimmed, " #"); i >= 0 {
		return strings.TrimSpace(trimmed[:i])
	}
	return trimmed
}

func leadingSpace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func splitLines(src string) []string {
	lines := strings.SplitAfter(src, "\n")
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	return lines
}

// String re-serializes the document.
func (d *Document) String() string {
	var b strings.Builder
	for _, s := range d.Segments {
		b.WriteString(s.Text)
	}
	return b.String()
}

// Indent returns the indentation used by top-level declarations.
func (d *Document) Indent() string {
	return d.indent
}

// Tasks returns declared task names in source order.
func (d *Document) Tasks() []string {
	var names []string
	for _, s := range d.Segments {
		if s.Kind == SegmentDeclaration && s.Keyword == "task" && s.Name != "" {
			names = append(names, s.Name)
		}
	}
	return names
}

func (d *Document) findTask(name string) (int, error) {
	idx := -1
	for i, s := range d.Segments {
		if s.Kind != SegmentDeclaration || s.Keyword != "task" || s.Name != name {
			continue
		}
		if idx >= 0 {
			return -1, fmt.Errorf("task %q is declared more than once", name)
		}
		idx = i
	}
	if idx < 0 {
		return -1, fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return idx, nil
}

// TaskSource returns the raw text of a task block.
func (d *Document) TaskSource(name string) (string, error) {
	idx, err := d.findTask(name)
	if err != nil {
		return "", err
	}
	return d.Segments[idx].Text, nil
}

// ReplaceTask swaps the text of the named task block. The document is left
// unchanged on error.
func (d *Document) ReplaceTask(name, text string) error {
	idx, err := d.findTask(name)
	if err != nil {
		return err
	}
	if text != "" && !strings.HasSuffix(text, "\n") && strings.HasSuffix(d.Segments[idx].Text, "\n") {
		text += "\n"
	}
	d.Segments[idx].Text = text
	return nil
}
