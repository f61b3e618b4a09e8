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
package versions

import (
	"context"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffOp marks a line in a diff.
type DiffOp string

const (
	DiffEqual  DiffOp = " "
	DiffInsert DiffOp = "+"
	DiffDelete DiffOp = "-"
)

// DiffLine is one line of a line-oriented diff.
type DiffLine struct {
	Op   DiffOp
	Text string
}

// DiffResult compares two versions.
type DiffResult struct {
	From       string
	To         string
	Lines      []DiffLine
	Insertions int
	Deletions  int
}

// Diff compares the code of two versions. An empty to compares against the
// active version.
func (s *Store) Diff(ctx context.Context, agent, from, to string) (*DiffResult, error) {
	a, err := s.GetVersion(ctx, agent, from)
	if err != nil {
		return nil, err
	}
	b, err := s.GetVersion(ctx, agent, to)
	if err != nil {
		return nil, err
	}
	result := &DiffResult{From: a.ID, To: b.ID, Lines: LineDiff(a.Code, b.Code)}
	for _, l := range result.Lines {
		switch l.Op {
		case DiffInsert:
			result.Insertions++
		case DiffDelete:
			result.Deletions++
		}
	}
	return result, nil
}

// LineDiff computes a line-level diff of a and b.
func LineDiff(a, b string) []DiffLine {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffMain(ca, cb, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out []DiffLine
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out = append(out, DiffLine{Op: op, Text: strings.TrimSuffix(line, "\n")})
		}
	}
	return out
}

// Unified renders the diff with ---/+++ headers. Runs of unchanged lines
// longer than 2*contextLines are collapsed.
func (d *DiffResult) Unified(contextLines int) string {
	var b strings.Builder
	b.WriteString("--- " + d.From + "\n")
	b.WriteString("+++ " + d.To + "\n")

	for i := 0; i < len(d.Lines); {
		if d.Lines[i].Op != DiffEqual {
			b.WriteString(string(d.Lines[i].Op) + d.Lines[i].Text + "\n")
			i++
			continue
		}
		j := i
		for j < len(d.Lines) && d.Lines[j].Op == DiffEqual {
			j++
		}
		run := d.Lines[i:j]
		head, tail := contextLines, contextLines
		if i == 0 {
			head = 0
		}
		if j == len(d.Lines) {
			tail = 0
		}
		if len(run) <= head+tail {
			for _, l := range run {
				b.WriteString(" " + l.Text + "\n")
			}
		} else {
			for _, l := range run[:head] {
				b.WriteString(" " + l.Text + "\n")
			}
			b.WriteString("@@\n")
			for _, l := range run[len(run)-tail:] {
				b.WriteString(" " + l.Text + "\n")
			}
		}
		i = j
	}
	return b.String()
}
