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
package agentcode

import (
	"fmt"
	"sort"
	"strings"
)

// TaskDefinition is the typed signature of a task. Keys are field names and
// values are type names such as "string" or "integer".
type TaskDefinition struct {
	Inputs  map[string]string `json:"inputs" yaml:"inputs"`
	Outputs map[string]string `json:"outputs" yaml:"outputs"`
}

// RenderTask builds a task block at the given indent. body is the task body
// without the surrounding do/end; its common indentation is removed and
// replaced. A body that is already a complete `task :name` block is only
// re-indented.
func RenderTask(indent, name string, def TaskDefinition, body string) string {
	lines := dedent(body)
	if isTaskBlock(lines, name) {
		var b strings.Builder
		for _, l := range lines {
			writeIndented(&b, indent, l)
		}
		return b.String()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%stask :%s,\n", indent, name)
	fmt.Fprintf(&b, "%s  inputs: %s,\n", indent, renderFields(def.Inputs))
	fmt.Fprintf(&b, "%s  outputs: %s do |inputs|\n", indent, renderFields(def.Outputs))
	for _, l := range lines {
		writeIndented(&b, indent+"  ", l)
	}
	fmt.Fprintf(&b, "%send\n", indent)
	return b.String()
}

// SpliceTask replaces the named task in src with a freshly rendered block.
// src is not modified when the task cannot be found.
func SpliceTask(src, name string, def TaskDefinition, body string) (string, error) {
	doc, err := Parse(src)
	if err != nil {
		return "", err
	}
	if err := doc.ReplaceTask(name, RenderTask(doc.Indent(), name, def, body)); err != nil {
		return "", err
	}
	return doc.String(), nil
}

func renderFields(fields map[string]string) string {
	if len(fields) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(fields))
	for n := range fields {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s: '%s'", n, fields[n]))
	}
	return "{ " + strings.Join(parts, ", ") + " }"
}

func isTaskBlock(lines []string, name string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kw, n := declarationName(strings.TrimSpace(l))
		return kw == "task" && n == name
	}
	return false
}

func writeIndented(b *strings.Builder, indent, line string) {
	if strings.TrimSpace(line) == "" {
		b.WriteString("\n")
		return
	}
	b.WriteString(indent)
	b.WriteString(line)
	b.WriteString("\n")
}

// dedent splits text into lines with the common leading whitespace removed.
// Leading and trailing blank lines are dropped.
func dedent(text string) []string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}

	common := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		ws := leadingSpace(l)
		if first {
			common, first = ws, false
			continue
		}
		for !strings.HasPrefix(ws, common) {
			common = common[:len(common)-1]
		}
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimRight(strings.TrimPrefix(l, common), " \t")
	}
	return out
}
