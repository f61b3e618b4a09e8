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
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"charm.land/lipgloss/v2"
	"gopkg.in/yaml.v3"
)

// printer renders command results as a table or as JSON/YAML.
type printer struct {
	w      io.Writer
	format string
	color  bool

	okStyle   lipgloss.Style
	warnStyle lipgloss.Style
	errStyle  lipgloss.Style
	dimStyle  lipgloss.Style
	headStyle lipgloss.Style
}

func newPrinter(w io.Writer, format string, color bool) *printer {
	return &printer{
		w:         w,
		format:    format,
		color:     color,
		okStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		warnStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		dimStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		headStyle: lipgloss.NewStyle().Bold(true),
	}
}

// structured reports whether results should be encoded rather than drawn.
func (p *printer) structured() bool {
	return p.format == "json" || p.format == "yaml"
}

func (p *printer) encode(v any) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", p.format)
	}
}

func (p *printer) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(p.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

func (p *printer) style(s lipgloss.Style, text string) string {
	if !p.color {
		return text
	}
	return s.Render(text)
}

func (p *printer) ok(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(p.okStyle, "✓")+" "+fmt.Sprintf(format, args...))
}

func (p *printer) warn(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(p.warnStyle, "!")+" "+fmt.Sprintf(format, args...))
}

func (p *printer) fail(format string, args ...any) {
	fmt.Fprintln(p.w, p.style(p.errStyle, "✗")+" "+fmt.Sprintf(format, args...))
}

func (p *printer) heading(text string) {
	fmt.Fprintln(p.w, p.style(p.headStyle, text))
}

func (p *printer) dim(text string) string {
	return p.style(p.dimStyle, text)
}

// colorDiff colors a unified diff line by line.
func (p *printer) colorDiff(diff string) string {
	if !p.color {
		return diff
	}
	lines := strings.Split(diff, "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "+"):
			lines[i] = p.okStyle.UnsetBold().Render(l)
		case strings.HasPrefix(l, "-"):
			lines[i] = p.errStyle.UnsetBold().Render(l)
		case strings.HasPrefix(l, "@@"):
			lines[i] = p.dimStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
