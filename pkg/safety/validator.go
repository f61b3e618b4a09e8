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
// Package safety rejects generated agent code that reaches outside the
// sandbox the agent runtime expects.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Severity ranks a violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Rule is a single pattern check.
type Rule struct {
	ID       string
	Pattern  *regexp.Regexp
	Message  string
	Severity Severity
}

// Violation is a rule match in code.
type Violation struct {
	Rule     string
	Line     int
	Message  string
	Snippet  string
	Severity Severity
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("line %d: %s (%s)", v.Line, v.Message, v.Rule)
	}
	return fmt.Sprintf("%s (%s)", v.Message, v.Rule)
}

// DefaultMaxBytes bounds the size of a single proposal.
const DefaultMaxBytes = 64 * 1024

// DefaultRules block process execution, dynamic evaluation, filesystem
// mutation, and embedded credentials.
var DefaultRules = []Rule{
	{ID: "shell-exec", Pattern: regexp.MustCompile(`\b(system|exec|spawn)\s*\(|\bIO\.popen\b|\bOpen3\b|%x[({\[]|` + "`" + `[^` + "`" + `]*` + "`"),
		Message: "executes a shell command", Severity: SeverityError},
	{ID: "dynamic-eval", Pattern: regexp.MustCompile(`\b(eval|instance_eval|class_eval|module_eval|instance_exec)\b`),
		Message: "evaluates code dynamically", Severity: SeverityError},
	{ID: "reflection", Pattern: regexp.MustCompile(`\.(send|__send__|public_send)\s*\(|\bObjectSpace\b|\bdefine_method\b`),
		Message: "uses reflection to bypass method visibility", Severity: SeverityError},
	{ID: "filesystem-write", Pattern: regexp.MustCompile(`\bFile\.(write|delete|unlink|rename|chmod|chown)\b|\bFileUtils\.|\bDir\.(mkdir|rmdir|delete)\b|File\.open\([^)]*['"][wa]\+?['"]`),
		Message: "modifies the filesystem", Severity: SeverityError},
	{ID: "process-control", Pattern: regexp.MustCompile(`\b(exit!?|abort|fork|Process\.(kill|exit|fork))\b`),
		Message: "controls the host process", Severity: SeverityError},
	{ID: "require", Pattern: regexp.MustCompile(`^\s*(require|require_relative|load)\b`),
		Message: "loads additional code", Severity: SeverityError},
	{ID: "env-mutation", Pattern: regexp.MustCompile(`\bENV\[[^\]]+\]\s*=[^=]`),
		Message: "modifies the process environment", Severity: SeverityError},
	{ID: "credential", Pattern: regexp.MustCompile(`(?i)(api[_-]?key|password|secret|token)\s*[:=]\s*['"][^'"]{8,}['"]`),
		Message: "contains what looks like a hardcoded credential", Severity: SeverityWarning},
}

// Validator checks code against a rule set.
type Validator struct {
	rules    []Rule
	maxBytes int
	// Strict treats warnings as blocking.
	strict bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithRules replaces the rule set.
func WithRules(rules []Rule) Option {
	return func(v *Validator) { v.rules = rules }
}

// WithMaxBytes sets the size limit. Zero disables it.
func WithMaxBytes(n int) Option {
	return func(v *Validator) { v.maxBytes = n }
}

// WithStrict makes warnings blocking.
func WithStrict(strict bool) Option {
	return func(v *Validator) { v.strict = strict }
}

// NewValidator returns a validator with DefaultRules.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{rules: DefaultRules, maxBytes: DefaultMaxBytes}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate returns the blocking violations found in code. Comment lines are
// ignored; string contents are not.
func (v *Validator) Validate(code string) []Violation {
	var out []Violation
	if v.maxBytes > 0 && len(code) > v.maxBytes {
		out = append(out, Violation{
			Rule:     "size",
			Message:  fmt.Sprintf("code is %d bytes, limit is %d", len(code), v.maxBytes),
			Severity: SeverityError,
		})
	}

	for i, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		for _, r := range v.rules {
			if r.Severity == SeverityWarning && !v.strict {
				continue
			}
			if loc := r.Pattern.FindStringIndex(line); loc != nil {
				out = append(out, Violation{
					Rule:     r.ID,
					Line:     i + 1,
					Message:  r.Message,
					Snippet:  strings.TrimSpace(line[loc[0]:loc[1]]),
					Severity: r.Severity,
				})
			}
		}
	}
	return out
}

// Warnings returns non-blocking findings.
func (v *Validator) Warnings(code string) []Violation {
	var out []Violation
	for i, line := range strings.Split(code, "\n") {
		for _, r := range v.rules {
			if r.Severity != SeverityWarning {
				continue
			}
			if loc := r.Pattern.FindStringIndex(line); loc != nil {
				out = append(out, Violation{Rule: r.ID, Line: i + 1, Message: r.Message, Severity: r.Severity})
			}
		}
	}
	return out
}
