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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/teradata-labs/agentctl/pkg/optimizer"
	"github.com/teradata-labs/agentctl/pkg/rollback"
	"github.com/teradata-labs/agentctl/pkg/versions"
	"golang.org/x/term"
)

// isInteractive reports whether f is a terminal.
func isInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// prompter asks questions on a line-oriented input.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	p   *printer
}

func newPrompter(in io.Reader, out io.Writer, p *printer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, p: p}
}

func (pr *prompter) readLine() (string, error) {
	line, err := pr.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// confirm asks a yes/no question. An empty answer returns def.
func (pr *prompter) confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	for {
		fmt.Fprintf(pr.out, "%s %s ", question, hint)
		answer, err := pr.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(pr.out, "Please answer y or n.")
	}
}

// Decide shows a proposal and asks whether to apply it.
func (pr *prompter) Decide(ctx context.Context, agent string, proposal *optimizer.Proposal) (optimizer.Decision, error) {
	diff := &versions.DiffResult{
		From:  proposal.TaskName + " (current)",
		To:    proposal.TaskName + " (proposed)",
		Lines: versions.LineDiff(proposal.CurrentCode, proposal.ProposedCode),
	}
	fmt.Fprintln(pr.out)
	pr.p.heading(fmt.Sprintf("Task %s of %s (score %.2f, %s)", proposal.TaskName, agent, proposal.ConsistencyScore, proposal.Source))
	if proposal.CurrentCode != "" {
		fmt.Fprint(pr.out, pr.p.colorDiff(diff.Unified(3)))
	} else {
		fmt.Fprintln(pr.out, proposal.ProposedCode)
	}

	for {
		if err := ctx.Err(); err != nil {
			return optimizer.DecisionAbort, err
		}
		fmt.Fprint(pr.out, "Apply this change? [a]ccept, [r]eject, [q]uit: ")
		answer, err := pr.readLine()
		if err != nil {
			return optimizer.DecisionAbort, err
		}
		switch strings.ToLower(answer) {
		case "a", "accept", "y", "yes":
			return optimizer.DecisionAccept, nil
		case "r", "reject", "n", "no", "":
			return optimizer.DecisionReject, nil
		case "q", "quit", "abort":
			return optimizer.DecisionAbort, nil
		}
	}
}

// choose lists choices and returns the selected version.
func (pr *prompter) choose(title string, choices []rollback.Choice) (string, error) {
	pr.p.heading(title)
	for i, c := range choices {
		label := c.Label
		if c.Disabled {
			label = pr.p.dim(label)
		}
		fmt.Fprintf(pr.out, "  %2d) %s\n", i+1, label)
	}
	for {
		fmt.Fprint(pr.out, "Select a version (number or id, empty to cancel): ")
		answer, err := pr.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			return "", errCancelled
		}
		idx := -1
		if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(choices) {
			idx = n - 1
		} else {
			for i, c := range choices {
				if c.Version == answer {
					idx = i
				}
			}
		}
		switch {
		case idx < 0:
			fmt.Fprintf(pr.out, "Unknown choice %q.\n", answer)
		case choices[idx].Disabled:
			fmt.Fprintf(pr.out, "%s is already active.\n", choices[idx].Version)
		default:
			return choices[idx].Version, nil
		}
	}
}
