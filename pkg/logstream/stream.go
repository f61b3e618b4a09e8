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
// Package logstream runs a log-producing subprocess and copies its output.
package logstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"

	"github.com/teradata-labs/agentctl/pkg/cluster"
	"golang.org/x/sync/errgroup"
)

// maxLine bounds a single log line.
const maxLine = 1024 * 1024

// Command describes the subprocess to run.
type Command struct {
	Name string
	Args []string
	Env  []string
	Dir  string
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
}

// KubectlLogs returns the kubectl invocation that streams an agent's pod
// logs.
func KubectlLogs(namespace, agent string, follow bool, tail int) Command {
	args := []string{"logs", "-n", namespace, "-l", cluster.LabelAgent + "=" + agent, "--all-containers", "--prefix"}
	if follow {
		args = append(args, "-f")
	}
	if tail >= 0 {
		args = append(args, "--tail", strconv.Itoa(tail))
	}
	return Command{Name: "kubectl", Args: args}
}

// Stream runs c, copying its stdout and stderr line by line. Both streams
// are drained to EOF before the exit status is read. Cancelling ctx kills
// the process.
func Stream(ctx context.Context, c Command, stdout, stderr io.Writer) error {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)

	outPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	errPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", c.Name, err)
	}

	// stdout and stderr may be the same writer.
	var mu sync.Mutex
	var g errgroup.Group
	g.Go(func() error { return copyLines(outPipe, stdout, &mu) })
	g.Go(func() error { return copyLines(errPipe, stderr, &mu) })
	copyErr := g.Wait()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Command: c.Name, Code: exitErr.ExitCode()}
		}
		return fmt.Errorf("%s failed: %w", c.Name, waitErr)
	}
	if copyErr != nil {
		return fmt.Errorf("failed to copy output of %s: %w", c.Name, copyErr)
	}
	return nil
}

func copyLines(r io.Reader, w io.Writer, mu *sync.Mutex) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	var writeErr error
	for scanner.Scan() {
		if writeErr != nil {
			continue
		}
		mu.Lock()
		_, writeErr = fmt.Fprintln(w, scanner.Text())
		mu.Unlock()
	}
	if err := scanner.Err(); err != nil {
		// Keep draining so the child never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
		return err
	}
	return writeErr
}
