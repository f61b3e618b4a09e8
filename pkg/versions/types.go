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
// Package versions manages the numbered code snapshots of an agent.
//
// Every agent has one base ConfigMap (<agent>-code) holding the code that is
// currently running, and zero or more immutable snapshots
// (<agent>-code-v<N>) owned by it. Optimization and rollback both write a
// snapshot first and then swap the base content under the base's concurrency
// token, so a losing concurrent writer fails without corrupting the base.
package versions

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"
)

// DataKey is the ConfigMap key holding agent source.
const DataKey = "agent.rb"

// OriginalVersion is the active pointer of an agent that was never optimized.
const OriginalVersion = "original"

// DefaultKeepLast is the number of snapshots retained by Prune.
const DefaultKeepLast = 5

// Snapshot source types.
const (
	SourceOriginal  = "original"
	SourceOptimized = "optimized"
	SourceManual    = "manual"
)

// Artifact is one version of an agent's code.
type Artifact struct {
	ID              string    `json:"id" yaml:"id"`
	Number          int       `json:"number" yaml:"number"`
	Name            string    `json:"name" yaml:"name"`
	SourceType      string    `json:"sourceType" yaml:"sourceType"`
	Task            string    `json:"task,omitempty" yaml:"task,omitempty"`
	PreviousVersion string    `json:"previousVersion,omitempty" yaml:"previousVersion,omitempty"`
	CreatedAt       time.Time `json:"createdAt" yaml:"createdAt"`
	Digest          string    `json:"digest,omitempty" yaml:"digest,omitempty"`
	Active          bool      `json:"active" yaml:"active"`
	// Base is true when the artifact is the base ConfigMap itself, returned
	// because no snapshot matches the active pointer.
	Base bool   `json:"base,omitempty" yaml:"base,omitempty"`
	Code string `json:"-" yaml:"-"`
}

// VersionResult describes a snapshot created by CreateVersion.
type VersionResult struct {
	Agent           string
	Version         string
	Number          int
	ArtifactName    string
	PreviousVersion string
	Digest          string
	// Captured is the id of the snapshot taken of the original code, if the
	// call had to capture it first.
	Captured string
}

// RestoreResult describes a base swap performed by Restore.
type RestoreResult struct {
	Agent           string
	Version         string
	PreviousVersion string
	RolledBackAt    time.Time
	Captured        string
}

// PruneResult lists what Prune removed and kept.
type PruneResult struct {
	Deleted []string
	Kept    []string
	Failed  map[string]error
}

// UnknownVersionError is returned when a requested version does not exist.
type UnknownVersionError struct {
	Agent     string
	Requested string
	Known     []string
}

func (e *UnknownVersionError) Error() string {
	if len(e.Known) == 0 {
		return fmt.Sprintf("version %s not found for agent %s (no versions exist)", e.Requested, e.Agent)
	}
	return fmt.Sprintf("version %s not found for agent %s (available: %s)", e.Requested, e.Agent, strings.Join(e.Known, ", "))
}

// BaseName returns the base ConfigMap name for an agent.
func BaseName(agent string) string {
	return agent + "-code"
}

// ArtifactName returns the snapshot ConfigMap name for version n.
func ArtifactName(agent string, n int) string {
	return fmt.Sprintf("%s-code-v%d", agent, n)
}

// FormatVersion renders a version number as an id ("v3").
func FormatVersion(n int) string {
	return "v" + strconv.Itoa(n)
}

// ParseVersion accepts "v3" or "3" and returns 3. "original" parses as 0.
func ParseVersion(id string) (int, error) {
	id = strings.TrimSpace(id)
	if id == OriginalVersion {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(id), "v"))
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid version %q (expected v<N>)", id)
	}
	return n, nil
}

// NormalizeVersion returns the canonical id for user input.
func NormalizeVersion(id string) (string, error) {
	n, err := ParseVersion(id)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return OriginalVersion, nil
	}
	return FormatVersion(n), nil
}

// Digest returns the hex BLAKE3 digest of code.
func Digest(code string) string {
	sum := blake3.Sum256([]byte(code))
	return fmt.Sprintf("%x", sum[:])
}
