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
// Package config locates agentctl's home directory.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// HomeEnv overrides the agentctl home directory.
const HomeEnv = "AGENTCTL_HOME"

// GetHomeDir returns the agentctl home directory, where config.yaml and the
// default SQLite database live.
//
// Priority:
// 1. AGENTCTL_HOME (if set and non-empty)
// 2. ~/.agentctl
//
// The result is absolute; a leading ~ in AGENTCTL_HOME is expanded. It reads
// the environment directly because it runs before the config file is found.
func GetHomeDir() string {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return expandPath(dir)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".agentctl"
	}
	return filepath.Join(homeDir, ".agentctl")
}

// GetSubDir returns a path inside the home directory.
func GetSubDir(subdir string) string {
	return filepath.Join(GetHomeDir(), subdir)
}

// expandPath expands ~ and resolves to an absolute path.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
