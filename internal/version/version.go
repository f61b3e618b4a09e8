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
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version and Commit are stamped by the release build:
//
//	go build -ldflags="-X github.com/teradata-labs/agentctl/internal/version.Version=v0.3.1 \
//	  -X github.com/teradata-labs/agentctl/internal/version.Commit=$(git rev-parse --short HEAD)"
var (
	Version = "0.3.0"
	Commit  = ""
)

// Get returns the release version, or "dev" for unstamped builds.
func Get() string {
	if Version == "" {
		return "dev"
	}
	return Version
}

// Revision returns the VCS revision, falling back to the module build info
// when Commit was not stamped.
func Revision() string {
	if Commit != "" {
		return Commit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return "unknown"
}

// String renders the long version line printed by `agentctl --version`.
func String() string {
	return fmt.Sprintf("%s (commit %s, %s %s/%s)", Get(), Revision(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
