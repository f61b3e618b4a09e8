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
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHomeDir(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	tests := []struct {
		name string
		env  string
		want string
	}{
		{name: "default", env: "", want: filepath.Join(home, ".agentctl")},
		{name: "absolute", env: "/srv/agentctl", want: "/srv/agentctl"},
		{name: "tilde", env: "~/ops/agentctl", want: filepath.Join(home, "ops", "agentctl")},
		{name: "bare tilde", env: "~", want: home},
		{name: "relative", env: "state", want: filepath.Join(cwd, "state")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(HomeEnv, tt.env)
			assert.Equal(t, tt.want, GetHomeDir())
		})
	}
}

func TestGetSubDir(t *testing.T) {
	t.Setenv(HomeEnv, "/srv/agentctl")
	assert.Equal(t, "/srv/agentctl/agentctl.db", GetSubDir("agentctl.db"))
}
