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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"
)

func resetConfig(t *testing.T) {
	t.Helper()
	viper.Reset()
	keyring.MockInit()
	t.Setenv("AGENTCTL_HOME", t.TempDir())
	t.Cleanup(viper.Reset)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetConfig(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "kube", cfg.Cluster.Backend)
	assert.Equal(t, "default", cfg.Cluster.Namespace)
	assert.InDelta(t, 0.85, cfg.Optimize.MinConfidence, 1e-9)
	assert.Equal(t, 24*time.Hour, cfg.Optimize.Since)
	assert.Equal(t, 5, cfg.Versions.KeepLast)
	assert.Equal(t, 2*time.Second, cfg.Synthesis.Interval)
	assert.Equal(t, 10*time.Minute, cfg.Synthesis.Timeout)
	assert.Equal(t, "none", cfg.LLM.Provider)
	assert.False(t, cfg.SynthesisEnabled())
	assert.Equal(t, "table", cfg.Output.Format)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	resetConfig(t)
	path := writeConfig(t, `
cluster:
  backend: sqlite
  namespace: agents
optimize:
  min_confidence: 0.9
  since: 6h
versions:
  keep_last: 3
llm:
  provider: bedrock
`)
	t.Setenv("AGENTCTL_CLUSTER_NAMESPACE", "staging")
	t.Setenv("AGENTCTL_TRACES_API_KEY", "from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Cluster.Backend)
	assert.Equal(t, "staging", cfg.Cluster.Namespace)
	assert.InDelta(t, 0.9, cfg.Optimize.MinConfidence, 1e-9)
	assert.Equal(t, 6*time.Hour, cfg.Optimize.Since)
	assert.Equal(t, 3, cfg.Versions.KeepLast)
	assert.Equal(t, "from-env", cfg.Traces.APIKey)
	assert.True(t, cfg.SynthesisEnabled())
}

func TestLoadConfig_SecretsFromKeyring(t *testing.T) {
	resetConfig(t)
	require.NoError(t, keyring.Set(ServiceName, "anthropic_api_key", "sk-from-keyring"))
	require.NoError(t, keyring.Set(ServiceName, "traces_api_key", "keyring-traces"))
	t.Setenv("AGENTCTL_TRACES_API_KEY", "env-wins")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "sk-from-keyring", cfg.LLM.AnthropicAPIKey)
	assert.Equal(t, "env-wins", cfg.Traces.APIKey)

	redacted := cfg.Redacted()
	assert.Equal(t, "********", redacted.LLM.AnthropicAPIKey)
	assert.Equal(t, "sk-from-keyring", cfg.LLM.AnthropicAPIKey)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "backend", body: "cluster:\n  backend: etcd\n"},
		{name: "provider", body: "llm:\n  provider: openai\n"},
		{name: "confidence", body: "optimize:\n  min_confidence: 1.5\n"},
		{name: "keep last", body: "versions:\n  keep_last: 0\n"},
		{name: "output", body: "output:\n  format: xml\n"},
		{name: "malformed", body: "cluster: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetConfig(t)
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestListAvailableSecretKeys(t *testing.T) {
	keys := ListAvailableSecretKeys()
	assert.Equal(t, []string{"anthropic_api_key", "traces_api_key", "database_dsn"}, keys)
	assert.NoError(t, validSecretKey("traces_api_key"))
	assert.Error(t, validSecretKey("hawk_api_key"))
}
