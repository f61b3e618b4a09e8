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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	appconfig "github.com/teradata-labs/agentctl/pkg/config"
	"github.com/zalando/go-keyring"
)

const (
	// ServiceName is the keyring service secrets are stored under.
	ServiceName = "agentctl"

	// DefaultConfigFileName is looked up as config.yaml.
	DefaultConfigFileName = "config"
)

// Config is agentctl's merged configuration.
type Config struct {
	Cluster   ClusterConfig   `mapstructure:"cluster" yaml:"cluster"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Traces    TracesConfig    `mapstructure:"traces" yaml:"traces"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Optimize  OptimizeConfig  `mapstructure:"optimize" yaml:"optimize"`
	Versions  VersionsConfig  `mapstructure:"versions" yaml:"versions"`
	Synthesis SynthesisConfig `mapstructure:"synthesis" yaml:"synthesis"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Output    OutputConfig    `mapstructure:"output" yaml:"output"`
}

// ClusterConfig selects the resource backend.
type ClusterConfig struct {
	// Backend is kube, sqlite, postgres, or mysql.
	Backend    string `mapstructure:"backend" yaml:"backend"`
	Namespace  string `mapstructure:"namespace" yaml:"namespace"`
	Kubeconfig string `mapstructure:"kubeconfig" yaml:"kubeconfig"`
	Context    string `mapstructure:"context" yaml:"context"`
}

// DatabaseConfig is used by the SQL backends. An empty DSN with the sqlite
// backend means agentctl.db in the home directory.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// TracesConfig points at the trace analysis service.
type TracesConfig struct {
	Endpoint       string `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey         string `mapstructure:"api_key" yaml:"api_key"` // From env/keyring only
	TimeoutSeconds int    `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// LLMConfig configures task synthesis.
type LLMConfig struct {
	// Provider is anthropic, bedrock, or none.
	Provider        string  `mapstructure:"provider" yaml:"provider"`
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key" yaml:"anthropic_api_key"` // From env/keyring only
	AnthropicModel  string  `mapstructure:"anthropic_model" yaml:"anthropic_model"`
	BedrockRegion   string  `mapstructure:"bedrock_region" yaml:"bedrock_region"`
	BedrockProfile  string  `mapstructure:"bedrock_profile" yaml:"bedrock_profile"`
	BedrockModelID  string  `mapstructure:"bedrock_model_id" yaml:"bedrock_model_id"`
	MaxTokens       int64   `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature" yaml:"temperature"`
}

// OptimizeConfig holds optimize defaults.
type OptimizeConfig struct {
	MinConfidence float64       `mapstructure:"min_confidence" yaml:"min_confidence"`
	Since         time.Duration `mapstructure:"since" yaml:"since"`
	UseSynthesis  bool          `mapstructure:"use_synthesis" yaml:"use_synthesis"`
}

// VersionsConfig holds retention settings.
type VersionsConfig struct {
	KeepLast    int  `mapstructure:"keep_last" yaml:"keep_last"`
	StrictPrune bool `mapstructure:"strict_prune" yaml:"strict_prune"`
}

// SynthesisConfig tunes the synthesis watcher.
type SynthesisConfig struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Strict   bool          `mapstructure:"strict" yaml:"strict"`
}

// MetricsConfig enables the Prometheus push on exit.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url" yaml:"pushgateway_url"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// OutputConfig controls command output.
type OutputConfig struct {
	// Format is table, json, or yaml.
	Format string `mapstructure:"format" yaml:"format"`
	Color  bool   `mapstructure:"color" yaml:"color"`
}

// LoadConfig merges, in decreasing priority: flags, environment
// (AGENTCTL_*), the config file, and defaults. Secrets missing from all of
// those are read from the system keyring.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(appconfig.GetHomeDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/agentctl/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("AGENTCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Non-fatal: the keyring may be unavailable on headless hosts.
	_ = loadSecretsFromKeyring(&config)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("cluster.backend", "kube")
	viper.SetDefault("cluster.namespace", "default")
	viper.SetDefault("cluster.kubeconfig", "")
	viper.SetDefault("cluster.context", "")

	viper.SetDefault("database.dsn", "")

	viper.SetDefault("traces.endpoint", "")
	viper.SetDefault("traces.api_key", "")
	viper.SetDefault("traces.timeout_seconds", 30)
	viper.SetDefault("traces.max_retries", 3)

	viper.SetDefault("llm.provider", "none")
	viper.SetDefault("llm.anthropic_api_key", "")
	viper.SetDefault("llm.anthropic_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("llm.bedrock_region", "us-west-2")
	viper.SetDefault("llm.bedrock_profile", "")
	viper.SetDefault("llm.bedrock_model_id", "us.anthropic.claude-sonnet-4-5-20250929-v1:0")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.temperature", 0.2)

	viper.SetDefault("optimize.min_confidence", 0.85)
	viper.SetDefault("optimize.since", "24h")
	viper.SetDefault("optimize.use_synthesis", false)

	viper.SetDefault("versions.keep_last", 5)
	viper.SetDefault("versions.strict_prune", false)

	viper.SetDefault("synthesis.interval", "2s")
	viper.SetDefault("synthesis.timeout", "10m")
	viper.SetDefault("synthesis.strict", false)

	viper.SetDefault("metrics.pushgateway_url", "")

	viper.SetDefault("logging.level", "warn")
	viper.SetDefault("logging.format", "text")

	viper.SetDefault("output.format", "table")
	viper.SetDefault("output.color", true)
}

// Validate checks enumerated values and ranges.
func (c *Config) Validate() error {
	switch c.Cluster.Backend {
	case "kube", "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("invalid cluster.backend %q (expected kube, sqlite, postgres, or mysql)", c.Cluster.Backend)
	}
	switch c.LLM.Provider {
	case "anthropic", "bedrock", "none", "":
	default:
		return fmt.Errorf("invalid llm.provider %q (expected anthropic, bedrock, or none)", c.LLM.Provider)
	}
	switch c.Output.Format {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("invalid output.format %q (expected table, json, or yaml)", c.Output.Format)
	}
	if c.Optimize.MinConfidence < 0 || c.Optimize.MinConfidence > 1 {
		return fmt.Errorf("optimize.min_confidence must be between 0 and 1, got %v", c.Optimize.MinConfidence)
	}
	if c.Versions.KeepLast < 1 {
		return fmt.Errorf("versions.keep_last must be at least 1, got %d", c.Versions.KeepLast)
	}
	if c.Synthesis.Interval <= 0 || c.Synthesis.Timeout <= 0 {
		return fmt.Errorf("synthesis.interval and synthesis.timeout must be positive")
	}
	return nil
}

// SynthesisEnabled reports whether an LLM provider is configured.
func (c *Config) SynthesisEnabled() bool {
	return c.LLM.Provider == "anthropic" || c.LLM.Provider == "bedrock"
}

// SecretMapping ties a keyring entry to a config field.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	IsSet      func(*Config) bool
}

// GetSecretMappings returns every secret agentctl can read from the keyring.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "anthropic_api_key",
			Setter:     func(c *Config, val string) { c.LLM.AnthropicAPIKey = val },
			IsSet:      func(c *Config) bool { return c.LLM.AnthropicAPIKey != "" },
		},
		{
			KeyringKey: "traces_api_key",
			Setter:     func(c *Config, val string) { c.Traces.APIKey = val },
			IsSet:      func(c *Config) bool { return c.Traces.APIKey != "" },
		},
		{
			KeyringKey: "database_dsn",
			Setter:     func(c *Config, val string) { c.Database.DSN = val },
			IsSet:      func(c *Config) bool { return c.Database.DSN != "" },
		},
	}
}

func loadSecretsFromKeyring(config *Config) error {
	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(config) {
			continue
		}
		value, err := keyring.Get(ServiceName, mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
	}
	return nil
}

// ListAvailableSecretKeys returns the keyring key names.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, len(mappings))
	for i, m := range mappings {
		keys[i] = m.KeyringKey
	}
	return keys
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	c.LLM.AnthropicAPIKey = mask(c.LLM.AnthropicAPIKey)
	c.Traces.APIKey = mask(c.Traces.APIKey)
	if c.Cluster.Backend != "sqlite" {
		c.Database.DSN = mask(c.Database.DSN)
	}
	return c
}
