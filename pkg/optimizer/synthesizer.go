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
package optimizer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/teradata-labs/agentctl/pkg/agentcode"
	"github.com/teradata-labs/agentctl/pkg/versions"
	"go.uber.org/zap"
)

// LLM providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderNone      = "none"
)

const (
	DefaultAnthropicModel   = "claude-sonnet-4-5-20250929"
	DefaultBedrockModelID   = "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	DefaultBedrockRegion    = "us-west-2"
	DefaultSynthMaxTokens   = 4096
	DefaultSynthTemperature = 0.2
)

// MessageAPI is the subset of the Anthropic messages service used here.
// *anthropic.MessageService satisfies it.
type MessageAPI interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// CodeSource reads the code a task currently has.
type CodeSource interface {
	GetVersion(ctx context.Context, agent, id string) (*versions.Artifact, error)
}

// SynthesizerConfig configures an LLMSynthesizer.
type SynthesizerConfig struct {
	Provider string // anthropic or bedrock

	APIKey string // anthropic
	Model  string // anthropic model or Bedrock model id

	BedrockRegion  string
	BedrockProfile string

	MaxTokens   int64
	Temperature float64

	Code CodeSource

	// Messages overrides client construction.
	Messages MessageAPI

	Logger *zap.Logger
}

// LLMSynthesizer proposes task code by asking a language model to rewrite
// the task's current body as deterministic code.
type LLMSynthesizer struct {
	messages    MessageAPI
	model       string
	maxTokens   int64
	temperature float64
	code        CodeSource
	logger      *zap.Logger
}

// NewLLMSynthesizer creates a synthesizer for the configured provider.
func NewLLMSynthesizer(ctx context.Context, cfg SynthesizerConfig) (*LLMSynthesizer, error) {
	if cfg.Code == nil {
		return nil, fmt.Errorf("code source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultSynthMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultSynthTemperature
	}

	messages := cfg.Messages
	switch cfg.Provider {
	case ProviderAnthropic, "":
		if cfg.Model == "" {
			cfg.Model = DefaultAnthropicModel
		}
		if messages == nil {
			if cfg.APIKey == "" {
				return nil, fmt.Errorf("anthropic API key is required (set llm.anthropic_api_key or run `agentctl config set-secret anthropic_api_key`)")
			}
			client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
			messages = &client.Messages
		}
	case ProviderBedrock:
		if cfg.Model == "" {
			cfg.Model = DefaultBedrockModelID
		}
		if cfg.BedrockRegion == "" {
			cfg.BedrockRegion = DefaultBedrockRegion
		}
		if messages == nil {
			awsCfg, err := loadAWSConfig(ctx, cfg.BedrockRegion, cfg.BedrockProfile)
			if err != nil {
				return nil, err
			}
			client := anthropic.NewClient(bedrock.WithConfig(awsCfg))
			messages = &client.Messages
		}
	default:
		return nil, fmt.Errorf("unsupported llm provider %q (expected anthropic or bedrock)", cfg.Provider)
	}

	return &LLMSynthesizer{
		messages:    messages,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		code:        cfg.Code,
		logger:      cfg.Logger,
	}, nil
}

func loadAWSConfig(ctx context.Context, region, profile string) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return awsCfg, nil
}

const synthesisSystemPrompt = `You rewrite one task of a Ruby agent. The task currently calls a language model at runtime.
Replace its body with deterministic Ruby that produces the same outputs for the same inputs.
Return only the new task body (the code between "do |inputs|" and "end") in a single ruby code block.
Do not shell out, evaluate code, touch the filesystem, or require libraries.`

// Propose implements CodeProposer.
func (s *LLMSynthesizer) Propose(ctx context.Context, agent, task string) (*Proposal, error) {
	current, err := s.code.GetVersion(ctx, agent, "")
	if err != nil {
		return nil, err
	}
	doc, err := agentcode.Parse(current.Code)
	if err != nil {
		return nil, fmt.Errorf("failed to parse code of %s: %w", agent, err)
	}
	taskSource, err := doc.TaskSource(task)
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Agent: %s\nTask: %s\n\nCurrent task:\n```ruby\n%s```\n", agent, task, taskSource)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(s.model),
		MaxTokens:   s.maxTokens,
		Temperature: anthropic.Float(s.temperature),
		System:      []anthropic.TextBlockParam{{Text: synthesisSystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	s.logger.Debug("Requesting task synthesis", zap.String("agent", agent), zap.String("task", task), zap.String("model", s.model))
	message, err := s.messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	code := extractCode(text.String())
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("model returned no code for %s: %w", task, ErrInsufficientData)
	}

	return &Proposal{
		TaskName:     task,
		CurrentCode:  taskSource,
		ProposedCode: code,
		Definition:   agentcode.ParseSignature(taskSource),
		Source:       SourceSynthesis,
	}, nil
}

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\n(.*?)```")

// extractCode returns the first fenced code block, or the whole text when
// there is none.
func extractCode(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strings.TrimSpace(text)
}
