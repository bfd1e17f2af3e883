// Package agents implements the concrete Agent kinds spec.md §4.9's
// configuration-validation table names: llm, filesystem, http,
// tool_executor, webhook, database.
package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/akios/akios/pkg/workflow"
)

// LLMProvider abstracts the two supported model backends behind one
// interface, so LLMAgent.Execute doesn't switch on provider at the call
// site (spec.md §2 domain-stack expansion: Anthropic direct API +
// Bedrock-hosted models).
type LLMProvider interface {
	Name() string
	Complete(ctx context.Context, model, prompt string, maxTokens int) (string, int, error) // text, total tokens, error
}

// AnthropicProvider calls the Anthropic Messages API directly.
type AnthropicProvider struct {
	client anthropic.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, int, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", 0, fmt.Errorf("anthropic: completion failed: %w", err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	total := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return text, total, nil
}

// BedrockProvider calls Anthropic models hosted on AWS Bedrock, used
// where the cage's network allowlist only permits AWS endpoints.
type BedrockProvider struct {
	client *bedrockruntime.Client
}

func NewBedrockProvider(ctx context.Context, region string) (*BedrockProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("bedrock: loading AWS config: %w", err)
	}
	return &BedrockProvider{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Complete(ctx context.Context, model, prompt string, maxTokens int) (string, int, error) {
	body := fmt.Sprintf(`{"anthropic_version":"bedrock-2023-05-31","max_tokens":%d,"messages":[{"role":"user","content":%q}]}`, maxTokens, prompt)

	out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        []byte(body),
	})
	if err != nil {
		return "", 0, fmt.Errorf("bedrock: invoke failed: %w", err)
	}

	// The response body is returned as raw JSON text, unparsed, and the
	// token count is reported as 0; LLMAgent.Execute stores that text
	// under "text" as-is.
	return string(out.Body), 0, nil
}

// LLMAgent implements workflow.Agent for the `llm` kind.
type LLMAgent struct {
	providers     map[string]LLMProvider
	allowedModels map[string]bool // empty means no catalog restriction configured
	logger        *slog.Logger
}

func NewLLMAgent(providers []LLMProvider, allowedModels []string, logger *slog.Logger) *LLMAgent {
	if logger == nil {
		logger = slog.Default()
	}
	m := make(map[string]LLMProvider, len(providers))
	for _, p := range providers {
		m[p.Name()] = p
	}
	models := make(map[string]bool, len(allowedModels))
	for _, mo := range allowedModels {
		models[mo] = true
	}
	return &LLMAgent{providers: m, allowedModels: models, logger: logger}
}

func (a *LLMAgent) Kind() workflow.AgentKind { return workflow.AgentLLM }

// Validate enforces spec.md §4.9's llm row: `provider` and `model` are
// required, `provider` must be allowlisted, `model` must be in the
// allowed model catalog when one is configured, `prompt` is required.
func (a *LLMAgent) Validate(cfg map[string]any) error {
	provider, _ := cfg["provider"].(string)
	if provider == "" {
		return fmt.Errorf("llm: missing required field 'provider'")
	}
	if _, ok := a.providers[provider]; !ok {
		return fmt.Errorf("llm: provider %q not in allowlist", provider)
	}
	model, _ := cfg["model"].(string)
	if model == "" {
		return fmt.Errorf("llm: missing required field 'model'")
	}
	if len(a.allowedModels) > 0 && !a.allowedModels[model] {
		return fmt.Errorf("llm: model %q not in allowlist (allowed model catalog)", model)
	}
	if prompt, _ := cfg["prompt"].(string); prompt == "" {
		return fmt.Errorf("llm: missing required field 'prompt'")
	}
	return nil
}

func (a *LLMAgent) Execute(ctx context.Context, cfg map[string]any, ec *workflow.ExecutionContext) (any, error) {
	provider := a.providers[cfg["provider"].(string)]
	model := cfg["model"].(string)
	prompt := cfg["prompt"].(string)

	maxTokens := 1024
	if mt, ok := cfg["max_tokens"].(int); ok && mt > 0 {
		maxTokens = mt
	}

	text, totalTokens, err := provider.Complete(ctx, model, prompt, maxTokens)
	if err != nil {
		return nil, err
	}

	a.logger.Info("agents: llm call completed", "provider", provider.Name(), "model", model, "total_tokens", totalTokens)
	return map[string]any{"text": text, "total_tokens": totalTokens}, nil
}
