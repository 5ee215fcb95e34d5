package llm

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/metakeyai/spelld/pkg/telemetry"
)

const openaiMaxTokens = 1024

var _ Client = (*openaiClient)(nil)

// openaiClient wraps the official OpenAI SDK.
type openaiClient struct {
	client openaisdk.Client
	model  openaisdk.ChatModel
}

func newOpenAI(apiKey, model, baseURL string) *openaiClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &openaiClient{
		client: openaisdk.NewClient(opts...),
		model:  openaisdk.ChatModel(model),
	}
}

func (c *openaiClient) Complete(ctx context.Context, prompt string) (_ string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.openai.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "openai"),
			attribute.String("llm.model", string(c.model)),
		)...),
	)
	defer telemetry.EndSpan(span, err)

	completion, err := c.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.UserMessage(prompt),
		},
		MaxTokens: openaisdk.Int(openaiMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai sdk call: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return completion.Choices[0].Message.Content, nil
}

func (c *openaiClient) Name() string {
	return "openai/" + string(c.model)
}
