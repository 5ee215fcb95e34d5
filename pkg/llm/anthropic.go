package llm

import (
	"context"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/metakeyai/spelld/pkg/telemetry"
)

const anthropicMaxTokens = 1024

var _ Client = (*anthropicClient)(nil)

// anthropicClient wraps the official Anthropic SDK.
type anthropicClient struct {
	client *anthropicsdk.Client
	model  anthropicsdk.Model
}

func newAnthropic(apiKey, model, baseURL string) *anthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := anthropicsdk.NewClient(opts...)
	return &anthropicClient{
		client: &client,
		model:  anthropicsdk.Model(model),
	}
}

func (c *anthropicClient) Complete(ctx context.Context, prompt string) (_ string, err error) {
	ctx, span := telemetry.StartSpan(ctx, "llm.anthropic.complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(telemetry.SanitizeAttributes(
			attribute.String("llm.provider", "anthropic"),
			attribute.String("llm.model", string(c.model)),
		)...),
	)
	defer telemetry.EndSpan(span, err)

	message, err := c.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic sdk call: %w", err)
	}

	var parts []string
	for _, block := range message.Content {
		if text, ok := block.AsAny().(anthropicsdk.TextBlock); ok {
			parts = append(parts, text.Text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func (c *anthropicClient) Name() string {
	return "anthropic/" + string(c.model)
}
