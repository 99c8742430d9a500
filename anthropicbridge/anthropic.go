// Package anthropicbridge implements the pipeline's Completion capability on
// top of the Anthropic Messages API.
package anthropicbridge

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro/pipeline"
)

const DefaultModel = anthropic.ModelClaude3_7SonnetLatest

const defaultMaxTokens = 1024

type Bridge struct {
	client anthropic.Client
	model  anthropic.Model
	tracer trace.Tracer
}

// New builds a bridge for the given model name; an empty name selects
// DefaultModel. The API key comes from ANTHROPIC_API_KEY.
func New(model string, tp trace.TracerProvider) (*Bridge, error) {
	apiKey, ok := os.LookupEnv("ANTHROPIC_API_KEY")
	if !ok {
		return nil, errors.New("no ANTHROPIC_API_KEY found")
	}
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	selected := DefaultModel
	if model != "" {
		selected = anthropic.Model(model)
	}
	return &Bridge{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  selected,
		tracer: tp.Tracer("maestro/anthropicbridge"),
	}, nil
}

// Complete runs one non-streaming completion. JSONOnly requests prefill an
// assistant "{" turn so the model continues a bare JSON object; the brace is
// re-prepended to the reply.
func (b *Bridge) Complete(ctx context.Context, req pipeline.Request) (string, error) {
	ctx, span := b.tracer.Start(ctx, "anthropicbridge.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", string(b.model)))

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
	}
	if req.JSONOnly {
		messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock("{")))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     b.model,
		MaxTokens: maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	message, err := b.client.Messages.New(ctx, params)
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range message.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(tb.Text)
		}
	}
	reply := strings.TrimSpace(text.String())
	if req.JSONOnly {
		reply = "{" + reply
	}
	return reply, nil
}
