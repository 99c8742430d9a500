// Package pipeline runs one user turn through the two-stage decision flow:
// route (pick a tool, maybe call it) then respond (produce the final answer).
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"maestro/mcp"
)

// Completion is the language-model capability the pipeline composes with.
type Completion interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Request carries one completion call's prompts and generation parameters.
// JSONOnly constrains the reply to a single JSON object.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
	JSONOnly    bool
}

// ToolCaller is the tool-invocation capability, satisfied by *mcp.Session.
type ToolCaller interface {
	Tools() []mcp.Tool
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// State flows linearly through the two stages of one turn and is discarded
// once Result is emitted. ToolResult stays nil when no tool was used.
type State struct {
	TurnID     string
	Msg        string
	ToolResult any
	Result     string
}

// RoutingDecision is stage 1's verdict, consumed immediately.
type RoutingDecision struct {
	Tool       string
	Parameters map[string]any
	Reasoning  string
}

type Pipeline struct {
	llm    Completion
	tools  ToolCaller
	tracer trace.Tracer
}

func New(llm Completion, tools ToolCaller, tp trace.TracerProvider) *Pipeline {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &Pipeline{llm: llm, tools: tools, tracer: tp.Tracer("maestro/pipeline")}
}

// Run executes one full turn. Stage 1 completes, including its possible RPC
// round trip, before stage 2 begins. The only hard failure out of Run is the
// completion capability failing in stage 2; everything below that boundary is
// folded into the state as data.
func (p *Pipeline) Run(ctx context.Context, msg string) (State, error) {
	state := State{TurnID: uuid.New().String(), Msg: msg}

	ctx, span := p.tracer.Start(ctx, "pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("turn.id", state.TurnID))

	p.route(ctx, &state)
	if err := p.respond(ctx, &state); err != nil {
		return state, err
	}
	return state, nil
}

// route asks the model which tool, if any, the message needs, and invokes it.
// Any ambiguity — malformed routing JSON, a completion failure, an unknown
// tool, missing parameters — falls through to "no tool used", which is a
// normal outcome, and the turn proceeds with a nil ToolResult.
func (p *Pipeline) route(ctx context.Context, state *State) {
	ctx, span := p.tracer.Start(ctx, "pipeline.route")
	defer span.End()

	available := p.tools.Tools()
	reply, err := p.llm.Complete(ctx, Request{
		System:      routingSystemPrompt,
		User:        routingPrompt(state.Msg, available),
		Temperature: 0.3,
		MaxTokens:   512,
		JSONOnly:    true,
	})
	if err != nil {
		span.AddEvent("routing completion failed, falling back to no tool",
			trace.WithAttributes(attribute.String("error", err.Error())))
		return
	}

	decision, ok := parseRoutingDecision(reply)
	if !ok {
		span.AddEvent("unparsable routing decision, falling back to no tool")
		return
	}
	span.SetAttributes(attribute.String("routing.tool", decision.Tool))
	span.AddEvent("routing decision", trace.WithAttributes(
		attribute.String("routing.reasoning", decision.Reasoning)))

	if decision.Parameters == nil || !knownTool(available, decision.Tool) {
		return
	}

	result, err := p.tools.CallTool(ctx, decision.Tool, decision.Parameters)
	if err != nil {
		// Below the pipeline boundary nothing throws past stage 1; the
		// failure becomes data for stage 2 to phrase.
		span.AddEvent("tool call failed", trace.WithAttributes(
			attribute.String("error", err.Error())))
		state.ToolResult = map[string]any{"error": err.Error()}
		return
	}
	state.ToolResult = result
}

// respond produces the final answer: directly when no tool ran, otherwise
// grounded in the serialized tool result. Error-shaped tool payloads are not
// special-cased; the model decides how to phrase the failure.
func (p *Pipeline) respond(ctx context.Context, state *State) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.respond")
	defer span.End()

	if state.ToolResult == nil {
		answer, err := p.llm.Complete(ctx, Request{
			System:      answerSystemPrompt,
			User:        state.Msg,
			Temperature: 0.7,
			MaxTokens:   1024,
		})
		if err != nil {
			return fmt.Errorf("respond stage failed: %w", err)
		}
		state.Result = answer
		return nil
	}

	toolData, err := json.MarshalIndent(state.ToolResult, "", "  ")
	if err != nil {
		toolData = []byte(fmt.Sprintf("%v", state.ToolResult))
	}
	answer, err := p.llm.Complete(ctx, Request{
		System:      groundedSystemPrompt,
		User:        groundedPrompt(state.Msg, string(toolData)),
		Temperature: 0.7,
		MaxTokens:   1024,
	})
	if err != nil {
		return fmt.Errorf("respond stage failed: %w", err)
	}
	state.Result = answer
	return nil
}

// parseRoutingDecision reads the model's routing JSON leniently. A reply that
// is not a JSON object with a tool field reports !ok, never an error.
func parseRoutingDecision(reply string) (RoutingDecision, bool) {
	if !gjson.Valid(reply) {
		return RoutingDecision{}, false
	}
	doc := gjson.Parse(reply)
	if !doc.IsObject() {
		return RoutingDecision{}, false
	}
	tool := doc.Get("tool")
	if !tool.Exists() {
		return RoutingDecision{}, false
	}

	decision := RoutingDecision{
		Tool:      tool.String(),
		Reasoning: doc.Get("reasoning").String(),
	}
	if params := doc.Get("parameters"); params.IsObject() {
		if m, ok := params.Value().(map[string]any); ok {
			decision.Parameters = m
		}
	}
	return decision, true
}

func knownTool(available []mcp.Tool, name string) bool {
	for _, tool := range available {
		if tool.Name == name {
			return true
		}
	}
	return false
}
