// Package llmstream implements the LLM Streaming Adapter (C8, §4.8): a
// provider-agnostic generator of {text_delta, tool_call, done} over
// whichever concrete provider a model id selects. Grounded directly on
// 88lin-divinesense's ai/llm.go channel-fan-out shape, generalized from a
// single OpenAI-compatible provider to a provider-selected-by-prefix rule
// with an added Anthropic branch. Each provider guards its outbound calls
// with a golang.org/x/time/rate.Limiter, the same token-bucket package the
// pack's goclaw repos declare for bounding calls to a rate-limited backend.
package llmstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// providerRateLimit bounds outbound calls per provider to a steady-state
// rate, independent of however many groups concurrently trigger agents
// (§4.7's per-group single-flight only bounds concurrency within a group).
const providerRateLimit = 5 // requests/sec, per provider, per process

const providerRateBurst = 10

// DeltaType tags a streamed value per §4.8's contract.
type DeltaType string

const (
	DeltaText     DeltaType = "text_delta"
	DeltaToolCall DeltaType = "tool_call"
	DeltaDone     DeltaType = "done"
)

// Delta is one tagged value yielded by a Provider's stream.
type Delta struct {
	Type     DeltaType
	Text     string         // set when Type == DeltaText
	ToolName string         // set when Type == DeltaToolCall
	ToolArgs map[string]any // set when Type == DeltaToolCall
	FullText string         // set when Type == DeltaDone
}

// Message is one turn of conversation history passed to a Provider.
type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

// ToolSchema describes one tool an agent may call, in provider-neutral
// form; each Provider translates it to its own wire shape.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Request is a single streaming call to a Provider.
type Request struct {
	Model           string
	System          string
	Messages        []Message
	Tools           []ToolSchema
	ReasoningEffort string
}

// Provider streams a single completion as tagged deltas ending in exactly
// one DeltaDone (or early channel close on error/cancellation).
type Provider interface {
	Stream(ctx context.Context, req Request) (<-chan Delta, error)
}

// Registry selects a Provider for a Request by its model id's prefix
// (§4.8: "Providers are inferred from the model id prefix"), holding one
// constructed client per backend.
type Registry struct {
	anthropic *anthropicProvider
	openai    *openAIProvider
}

// NewRegistry constructs provider clients from the environment's API keys.
// Either key may be empty; the corresponding provider then returns an
// error only if a request actually selects it.
func NewRegistry(anthropicAPIKey, openAIAPIKey string) *Registry {
	return &Registry{
		anthropic: newAnthropicProvider(anthropicAPIKey),
		openai:    newOpenAIProvider(openAIAPIKey),
	}
}

// Stream selects a provider by model-id prefix and delegates.
func (r *Registry) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	if strings.HasPrefix(req.Model, "claude") {
		return r.anthropic.Stream(ctx, req)
	}
	return r.openai.Stream(ctx, req)
}

// ── Anthropic provider ──────────────────────────────────────────────────

type anthropicProvider struct {
	client  anthropic.Client
	apiKey  string
	limiter *rate.Limiter
}

func newAnthropicProvider(apiKey string) *anthropicProvider {
	return &anthropicProvider{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(providerRateLimit), providerRateBurst),
	}
}

func (p *anthropicProvider) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	if p.apiKey == "" {
		return nil, errors.New("llmstream: ANTHROPIC_API_KEY not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llmstream: rate limit wait: %w", err)
	}

	msgs := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: 4096,
		Messages:  msgs,
		Tools:     anthropicTools(req.Tools),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	out := make(chan Delta, 16)
	go func() {
		defer close(out)

		var textBuilder strings.Builder
		toolNames := map[int64]string{}
		toolArgs := map[int64]*strings.Builder{}

		for stream.Next() {
			event := stream.Current()
			switch variant := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if tu, ok := variant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
					toolNames[variant.Index] = tu.Name
					toolArgs[variant.Index] = &strings.Builder{}
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := variant.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					textBuilder.WriteString(delta.Text)
					if !sendDelta(ctx, out, Delta{Type: DeltaText, Text: delta.Text}) {
						return
					}
				case anthropic.InputJSONDelta:
					if b, ok := toolArgs[variant.Index]; ok {
						b.WriteString(delta.PartialJSON)
					}
				}
			case anthropic.ContentBlockStopEvent:
				name, ok := toolNames[variant.Index]
				if !ok {
					continue
				}
				args, ok := parseToolArgs(name, toolArgs[variant.Index].String())
				if !ok {
					continue
				}
				if !sendDelta(ctx, out, Delta{Type: DeltaToolCall, ToolName: name, ToolArgs: args}) {
					return
				}
			}
		}
		if err := stream.Err(); err != nil {
			slog.Error("llmstream: anthropic stream error", "error", err)
		}
		sendDelta(ctx, out, Delta{Type: DeltaDone, FullText: textBuilder.String()})
	}()

	return out, nil
}

func anthropicTools(tools []ToolSchema) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Parameters,
				},
			},
		})
	}
	return out
}

// ── OpenAI-compatible provider ──────────────────────────────────────────

type openAIProvider struct {
	client  *openai.Client
	apiKey  string
	limiter *rate.Limiter
}

func newOpenAIProvider(apiKey string) *openAIProvider {
	return &openAIProvider{
		client:  openai.NewClient(apiKey),
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(providerRateLimit), providerRateBurst),
	}
}

func (p *openAIProvider) Stream(ctx context.Context, req Request) (<-chan Delta, error) {
	if p.apiKey == "" {
		return nil, errors.New("llmstream: OPENAI_API_KEY not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llmstream: rate limit wait: %w", err)
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	tools := make([]openai.Tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
		Tools:    tools,
		Stream:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("llmstream: create openai stream: %w", err)
	}

	out := make(chan Delta, 16)
	go func() {
		defer close(out)
		defer func() { _ = stream.Close() }()

		var textBuilder strings.Builder
		type pendingCall struct {
			name string
			args strings.Builder
		}
		pending := map[int]*pendingCall{}

		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					slog.Error("llmstream: openai stream recv error", "error", err)
				}
				break
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta
			if delta.Content != "" {
				textBuilder.WriteString(delta.Content)
				if !sendDelta(ctx, out, Delta{Type: DeltaText, Text: delta.Content}) {
					return
				}
			}
			for _, tc := range delta.ToolCalls {
				idx := 0
				if tc.Index != nil {
					idx = *tc.Index
				}
				pc, ok := pending[idx]
				if !ok {
					pc = &pendingCall{}
					pending[idx] = pc
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args.WriteString(tc.Function.Arguments)
			}
		}

		for _, pc := range pending {
			if pc.name == "" {
				continue
			}
			args, ok := parseToolArgs(pc.name, pc.args.String())
			if !ok {
				continue
			}
			if !sendDelta(ctx, out, Delta{Type: DeltaToolCall, ToolName: pc.name, ToolArgs: args}) {
				return
			}
		}

		sendDelta(ctx, out, Delta{Type: DeltaDone, FullText: textBuilder.String()})
	}()

	return out, nil
}

// parseToolArgs coalesces a tool call's buffered argument JSON. Malformed
// JSON is logged and the call dropped (§4.8, §7's "log and drop" policy
// for unrecoverable auxiliary failures).
func parseToolArgs(toolName, raw string) (map[string]any, bool) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, true
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		slog.Warn("llmstream: malformed tool call arguments, dropping call", "tool", toolName, "error", err)
		return nil, false
	}
	return args, true
}

func sendDelta(ctx context.Context, out chan<- Delta, d Delta) bool {
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}
