package ai

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"

	"shoptalk/internal/observability"
	"shoptalk/internal/toolcall"
	"shoptalk/pkg/models"
)

// contextMessageLimit caps how much conversation history goes to the model
const contextMessageLimit = 20

// ChatCompleter is the subset of the model API client the orchestrator uses
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ToolClient speaks the merchant tool-call protocol
type ToolClient interface {
	ListTools(ctx context.Context, endpoint string) ([]toolcall.ToolSpec, error)
	CallTool(ctx context.Context, endpoint, name string, args map[string]interface{}) (*toolcall.ToolResult, error)
}

// ContextStore loads recent conversation history for model context
type ContextStore interface {
	RecentByConversation(tenantID, conversationID uuid.UUID, limit int) ([]models.Message, error)
}

// TurnInput is one customer message plus the context needed to answer it
type TurnInput struct {
	TenantID         uuid.UUID
	ConversationID   uuid.UUID
	StoreName        string
	CustomerPhone    string
	Message          string
	ChannelMessageID string
	ToolEndpoint     string
}

// TurnResult is the reply produced for the customer. ResponseText is never
// empty: when everything upstream fails the orchestrator degrades to a canned
// reply rather than leaving the customer without an answer.
type TurnResult struct {
	ResponseText  string
	Intent        string
	UsedTools     bool
	ToolsExecuted []string
}

// Orchestrator runs one AI turn per inbound message: classify, gather
// context, let the model pick tools, execute them against the merchant tool
// server, and turn the results into a reply.
type Orchestrator struct {
	client ChatCompleter
	tools  ToolClient
	store  ContextStore
	model  string
}

// NewOrchestrator creates an AI turn orchestrator
func NewOrchestrator(client ChatCompleter, tools ToolClient, store ContextStore, model string) *Orchestrator {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &Orchestrator{client: client, tools: tools, store: store, model: model}
}

// RunTurn produces a reply for an inbound customer message. It does not
// return an error: every failure mode maps to a degraded but sendable reply.
func (o *Orchestrator) RunTurn(ctx context.Context, input TurnInput) *TurnResult {
	start := time.Now()
	intent := ClassifyIntent(input.Message)
	result := &TurnResult{Intent: intent}
	outcome := "ok"
	defer func() {
		observability.AITurn.WithLabelValues(intent, outcome).Inc()
		observability.AITurnLatency.Observe(time.Since(start).Seconds())
	}()

	if intent == IntentGreeting {
		result.ResponseText = welcomeMessage(input.StoreName)
		return result
	}

	if o.client == nil {
		outcome = "no_model"
		result.ResponseText = fallbackReplyFor(intent)
		return result
	}

	messages := o.buildContext(input)
	tools := o.loadTools(ctx, input.ToolEndpoint)

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}
	if len(tools) > 0 {
		req.Tools = tools
		req.ToolChoice = "auto"
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil || len(resp.Choices) == 0 {
		log.Error().
			Err(err).
			Str("tenant_id", input.TenantID.String()).
			Str("conversation_id", input.ConversationID.String()).
			Msg("Model call failed, sending fallback reply")
		outcome = "model_error"
		result.ResponseText = fallbackReplyFor(intent)
		return result
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		result.ResponseText = choice.Message.Content
		if result.ResponseText == "" {
			outcome = "empty_response"
			result.ResponseText = fallbackReplyFor(intent)
		}
		return result
	}

	toolResults, executed := o.executeToolCalls(ctx, input, choice.Message.ToolCalls)
	result.ToolsExecuted = executed
	result.UsedTools = len(toolResults) > 0

	if len(toolResults) == 0 {
		outcome = "tools_failed"
	}
	result.ResponseText = o.humanize(ctx, messages, choice.Message, choice.Message.ToolCalls, toolResults)
	return result
}

// buildContext assembles system prompt, recent history, and the new message
func (o *Orchestrator) buildContext(input TurnInput) []openai.ChatCompletionMessage {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: buildSystemPrompt(input.StoreName)},
	}

	history, err := o.store.RecentByConversation(input.TenantID, input.ConversationID, contextMessageLimit)
	if err != nil {
		log.Warn().
			Err(err).
			Str("conversation_id", input.ConversationID.String()).
			Msg("Failed to load conversation history, answering without context")
		history = nil
	}

	// The inbound message is stored before the turn runs, so it comes back
	// as the newest history entry. Drop it there; it is appended once as the
	// final user turn below.
	if n := len(history); n > 0 && history[n-1].Direction == models.DirectionIn {
		last := history[n-1]
		current := last.Content == input.Message
		if input.ChannelMessageID != "" {
			current = last.ChannelMessageID == input.ChannelMessageID
		}
		if current {
			history = history[:n-1]
		}
	}

	for _, m := range history {
		if m.Content == "" {
			continue
		}
		role := openai.ChatMessageRoleAssistant
		if m.Direction == models.DirectionIn {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	return append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: input.Message,
	})
}

// loadTools fetches the merchant tool catalog; a missing or failing tool
// server degrades the turn to plain conversation
func (o *Orchestrator) loadTools(ctx context.Context, endpoint string) []openai.Tool {
	if endpoint == "" || o.tools == nil {
		return nil
	}
	specs, err := o.tools.ListTools(ctx, endpoint)
	if err != nil {
		log.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Msg("Tool catalog unavailable, answering without tools")
		return nil
	}
	return toOpenAITools(specs)
}

// executeToolCalls runs the model's tool calls in order against the merchant
// endpoint. A failed tool is logged and dropped; the remaining results still
// feed the reply.
func (o *Orchestrator) executeToolCalls(ctx context.Context, input TurnInput, calls []openai.ToolCall) ([]toolcall.ToolResult, []string) {
	var results []toolcall.ToolResult
	var executed []string

	for _, call := range calls {
		if call.Type != openai.ToolTypeFunction {
			continue
		}
		executed = append(executed, call.Function.Name)
		args := parseToolArguments(call.Function.Arguments)

		res, err := o.tools.CallTool(ctx, input.ToolEndpoint, call.Function.Name, args)
		if err != nil {
			log.Warn().
				Err(err).
				Str("tool", call.Function.Name).
				Str("conversation_id", input.ConversationID.String()).
				Msg("Tool call failed, excluding from reply")
			continue
		}
		results = append(results, *res)
	}
	return results, executed
}

// humanize asks the model to turn tool output into a customer reply. When
// that second call fails the raw tool results are summarized instead.
func (o *Orchestrator) humanize(ctx context.Context, messages []openai.ChatCompletionMessage, assistant openai.ChatCompletionMessage, calls []openai.ToolCall, results []toolcall.ToolResult) string {
	followUp := append([]openai.ChatCompletionMessage{}, messages...)
	followUp = append(followUp, assistant)

	resultByName := map[string]string{}
	for _, r := range results {
		resultByName[r.Name] = r.Text
	}
	for _, call := range calls {
		text, ok := resultByName[call.Function.Name]
		if !ok {
			text = "tool unavailable"
		}
		followUp = append(followUp, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Content:    text,
		})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: followUp,
	})
	if err != nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		log.Warn().Err(err).Msg("Humanization call failed, summarizing tool results")
		return summarizeToolResults(results)
	}
	return resp.Choices[0].Message.Content
}
