package ai

import (
	"fmt"
	"strings"

	"shoptalk/internal/toolcall"
)

// buildSystemPrompt assembles the store-scoped system prompt
func buildSystemPrompt(storeName string) string {
	if storeName == "" {
		storeName = "our store"
	}
	return fmt.Sprintf(`You are the shopping assistant for %s, answering customers over SMS and WhatsApp.

Rules:
- Be concise. Messages are read on a phone; keep answers under three short sentences when possible.
- Use the available tools to look up products, orders, carts and store policy. Never invent product details, prices or order states.
- If a tool returns nothing useful, say so plainly and offer to help another way.
- Answer in the customer's language.
- Never mention tools, systems or internal errors to the customer.`, storeName)
}

// welcomeMessage is sent when a conversation opens with a bare greeting,
// skipping the model round trip entirely
func welcomeMessage(storeName string) string {
	if storeName == "" {
		return "Hi! How can I help you today?"
	}
	return fmt.Sprintf("Hi! Welcome to %s. How can I help you today?", storeName)
}

// fallbackReply is the generic canned response when the model is
// unavailable. The customer always gets an answer, never silence.
const fallbackReply = "Sorry, I'm having trouble answering right now. Please try again in a moment, or reply HELP to reach the store directly."

// intentFallbacks vary the canned reply by classified intent so a degraded
// turn still acknowledges what the customer asked about
var intentFallbacks = map[string]string{
	IntentProductSearch: "Sorry, I can't search the catalog right now. Please try again in a moment, or reply HELP to reach the store directly.",
	IntentCart:          "Sorry, I can't update your cart right now. Please try again in a moment, or reply HELP to reach the store directly.",
	IntentOrderStatus:   "Sorry, I can't look up your order right now. Please try again in a moment, or reply HELP to reach the store directly.",
	IntentPolicy:        "Sorry, I can't check that for you right now. Please try again in a moment, or reply HELP to reach the store directly.",
}

// fallbackReplyFor picks the canned reply for a failed turn
func fallbackReplyFor(intent string) string {
	if reply, ok := intentFallbacks[intent]; ok {
		return reply
	}
	return fallbackReply
}

// summarizeToolResults renders raw tool output as a plain reply when the
// humanization call fails. Worse prose than the model's, but the customer
// still gets the data.
func summarizeToolResults(results []toolcall.ToolResult) string {
	if len(results) == 0 {
		return fallbackReply
	}
	var b strings.Builder
	b.WriteString("Here's what I found:\n")
	for _, r := range results {
		text := strings.TrimSpace(r.Text)
		if text == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(text)
		b.WriteString("\n")
	}
	out := strings.TrimRight(b.String(), "\n")
	if out == "Here's what I found:" {
		return fallbackReply
	}
	return out
}
