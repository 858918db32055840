package ai

import "strings"

// Intents recognized by the lightweight classifier. The model still decides
// which tools to call; intent only drives metrics and the greeting
// short-circuit.
const (
	IntentProductSearch = "product_search"
	IntentCart          = "cart"
	IntentOrderStatus   = "order_status"
	IntentPolicy        = "policy"
	IntentGreeting      = "greeting"
	IntentGeneral       = "general"
)

var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{IntentOrderStatus, []string{"order status", "my order", "track", "tracking", "shipped", "delivery date", "where is my"}},
	{IntentCart, []string{"cart", "checkout", "add to", "remove from", "buy now", "purchase"}},
	{IntentProductSearch, []string{"do you have", "do you sell", "looking for", "price of", "how much", "in stock", "available", "search"}},
	{IntentPolicy, []string{"return", "refund", "exchange", "policy", "shipping cost", "warranty", "opening hours", "open on"}},
	{IntentGreeting, []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening", "hola"}},
}

// ClassifyIntent maps a customer message onto a coarse intent by keyword.
// Greeting matches only when the whole message is a greeting, so "hi, where
// is my order" routes to order_status.
func ClassifyIntent(message string) string {
	normalized := strings.ToLower(strings.TrimSpace(message))
	if normalized == "" {
		return IntentGeneral
	}

	for _, group := range intentKeywords {
		for _, kw := range group.keywords {
			if group.intent == IntentGreeting {
				if normalized == kw || normalized == kw+"!" || normalized == kw+"." {
					return IntentGreeting
				}
				continue
			}
			if strings.Contains(normalized, kw) {
				return group.intent
			}
		}
	}
	return IntentGeneral
}
