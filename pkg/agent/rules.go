package agent

import "strings"

// Category is the canned-reply bucket selected for a user message.
type Category string

const (
	CategoryCurrency Category = "currency"
	CategoryTravel   Category = "travel"
	CategoryDining   Category = "dining"
	CategoryGreeting Category = "greeting"
	CategoryFallback Category = "fallback"
)

// Rule selects Reply when any keyword occurs as a substring of the lower-cased input.
type Rule struct {
	Category Category
	Keywords []string
	Reply    string
}

func (r Rule) Matches(lowered string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

const (
	currencyReply = "I can help you with currency exchange rates! For real-time rates I would normally " +
		"query a live exchange-rate service. For example, 1 USD is approximately 0.85 EUR today. " +
		"Please note: this is a demo response. A fully connected assistant would provide live exchange rates."

	travelReply = "I'd love to help you plan your trip! Based on your request, I can suggest activities, " +
		"accommodations, and create personalized itineraries. A fully connected assistant would " +
		"integrate with multiple travel services and provide detailed recommendations based on your " +
		"preferences and budget."

	diningReply = "Great question about dining! I can recommend restaurants based on your location, " +
		"cuisine preferences, and budget. A fully connected assistant would check real-time " +
		"availability, reviews, and booking options."

	greetingReply = "Hello! I'm your AI Travel Assistant. I can help you with:\n\n" +
		"• Currency exchange rates and conversions\n" +
		"• Trip planning and itinerary creation\n" +
		"• Activity and dining recommendations\n" +
		"• Travel tips and advice\n\n" +
		"What would you like help with today?"

	fallbackReply = "Thank you for your question! I'm here to help with all your travel needs. " +
		"I can assist with currency exchanges, trip planning, activity recommendations, " +
		"and dining suggestions. Could you please provide more specific details about " +
		"what you'd like help with?"
)

// DefaultRules lists the canned categories in priority order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Category: CategoryCurrency, Keywords: []string{"currency", "exchange", "rate", "usd", "eur", "dollar"}, Reply: currencyReply},
		{Category: CategoryTravel, Keywords: []string{"trip", "travel", "visit", "vacation", "itinerary"}, Reply: travelReply},
		{Category: CategoryDining, Keywords: []string{"restaurant", "food", "dining", "eat"}, Reply: diningReply},
		{Category: CategoryGreeting, Keywords: []string{"hello", "hi", "hey"}, Reply: greetingReply},
	}
}

// FallbackReply is returned when no rule matches.
func FallbackReply() string { return fallbackReply }

// Classifier evaluates an ordered rule list.
type Classifier struct {
	rules    []Rule
	fallback string
}

func NewClassifier(rules []Rule, fallback string) *Classifier {
	normalized := make([]Rule, 0, len(rules))
	for _, r := range rules {
		kws := make([]string, 0, len(r.Keywords))
		for _, kw := range r.Keywords {
			if kw = strings.ToLower(kw); kw != "" {
				kws = append(kws, kw)
			}
		}
		r.Keywords = kws
		normalized = append(normalized, r)
	}
	return &Classifier{rules: normalized, fallback: fallback}
}

// Classify returns the category and reply for input. Matching is substring based,
// so "hi" matches inside "history".
func (c *Classifier) Classify(input string) (Category, string) {
	lowered := strings.ToLower(input)
	for _, r := range c.rules {
		if r.Matches(lowered) {
			return r.Category, r.Reply
		}
	}
	return CategoryFallback, c.fallback
}

var defaultClassifier = NewClassifier(DefaultRules(), fallbackReply)

// Classify uses the default rules.
func Classify(input string) Category {
	cat, _ := defaultClassifier.Classify(input)
	return cat
}

// ReplyFor returns the default canned reply for input.
func ReplyFor(input string) string {
	_, reply := defaultClassifier.Classify(input)
	return reply
}
