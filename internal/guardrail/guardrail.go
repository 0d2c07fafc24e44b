package guardrail

import (
	"strings"
	"unicode"
)

// Escalation reason codes.
const (
	ReasonPricing           = "pricing_inquiry"
	ReasonRefund            = "refund_request"
	ReasonLegal             = "legal"
	ReasonHumanRequest      = "human_request"
	ReasonDataSecurity      = "data_security"
	ReasonAbusiveLanguage   = "abusive_language"
	ReasonNegativeSentiment = "negative_sentiment"
)

// negativeSentimentThreshold forces escalation below this score.
const negativeSentimentThreshold = 0.3

// keywordCategory binds an ordered trigger category to its phrase list and
// reason code.
type keywordCategory struct {
	reason  string
	phrases []string
}

// keywordCategories are evaluated in fixed order: the first category with a
// match wins, so a message with both pricing and refund phrasing is a
// pricing inquiry.
var keywordCategories = []keywordCategory{
	{ReasonPricing, []string{
		"how much", "pricing", "cost", "discount", "quote", "negotiate",
		"deal", "price", "subscription cost", "enterprise pricing",
	}},
	{ReasonRefund, []string{
		"refund", "money back", "credit", "compensation", "charge back",
		"billing dispute", "overcharged",
	}},
	{ReasonLegal, []string{
		"lawyer", "attorney", "legal", "sue", "lawsuit", "court",
		"regulation", "compliance audit", "subpoena",
	}},
	{ReasonHumanRequest, []string{
		"human", "person", "agent", "representative", "manager",
		"supervisor", "talk to someone", "speak to someone", "real person",
	}},
	{ReasonDataSecurity, []string{
		"data missing", "disappeared", "hacked", "unauthorized",
		"breach", "deleted without", "security incident",
	}},
}

var profanityPatterns = []string{
	"damn", "hell", "crap", "stupid", "idiot", "incompetent",
	"scam", "terrible", "worst", "unacceptable", "garbage", "trash",
	"useless", "pathetic", "ridiculous",
}

// Decision is the outcome of a guardrail trip.
type Decision struct {
	Reason string
}

// Engine evaluates whether automated handling of a message is forbidden.
// It is a hard gate: the pipeline must consult it before any automated
// response is generated.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Check evaluates all trigger families. It returns the escalation decision
// and true when any trigger fires; the sentiment trigger is only consulted
// when no keyword or abuse trigger matched.
func (e *Engine) Check(text string, sentimentScore float64) (Decision, bool) {
	if reason, ok := e.keywordTrigger(text); ok {
		return Decision{Reason: reason}, true
	}
	if sentimentScore < negativeSentimentThreshold {
		return Decision{Reason: ReasonNegativeSentiment}, true
	}
	return Decision{}, false
}

func (e *Engine) keywordTrigger(text string) (string, bool) {
	lower := strings.ToLower(text)

	for _, category := range keywordCategories {
		for _, phrase := range category.phrases {
			if strings.Contains(lower, phrase) {
				return category.reason, true
			}
		}
	}

	for _, word := range profanityPatterns {
		if strings.Contains(lower, word) {
			return ReasonAbusiveLanguage, true
		}
	}

	if shoutingRatio(text) {
		return ReasonAbusiveLanguage, true
	}

	return "", false
}

// shoutingRatio reports whether more than half of the alphabetic characters
// are uppercase in a message longer than 10 alphabetic characters.
func shoutingRatio(text string) bool {
	alpha := 0
	upper := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			alpha++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if alpha <= 10 {
		return false
	}
	return float64(upper)/float64(alpha) > 0.5
}
