package sentiment

import (
	"strings"
	"unicode"
)

// Scorer produces a sentiment score for message text. The pipeline depends on
// this interface so the keyword heuristic stays swappable.
type Scorer interface {
	Score(text string) float64
}

var negativeWords = map[string]struct{}{
	"terrible": {}, "awful": {}, "horrible": {}, "worst": {}, "broken": {},
	"unusable": {}, "ridiculous": {}, "unacceptable": {}, "frustrated": {},
	"furious": {}, "angry": {}, "disappointed": {}, "pathetic": {},
	"useless": {}, "rubbish": {}, "disgusting": {}, "outrageous": {},
	"absurd": {}, "failing": {}, "hate": {}, "slow": {}, "buggy": {},
	"crashing": {}, "missing": {}, "lost": {}, "down": {}, "error": {},
}

var positiveWords = map[string]struct{}{
	"great": {}, "thanks": {}, "thank": {}, "please": {}, "appreciate": {},
	"wonderful": {}, "excellent": {}, "helpful": {}, "love": {},
	"fantastic": {}, "perfect": {}, "good": {}, "nice": {}, "happy": {},
	"amazing": {}, "awesome": {}, "easy": {}, "works": {}, "solved": {},
	"fixed": {}, "resolved": {},
}

// KeywordScorer is the deterministic keyword heuristic. A fast, auditable
// word-list intersection is intentional here, not a stand-in for a model.
type KeywordScorer struct{}

func NewKeywordScorer() *KeywordScorer { return &KeywordScorer{} }

// Score rates text from very negative to very positive in [0.05, 0.95].
// Text with no keyword signal scores exactly neutral 0.5.
func (s *KeywordScorer) Score(text string) float64 {
	words := tokenize(text)

	negCount := 0
	posCount := 0
	for word := range words {
		if _, ok := negativeWords[word]; ok {
			negCount++
		}
		if _, ok := positiveWords[word]; ok {
			posCount++
		}
	}

	// ALL CAPS reads as anger.
	alpha := alphaOnly(text)
	if len(alpha) >= 10 && alpha == strings.ToUpper(alpha) {
		negCount += 3
	}

	// Excessive punctuation (!!! or ???).
	if strings.Count(text, "!") >= 3 || strings.Count(text, "?") >= 3 {
		negCount++
	}

	total := negCount + posCount
	if total == 0 {
		return 0.5
	}

	// Compress toward the center so sparse keyword matches never claim
	// certainty at either extreme.
	score := float64(posCount)/float64(total)*0.8 + 0.1
	return clamp(score, 0.05, 0.95)
}

func tokenize(text string) map[string]struct{} {
	words := map[string]struct{}{}
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	}) {
		if field != "" {
			words[field] = struct{}{}
		}
	}
	return words
}

func alphaOnly(text string) string {
	var b strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
