package evaluation

import (
	"strings"
	"unicode"
)

// Scorer rates a produced answer against the expected answer in [0, 1].
type Scorer interface {
	Score(produced string, expected string) float64
}

// TokenOverlapScorer scores by token-level F1 between the produced and
// expected answers. Tokens are lowercased with punctuation stripped, so
// "30 days." and "30 days" score identically.
type TokenOverlapScorer struct{}

// NewTokenOverlapScorer creates the default benchmark scorer
func NewTokenOverlapScorer() *TokenOverlapScorer {
	return &TokenOverlapScorer{}
}

// Score returns the token F1 of produced against expected. Two empty
// answers score 1, one empty answer scores 0.
func (s *TokenOverlapScorer) Score(produced string, expected string) float64 {
	producedTokens := tokenize(produced)
	expectedTokens := tokenize(expected)

	if len(producedTokens) == 0 && len(expectedTokens) == 0 {
		return 1
	}
	if len(producedTokens) == 0 || len(expectedTokens) == 0 {
		return 0
	}

	expectedCounts := make(map[string]int, len(expectedTokens))
	for _, token := range expectedTokens {
		expectedCounts[token]++
	}

	overlap := 0
	for _, token := range producedTokens {
		if expectedCounts[token] > 0 {
			expectedCounts[token]--
			overlap++
		}
	}
	if overlap == 0 {
		return 0
	}

	precision := float64(overlap) / float64(len(producedTokens))
	recall := float64(overlap) / float64(len(expectedTokens))
	return 2 * precision * recall / (precision + recall)
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
