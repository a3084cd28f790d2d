// Package classifier scores a prompt's difficulty with a deterministic
// rule-based function. No API calls, no state: safe to share across requests.
package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ndthang/smart-router/config"
)

// Result is the outcome of classifying a single prompt.
type Result struct {
	Tier       config.Tier
	Confidence float64
	// Rationale lists the signals that fired, in evaluation order.
	Rationale []string
}

// Reasoning returns the rationale trace as a single human-readable string.
func (r Result) Reasoning() string {
	return strings.Join(r.Rationale, " | ")
}

// Keywords that push a prompt toward the complex tier. Disjoint from
// simpleKeywords by construction; checked in TestKeywordListsDisjoint.
var complexKeywords = []string{
	"write a", "create a", "build a", "develop",
	"analyze", "compare", "explain why", "reason",
	"architecture", "system design", "algorithm",
	"debug", "refactor", "optimize",
	"multi-step", "chain of thought", "reasoning",
	"creative writing", "story", "essay", "article",
}

var simpleKeywords = []string{
	"summarize", "what is", "define", "list",
	"translate", "convert", "format",
	"yes or no", "true or false",
	"capital of", "when was", "who is",
}

// Substrings that indicate the caller wants an explanation or derivation,
// not just an answer.
var reasoningIndicators = []string{"explain", "why", "how does", "reasoning", "analyze"}

// Code signals stay case-sensitive: an uppercase IMPORT mid-sentence is
// prose, not code.
var codePatterns = []*regexp.Regexp{
	regexp.MustCompile("```"),                 // fenced code block
	regexp.MustCompile(`def\s+\w+\s*\(`),      // python function
	regexp.MustCompile(`function\s+\w+\s*\(`), // javascript function
	regexp.MustCompile(`class\s+\w+`),         // class definition
	regexp.MustCompile(`\bimport\s+\w+`),      // import statement
	regexp.MustCompile(`<\w+>.*</\w+>`),       // markup tag pair
}

// Classify maps a non-empty prompt to a difficulty tier. The caller is
// responsible for rejecting empty prompts upstream.
func Classify(prompt string) Result {
	lower := strings.ToLower(prompt)

	score := 0.0
	var rationale []string

	// 1. Length
	wordCount := len(strings.Fields(prompt))
	if wordCount < 10 {
		score -= 0.3
		rationale = append(rationale, fmt.Sprintf("short prompt (%d words)", wordCount))
	} else if wordCount > 50 {
		score += 0.2
		rationale = append(rationale, fmt.Sprintf("long prompt (%d words)", wordCount))
	}

	// 2. Keyword matching
	complexMatches := countMatches(lower, complexKeywords)
	simpleMatches := countMatches(lower, simpleKeywords)
	if complexMatches > simpleMatches {
		score += 0.4 * float64(complexMatches)
		rationale = append(rationale, fmt.Sprintf("complex keywords: %d", complexMatches))
	} else if simpleMatches > 0 {
		score -= 0.3 * float64(simpleMatches)
		rationale = append(rationale, fmt.Sprintf("simple keywords: %d", simpleMatches))
	}

	// 3. Code detection
	if containsCode(prompt) {
		score += 0.3
		rationale = append(rationale, "contains code")
	}

	// 4. Question form
	questionMarks := strings.Count(prompt, "?")
	if questionMarks == 1 && wordCount < 15 {
		score -= 0.2
		rationale = append(rationale, "single simple question")
	} else if questionMarks > 2 {
		score += 0.2
		rationale = append(rationale, "multiple questions")
	}

	// 5. Request for reasoning
	for _, indicator := range reasoningIndicators {
		if strings.Contains(lower, indicator) {
			score += 0.3
			rationale = append(rationale, "requires reasoning")
			break
		}
	}

	switch {
	case score < -0.3:
		confidence := 0.7 - score // score is negative here
		if confidence > 0.9 {
			confidence = 0.9
		}
		return Result{Tier: config.TierSimple, Confidence: confidence, Rationale: rationale}
	case score > 0.5:
		confidence := 0.65 + 0.3*score
		if confidence > 0.9 {
			confidence = 0.9
		}
		return Result{Tier: config.TierComplex, Confidence: confidence, Rationale: rationale}
	default:
		return Result{Tier: config.TierMedium, Confidence: 0.6, Rationale: rationale}
	}
}

func countMatches(lower string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			n++
		}
	}
	return n
}

func containsCode(prompt string) bool {
	for _, p := range codePatterns {
		if p.MatchString(prompt) {
			return true
		}
	}
	return false
}
