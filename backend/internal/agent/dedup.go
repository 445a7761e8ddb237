package agent

import (
	"regexp"
	"strings"
)

// ============================================================================
// Snippet Deduplication
// ============================================================================

// Two snippets count as duplicates when their lengths differ by less than
// 10 characters and more than 80% of their words overlap. When a duplicate
// pair mixes an informative statement with a question about the same topic,
// the informative one survives.
const (
	dupLengthSlack     = 10
	dupOverlapMinimum  = 0.8
	informativeMarkers = "my name is,i have,i live,i work,i love,i like,i prefer,i was born,my favorite,my favourite"
	questionMarkers    = "do you,what's,what is,who is,where is,can you,could you,tell me,remind me"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// DeduplicateSnippets removes near-identical snippets, preferring
// informative statements over questions about the same topic. Order of the
// survivors follows first appearance.
func DeduplicateSnippets(snippets []string) []string {
	var kept []string
	for _, s := range snippets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}

		replaced := false
		duplicate := false
		for i, existing := range kept {
			if !snippetsAreDuplicates(s, existing) {
				continue
			}
			duplicate = true
			// An informative restatement displaces a question.
			if isInformativeSnippet(s) && !isInformativeSnippet(existing) {
				kept[i] = s
				replaced = true
			}
			break
		}
		if !duplicate && !replaced {
			kept = append(kept, s)
		}
	}
	return kept
}

// snippetsAreDuplicates applies the length-and-overlap rule
func snippetsAreDuplicates(a, b string) bool {
	na, nb := normalizeSnippet(a), normalizeSnippet(b)
	if na == nb {
		return true
	}

	diff := len(na) - len(nb)
	if diff < 0 {
		diff = -diff
	}
	if diff >= dupLengthSlack {
		return false
	}

	return wordOverlap(na, nb) > dupOverlapMinimum
}

// normalizeSnippet lowercases, collapses whitespace and strips trailing
// punctuation for comparison
func normalizeSnippet(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimRight(s, ".,!?;:")
}

// wordOverlap is the share of words the two normalized snippets have in
// common, measured against their average word count
func wordOverlap(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	set := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		set[w] = true
	}
	matches := 0
	for _, w := range wordsB {
		if set[w] {
			matches++
		}
	}

	avg := float64(len(wordsA)+len(wordsB)) / 2
	return float64(matches) / avg
}

// isInformativeSnippet classifies a snippet as a statement carrying
// information, as opposed to a question about it
func isInformativeSnippet(s string) bool {
	normalized := normalizeSnippet(s)
	if strings.HasSuffix(strings.TrimSpace(s), "?") {
		return false
	}
	for _, marker := range strings.Split(questionMarkers, ",") {
		if strings.HasPrefix(normalized, marker) {
			return false
		}
	}
	for _, marker := range strings.Split(informativeMarkers, ",") {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}
