package memory

import "strings"

// ============================================================================
// Category Assignment
// ============================================================================

// AssignmentRule maps a keyword set to a named primary bucket. Rules are
// evaluated in order against the fact's serialized line; the first rule with
// at least one keyword hit wins.
type AssignmentRule struct {
	Bucket     string
	Themes     []string
	Keywords   []string
	Confidence float64
}

// Assignment is the result of routing one entity
type Assignment struct {
	Bucket     string
	Kind       CategoryKind
	Themes     []string
	Confidence float64
	Matched    bool // false when the entity fell through to the general sink
}

// DefaultAssignmentRules is the static routing table. Keywords are matched
// against the typed serialized line of the fact, not the raw message, so a
// pet statement containing the word "name" still lands in the living bucket.
var DefaultAssignmentRules = []AssignmentRule{
	{
		Bucket: "Personal Identity & Relationships",
		Themes: []string{"identity", "relationships"},
		Keywords: []string{
			"name", "wife", "husband", "partner", "girlfriend", "boyfriend",
			"mother", "mom", "father", "dad", "sister", "brother", "son",
			"daughter", "friend", "family", "cousin", "aunt", "uncle",
			"grandmother", "grandfather", "roommate",
		},
		Confidence: 0.9,
	},
	{
		Bucket: "Living Situation & Environment",
		Themes: []string{"living", "home", "pets"},
		Keywords: []string{
			"lives in", "home", "apartment", "house", "moved", "address",
			"pet", "cat", "dog", "kitten", "puppy", "bird", "parrot", "fish",
			"hamster", "rabbit", "turtle", "retriever", "terrier",
		},
		Confidence: 0.85,
	},
	{
		Bucket: "Professional Life",
		Themes: []string{"work", "career"},
		Keywords: []string{
			"works", "work", "job", "career", "company", "office",
			"colleague", "boss", "profession", "engineer", "teacher",
			"doctor", "developer",
		},
		Confidence: 0.85,
	},
	{
		Bucket: "Interests & Preferences",
		Themes: []string{"interests", "preferences"},
		Keywords: []string{
			"favorite", "favourite", "loves", "likes", "dislikes", "prefers",
			"enjoys", "hobby",
		},
		Confidence: 0.8,
	},
	{
		Bucket: "Health & Medical",
		Themes: []string{"health", "medical"},
		Keywords: []string{
			"allergic", "allergy", "medication", "takes", "doctor",
			"condition", "asthma", "diabetes", "health",
		},
		Confidence: 0.9,
	},
	{
		Bucket: "Events & Dates",
		Themes: []string{"events", "dates"},
		Keywords: []string{
			"birthday", "anniversary", "born", "wedding", "appointment",
		},
		Confidence: 0.85,
	},
}

// GeneralConfidence is the assignment confidence of the fallback sink
const GeneralConfidence = 0.5

// AssignEntity routes an entity through the rule table. Entities no rule
// claims go to the general category at low confidence; nothing is ever
// rejected outright. The winning rule's themes plus the entity family are
// carried onto the target category.
func AssignEntity(e Entity, rules []AssignmentRule) Assignment {
	serialized := strings.ToLower(e.Payload.Line())
	words := lineWords(serialized)

	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if keywordHits(serialized, words, kw) {
				return Assignment{
					Bucket:     rule.Bucket,
					Kind:       CategoryPrimary,
					Themes:     appendTheme(rule.Themes, string(e.Type)),
					Confidence: rule.Confidence,
					Matched:    true,
				}
			}
		}
	}

	return Assignment{
		Bucket:     GeneralCategoryName,
		Kind:       CategoryGeneral,
		Themes:     []string{string(e.Type)},
		Confidence: GeneralConfidence,
		Matched:    false,
	}
}

// lineWords tokenizes a lowercased line into its distinct words. Matching on
// whole words keeps a keyword like "cat" from hitting inside "location".
func lineWords(line string) map[string]struct{} {
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(line, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '\''
	}) {
		words[strings.Trim(w, "'")] = struct{}{}
	}
	return words
}

// keywordHits reports whether a rule keyword occurs in the line. Single
// words must match a whole token; multi-word keywords ("lives in") match as
// a phrase.
func keywordHits(line string, words map[string]struct{}, kw string) bool {
	if strings.ContainsRune(kw, ' ') {
		return strings.Contains(line, kw)
	}
	_, ok := words[kw]
	return ok
}

func appendTheme(themes []string, theme string) []string {
	out := make([]string, 0, len(themes)+1)
	out = append(out, themes...)
	for _, t := range out {
		if t == theme {
			return out
		}
	}
	return append(out, theme)
}

// MergeThemes folds new themes into an existing list, preserving order and
// dropping duplicates. Returns the merged list and whether it changed.
func MergeThemes(existing, incoming []string) ([]string, bool) {
	merged := append([]string(nil), existing...)
	changed := false
	for _, theme := range incoming {
		found := false
		for _, t := range merged {
			if strings.EqualFold(t, theme) {
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, theme)
			changed = true
		}
	}
	return merged, changed
}
