package memory

import (
	"regexp"
	"strings"
)

// ============================================================================
// Entity Extractor
// ============================================================================

// Extractor turns raw message text into zero or more typed candidate facts.
// It is pure pattern matching: confidences are fixed per pattern, nothing is
// learned, and unmatched input yields an empty list. It never errors.
type Extractor struct{}

// NewExtractor creates an entity extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// questionLeadWords is the closed set of words that mark a message as a
// question when it starts with one of them. Extracting facts from questions
// would store false information ("what's my name?" must not create a name
// fact), so such messages produce no entities at all.
var questionLeadWords = map[string]bool{
	"what": true, "what's": true, "whats": true,
	"who": true, "who's": true, "whos": true,
	"where": true, "where's": true,
	"when": true, "when's": true,
	"why": true, "how": true,
	"do": true, "does": true, "did": true,
	"can": true, "could": true, "would": true, "will": true, "should": true,
	"is": true, "are": true, "am": true,
	"tell": true, "remind": true,
}

// IsQuestion reports whether the message is interrogative: it ends with a
// question mark or starts with a question lead-word.
func IsQuestion(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(trimmed, "?") {
		return true
	}
	first := strings.ToLower(strings.Fields(trimmed)[0])
	first = strings.Trim(first, ".,!;:")
	return questionLeadWords[first]
}

// Extract returns the candidate facts found in the message. For each entity
// family the ordered pattern list is tried and the first match wins; multiple
// families may match the same message.
func (e *Extractor) Extract(text string) []Entity {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || IsQuestion(trimmed) {
		return nil
	}

	var entities []Entity
	for _, family := range extractionFamilies {
		for _, p := range family.patterns {
			m := p.re.FindStringSubmatch(trimmed)
			if m == nil {
				continue
			}
			payloads := p.build(m)
			for _, payload := range payloads {
				entities = append(entities, Entity{
					Type:       payload.Type(),
					Payload:    payload,
					Confidence: p.confidence,
					Source:     trimmed,
				})
			}
			if len(payloads) > 0 {
				break // first matching pattern per family wins
			}
		}
	}
	return entities
}

// pattern is one textual pattern with its fixed confidence. build turns the
// regex submatches into typed payloads; it may return several (multi-pet
// statements) or none (match rejected on closer inspection).
type pattern struct {
	re         *regexp.Regexp
	confidence float64
	build      func(m []string) []FactPayload
}

type family struct {
	entityType EntityType
	patterns   []pattern
}

var extractionFamilies = []family{
	{EntityName, namePatterns},
	{EntityPet, petPatterns},
	{EntityLocation, locationPatterns},
	{EntityRelationship, relationshipPatterns},
	{EntityPreference, preferencePatterns},
	{EntityDate, datePatterns},
	{EntityMedical, medicalPatterns},
	{EntityWork, workPatterns},
}

// ----------------------------------------------------------------------------
// Name
// ----------------------------------------------------------------------------

var namePatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z'-]+)`),
		confidence: 0.95,
		build:      buildName,
	},
	{
		re:         regexp.MustCompile(`(?i)\b(?:please )?call me ([a-z][a-z'-]+)`),
		confidence: 0.9,
		build:      buildName,
	},
	{
		re:         regexp.MustCompile(`(?i)\bi(?:'m| am) called ([a-z][a-z'-]+)`),
		confidence: 0.85,
		build:      buildName,
	},
	{
		re:         regexp.MustCompile(`(?i)\bi go by ([a-z][a-z'-]+)`),
		confidence: 0.8,
		build:      buildName,
	},
}

func buildName(m []string) []FactPayload {
	name := titleCase(m[1])
	if name == "" {
		return nil
	}
	return []FactPayload{NamePayload{Name: name}}
}

// ----------------------------------------------------------------------------
// Pet
// ----------------------------------------------------------------------------

// petSpeciesTokens gates the loose "i have ... named ..." pattern so that
// "I have two kids named ..." does not become a pet fact.
var petSpeciesTokens = []string{
	"dog", "cat", "kitten", "puppy", "bird", "parrot", "fish", "hamster",
	"rabbit", "bunny", "turtle", "tortoise", "snake", "lizard", "gecko",
	"ferret", "guinea pig", "retriever", "terrier", "poodle", "labrador",
	"shepherd", "bulldog", "beagle", "corgi", "husky", "dachshund", "pug",
}

var petPatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bi have (?:a|an|one|two|three|four|five|six|\d+)?\s*([a-z][a-z ]*?)s? (?:named|called) ([a-z][a-z ,'-]*(?:\band\b[a-z ,'-]*)?)`),
		confidence: 0.9,
		build: func(m []string) []FactPayload {
			species := strings.ToLower(strings.TrimSpace(m[1]))
			if !isPetSpecies(species) {
				return nil
			}
			var payloads []FactPayload
			for _, name := range splitNameList(m[2]) {
				payloads = append(payloads, PetPayload{Name: name, Species: species})
			}
			return payloads
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bmy ([a-z][a-z ]*?)(?:'s name is| is named| is called) ([a-z][a-z'-]+)`),
		confidence: 0.9,
		build: func(m []string) []FactPayload {
			species := strings.ToLower(strings.TrimSpace(m[1]))
			if !isPetSpecies(species) {
				return nil
			}
			return []FactPayload{PetPayload{Name: titleCase(m[2]), Species: species}}
		},
	},
}

func isPetSpecies(species string) bool {
	for _, token := range petSpeciesTokens {
		if strings.Contains(species, token) {
			return true
		}
	}
	return false
}

// splitNameList parses "Holly and Benny" or "Holly, Benny and Max" into
// individual title-cased names.
func splitNameList(list string) []string {
	list = strings.ReplaceAll(list, ",", " and ")
	var names []string
	for _, part := range strings.Split(list, " and ") {
		part = trimValue(part)
		if part == "" {
			continue
		}
		// A multi-word chunk here means the pattern overran the name list;
		// the name is the first word. Pronouns mean the overrun started a
		// new clause, not a name.
		first := strings.ToLower(strings.Fields(part)[0])
		if nameStopwords[first] {
			continue
		}
		names = append(names, titleCase(first))
	}
	return names
}

var nameStopwords = map[string]bool{
	"i": true, "we": true, "he": true, "she": true, "it": true, "they": true,
	"my": true, "the": true, "a": true, "an": true, "also": true,
}

// ----------------------------------------------------------------------------
// Location
// ----------------------------------------------------------------------------

var locationPatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bi live in ([a-z][a-z .,'-]*)`),
		confidence: 0.9,
		build:      buildLocation(LocationResidence),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi(?:'ve| have)? ?(?:just |recently )?moved to ([a-z][a-z .,'-]*)`),
		confidence: 0.85,
		build:      buildLocation(LocationResidence),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi(?:'m| am) (?:originally )?from ([a-z][a-z .,'-]*)`),
		confidence: 0.85,
		build:      buildLocation(LocationOrigin),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi grew up in ([a-z][a-z .,'-]*)`),
		confidence: 0.8,
		build:      buildLocation(LocationOrigin),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi work in ([a-z][a-z .,'-]*)`),
		confidence: 0.75,
		build:      buildLocation(LocationWork),
	},
}

func buildLocation(kind LocationKind) func(m []string) []FactPayload {
	return func(m []string) []FactPayload {
		place := titleCase(trimValue(m[1]))
		if place == "" {
			return nil
		}
		return []FactPayload{LocationPayload{Kind: kind, Place: place}}
	}
}

// ----------------------------------------------------------------------------
// Relationship
// ----------------------------------------------------------------------------

const relationAlternatives = `wife|husband|partner|fianc[ée]e?|girlfriend|boyfriend|mother|mom|father|dad|sister|brother|son|daughter|grandmother|grandma|grandfather|grandpa|aunt|uncle|cousin|roommate|best friend|friend`

var relationshipPatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bmy (` + relationAlternatives + `)(?:'s name is| is named| is called) ([a-z][a-z'-]+)`),
		confidence: 0.9,
		build: func(m []string) []FactPayload {
			return []FactPayload{RelationshipPayload{
				Relation: strings.ToLower(m[1]),
				Name:     titleCase(m[2]),
			}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bmy (` + relationAlternatives + `)\b`),
		confidence: 0.75,
		build: func(m []string) []FactPayload {
			return []FactPayload{RelationshipPayload{Relation: strings.ToLower(m[1])}}
		},
	},
}

// ----------------------------------------------------------------------------
// Preference
// ----------------------------------------------------------------------------

var preferencePatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bmy favou?rite ([a-z ]+?) is ([^.!?]+)`),
		confidence: 0.9,
		build: func(m []string) []FactPayload {
			subject := trimValue(m[1]) + " is " + trimValue(m[2])
			return []FactPayload{PreferencePayload{Subject: subject, Sentiment: "favorite"}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bi (?:really |absolutely )?love ([^.!?]+)`),
		confidence: 0.85,
		build:      buildPreference("loves"),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi (?:really )?(?:like|enjoy) ([^.!?]+)`),
		confidence: 0.8,
		build:      buildPreference("likes"),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi (?:really )?(?:hate|can't stand|dislike) ([^.!?]+)`),
		confidence: 0.8,
		build:      buildPreference("dislikes"),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi prefer ([^.!?]+)`),
		confidence: 0.75,
		build:      buildPreference("prefers"),
	},
}

func buildPreference(sentiment string) func(m []string) []FactPayload {
	return func(m []string) []FactPayload {
		subject := trimValue(m[1])
		if subject == "" {
			return nil
		}
		return []FactPayload{PreferencePayload{Subject: subject, Sentiment: sentiment}}
	}
}

// ----------------------------------------------------------------------------
// Date
// ----------------------------------------------------------------------------

var datePatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bmy birthday is (?:on )?([^.!?]+)`),
		confidence: 0.9,
		build:      buildDate("birthday"),
	},
	{
		re:         regexp.MustCompile(`(?i)\bi was born (?:on|in) ([^.!?]+)`),
		confidence: 0.85,
		build:      buildDate("birthday"),
	},
	{
		re:         regexp.MustCompile(`(?i)\b(?:our|my) (?:wedding )?anniversary is (?:on )?([^.!?]+)`),
		confidence: 0.85,
		build:      buildDate("anniversary"),
	},
}

func buildDate(occasion string) func(m []string) []FactPayload {
	return func(m []string) []FactPayload {
		when := trimValue(m[1])
		if when == "" {
			return nil
		}
		return []FactPayload{DatePayload{Occasion: occasion, When: when}}
	}
}

// ----------------------------------------------------------------------------
// Medical
// ----------------------------------------------------------------------------

var medicalPatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to ([^.!?]+)`),
		confidence: 0.9,
		build: func(m []string) []FactPayload {
			return []FactPayload{MedicalPayload{Kind: "allergy", Detail: trimValue(m[1])}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bi have (asthma|diabetes|adhd|anxiety|depression|arthritis|migraines?|insomnia|eczema|hypertension|high blood pressure|celiac disease)\b`),
		confidence: 0.85,
		build: func(m []string) []FactPayload {
			return []FactPayload{MedicalPayload{Kind: "condition", Detail: strings.ToLower(m[1])}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bi take ([^.!?]+?) (?:daily|every day|each day|every morning|every night)`),
		confidence: 0.75,
		build: func(m []string) []FactPayload {
			return []FactPayload{MedicalPayload{Kind: "medication", Detail: trimValue(m[1])}}
		},
	},
}

// ----------------------------------------------------------------------------
// Work
// ----------------------------------------------------------------------------

var workPatterns = []pattern{
	{
		re:         regexp.MustCompile(`(?i)\bi work as an? ([a-z ]+?) at ([a-z][a-z0-9 .,'-]*)`),
		confidence: 0.9,
		build: func(m []string) []FactPayload {
			return []FactPayload{WorkPayload{Role: trimValue(m[1]), Company: titleCase(trimValue(m[2]))}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bi work as an? ([^.!?]+)`),
		confidence: 0.85,
		build: func(m []string) []FactPayload {
			return []FactPayload{WorkPayload{Role: trimValue(m[1])}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bi work at ([a-z][a-z0-9 .,'-]*)`),
		confidence: 0.85,
		build: func(m []string) []FactPayload {
			return []FactPayload{WorkPayload{Company: titleCase(trimValue(m[1]))}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bmy job is ([^.!?]+)`),
		confidence: 0.8,
		build: func(m []string) []FactPayload {
			return []FactPayload{WorkPayload{Role: trimValue(m[1])}}
		},
	},
	{
		re:         regexp.MustCompile(`(?i)\bi(?:'m| am) an? (engineer|software engineer|teacher|doctor|nurse|lawyer|developer|designer|programmer|accountant|scientist|researcher|writer|chef|musician|artist|student)\b`),
		confidence: 0.8,
		build: func(m []string) []FactPayload {
			return []FactPayload{WorkPayload{Role: strings.ToLower(m[1])}}
		},
	},
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

// trimValue strips surrounding whitespace and trailing punctuation from a
// captured value
func trimValue(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".,!?;: ")
}

// titleCase uppercases the first letter of each word, preserving the rest
func titleCase(s string) string {
	fields := strings.Fields(strings.TrimSpace(s))
	for i, f := range fields {
		fields[i] = strings.ToUpper(f[:1]) + f[1:]
	}
	return strings.Join(fields, " ")
}
