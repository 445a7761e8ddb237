package agent

import (
	"fmt"
	"sort"
	"strings"

	"conversai/backend/internal/memory"
)

// ContextAssembler merges retrieval output, recent turns, conversation
// summary and profile data into one text block prepended to the LLM prompt.
// Facts are annotated explicitly because the downstream LLM cannot be
// trusted to re-derive them from quoted history alone.
type ContextAssembler struct {
	recentTurns int
}

// NewContextAssembler creates an assembler that includes at most
// recentTurns raw conversation turns
func NewContextAssembler(recentTurns int) *ContextAssembler {
	return &ContextAssembler{recentTurns: recentTurns}
}

// AssembleInput carries everything the assembler merges for one turn
type AssembleInput struct {
	Profile *memory.UserProfile
	Batches []memory.CategoryBatch
	Turns   []memory.Turn
	Summary string
	Topics  []string
}

// Assemble builds the context block. Sections with nothing to say are
// omitted entirely; with no input at all the result is the empty string
// and the caller adds no extra context to the prompt.
func (a *ContextAssembler) Assemble(in AssembleInput) string {
	var sections []string

	if s := a.factsSection(in.Profile, in.Batches); s != "" {
		sections = append(sections, s)
	}
	if s := a.preferencesSection(in.Profile); s != "" {
		sections = append(sections, s)
	}
	if s := a.summarySection(in.Summary, in.Topics); s != "" {
		sections = append(sections, s)
	}
	if s := a.turnsSection(in.Turns); s != "" {
		sections = append(sections, s)
	}

	return strings.Join(sections, "\n\n")
}

// factsSection renders the retrieved facts, identity first with an explicit
// annotation. Near-identical snippets are deduplicated and informative
// statements win over questions about the same topic. When the same fact
// family appears more than once the later (more recent) fact is the one
// rendered, so restated facts shadow stale ones.
func (a *ContextAssembler) factsSection(profile *memory.UserProfile, batches []memory.CategoryBatch) string {
	name := ""
	if profile != nil {
		name = profile.Name
	}

	var snippets []string
	for _, batch := range batches {
		for _, fact := range latestPerSubject(batch.Facts) {
			if fact.Type == memory.EntityName {
				// The profile cache may lag one turn behind a just-stated
				// name; the stored fact is at least as recent.
				if p, ok := fact.Payload.(memory.NamePayload); ok {
					name = p.Name
				}
				continue
			}
			snippets = append(snippets, fact.Line())
		}
	}

	snippets = DeduplicateSnippets(snippets)

	if name == "" && len(snippets) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## What I Know About This User\n")
	if name != "" {
		fmt.Fprintf(&b, "IMPORTANT: the user's name is %s.\n", name)
	}
	for _, s := range snippets {
		b.WriteString("- ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// latestPerSubject keeps only the most recent fact for each family/subject
// pair. Facts are append-only and never reconciled in the store, so the
// assembler prefers recency when the same thing was stated twice.
func latestPerSubject(facts []memory.Fact) []memory.Fact {
	latest := make(map[string]memory.Fact)
	var order []string
	for _, f := range facts {
		key := factSubjectKey(f)
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		// Fact lists are append-only, so a later entry is the newer one.
		latest[key] = f
	}

	ordered := make([]memory.Fact, 0, len(order))
	for _, key := range order {
		ordered = append(ordered, latest[key])
	}
	return ordered
}

// factSubjectKey identifies what a fact is about, so a restated residence
// shadows the old one but a second pet does not shadow the first
func factSubjectKey(f memory.Fact) string {
	switch p := f.Payload.(type) {
	case memory.NamePayload:
		return "name"
	case memory.PetPayload:
		return "pet:" + strings.ToLower(p.Name)
	case memory.LocationPayload:
		return "location:" + string(p.Kind)
	case memory.RelationshipPayload:
		return "relationship:" + strings.ToLower(p.Relation)
	case memory.PreferencePayload:
		return "preference:" + strings.ToLower(p.Subject)
	case memory.DatePayload:
		return "date:" + strings.ToLower(p.Occasion)
	case memory.MedicalPayload:
		return "medical:" + strings.ToLower(p.Kind+":"+p.Detail)
	case memory.WorkPayload:
		return "work"
	default:
		return string(f.Type) + ":" + f.Source
	}
}

func (a *ContextAssembler) preferencesSection(profile *memory.UserProfile) string {
	if profile == nil || len(profile.Preferences) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## User Preferences\n")
	for _, subject := range sortedKeys(profile.Preferences) {
		fmt.Fprintf(&b, "- %s %s\n", profile.Preferences[subject], subject)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *ContextAssembler) summarySection(summary string, topics []string) string {
	summary = strings.TrimSpace(summary)
	if summary == "" && len(topics) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Conversation So Far\n")
	if summary != "" {
		b.WriteString(summary)
		b.WriteString("\n")
	}
	if len(topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(topics, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *ContextAssembler) turnsSection(turns []memory.Turn) string {
	// Turns without a role can arrive from loosely validated callers; they
	// carry nothing renderable and must not consume window slots.
	kept := make([]memory.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role != "" {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		return ""
	}
	if a.recentTurns > 0 && len(kept) > a.recentTurns {
		kept = kept[len(kept)-a.recentTurns:]
	}

	var b strings.Builder
	b.WriteString("## Recent Conversation\n")
	for _, t := range kept {
		role := strings.ToUpper(t.Role[:1]) + t.Role[1:]
		fmt.Fprintf(&b, "%s: %s\n", role, t.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
