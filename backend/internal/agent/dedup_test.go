package agent

import (
	"reflect"
	"testing"
)

func TestSnippetsAreDuplicates(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"case and punctuation", "My name is Clemens", "my name is clemens.", true},
		{"extra whitespace", "I live  in Berlin", "I live in Berlin", true},
		{"high overlap near length", "the user really loves hiking trails", "the user loves hiking trails", true},
		{"different topics", "My name is Clemens", "I am allergic to peanuts", false},
		{"large length difference", "I like tea", "I like tea with milk and two sugars every single morning", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snippetsAreDuplicates(tt.a, tt.b); got != tt.want {
				t.Errorf("snippetsAreDuplicates(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDeduplicateSnippets_RemovesNearIdentical(t *testing.T) {
	in := []string{
		"My name is Clemens",
		"my name is clemens.",
		"I am allergic to peanuts",
	}

	got := DeduplicateSnippets(in)
	want := []string{"My name is Clemens", "I am allergic to peanuts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeduplicateSnippets = %v, want %v", got, want)
	}
}

func TestDeduplicateSnippets_InformativeBeatsQuestion(t *testing.T) {
	in := []string{
		"Is my name Clemens?",
		"my name is clemens",
	}

	got := DeduplicateSnippets(in)
	if len(got) != 1 {
		t.Fatalf("Expected 1 snippet, got %d: %v", len(got), got)
	}
	if got[0] != "my name is clemens" {
		t.Errorf("Expected the informative snippet to survive, got %q", got[0])
	}
}

func TestDeduplicateSnippets_KeepsFirstAppearanceOrder(t *testing.T) {
	in := []string{
		"I have a dog named Rex",
		"I am allergic to peanuts",
		"I have a dog named Rex",
	}

	got := DeduplicateSnippets(in)
	want := []string{"I have a dog named Rex", "I am allergic to peanuts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("DeduplicateSnippets = %v, want %v", got, want)
	}
}

func TestDeduplicateSnippets_DropsEmpty(t *testing.T) {
	got := DeduplicateSnippets([]string{"", "  ", "something"})
	if len(got) != 1 || got[0] != "something" {
		t.Errorf("Expected only the non-empty snippet, got %v", got)
	}
}

func TestIsInformativeSnippet(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"my name is Clemens", true},
		{"I have two cats", true},
		{"I live in Berlin", true},
		{"do you know my name?", false},
		{"what's my name", false},
		{"tell me about my pets", false},
		{"the weather is nice", false},
	}

	for _, tt := range tests {
		if got := isInformativeSnippet(tt.s); got != tt.want {
			t.Errorf("isInformativeSnippet(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}
