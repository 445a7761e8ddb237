package memory

import (
	"reflect"
	"testing"
)

func TestIsQuestion(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"What's my name?", true},
		{"What's my name", true},
		{"do you remember my cats", true},
		{"Tell me about my pets", true},
		{"where do I live", true},
		{"My name is Clemens", false},
		{"I have two cats named Whiskers and Mittens", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsQuestion(tt.text); got != tt.want {
			t.Errorf("IsQuestion(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestExtract_QuestionsYieldNothing(t *testing.T) {
	e := NewExtractor()

	questions := []string{
		"What's my name?",
		"Do I have any pets?",
		"Where do I live?",
		"is my birthday in June?",
	}

	for _, q := range questions {
		if entities := e.Extract(q); len(entities) != 0 {
			t.Errorf("Extract(%q) returned %d entities, want 0", q, len(entities))
		}
	}
}

func TestExtract_Name(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("My name is Clemens")
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}

	entity := entities[0]
	if entity.Type != EntityName {
		t.Errorf("Expected type %q, got %q", EntityName, entity.Type)
	}
	if entity.Confidence != 0.95 {
		t.Errorf("Expected confidence 0.95, got %f", entity.Confidence)
	}

	payload, ok := entity.Payload.(NamePayload)
	if !ok {
		t.Fatalf("Expected NamePayload, got %T", entity.Payload)
	}
	if payload.Name != "Clemens" {
		t.Errorf("Expected name 'Clemens', got '%s'", payload.Name)
	}
}

func TestExtract_NameConfidenceByPhrasing(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		text       string
		confidence float64
	}{
		{"my name is Ada", 0.95},
		{"please call me Ada", 0.9},
		{"i'm called Ada", 0.85},
		{"i go by Ada", 0.8},
	}

	for _, tt := range tests {
		entities := e.Extract(tt.text)
		if len(entities) != 1 {
			t.Fatalf("Extract(%q): expected 1 entity, got %d", tt.text, len(entities))
		}
		if entities[0].Confidence != tt.confidence {
			t.Errorf("Extract(%q): expected confidence %f, got %f", tt.text, tt.confidence, entities[0].Confidence)
		}
	}
}

func TestExtract_MultiplePets(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("I have two cats named Whiskers and Mittens")
	if len(entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(entities))
	}

	wantNames := []string{"Whiskers", "Mittens"}
	for i, entity := range entities {
		if entity.Type != EntityPet {
			t.Errorf("Entity %d: expected type %q, got %q", i, EntityPet, entity.Type)
		}
		payload, ok := entity.Payload.(PetPayload)
		if !ok {
			t.Fatalf("Entity %d: expected PetPayload, got %T", i, entity.Payload)
		}
		if payload.Name != wantNames[i] {
			t.Errorf("Entity %d: expected name '%s', got '%s'", i, wantNames[i], payload.Name)
		}
		if payload.Species != "cat" {
			t.Errorf("Entity %d: expected species 'cat', got '%s'", i, payload.Species)
		}
	}
}

func TestExtract_SinglePetPossessive(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("My cat's name is Max")
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}

	payload, ok := entities[0].Payload.(PetPayload)
	if !ok {
		t.Fatalf("Expected PetPayload, got %T", entities[0].Payload)
	}
	if payload.Name != "Max" || payload.Species != "cat" {
		t.Errorf("Expected Max the cat, got %s the %s", payload.Name, payload.Species)
	}
}

func TestExtract_PetPatternIgnoresNonPets(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("I have two kids named Anna and Ben")
	for _, entity := range entities {
		if entity.Type == EntityPet {
			t.Errorf("'kids' should not produce a pet entity, got %+v", entity.Payload)
		}
	}
}

func TestExtract_PetNameListStopsAtClauseBoundary(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("I have a cat named Whiskers and I love her")
	var pets []PetPayload
	for _, entity := range entities {
		if p, ok := entity.Payload.(PetPayload); ok {
			pets = append(pets, p)
		}
	}
	if len(pets) != 1 {
		t.Fatalf("Expected 1 pet, got %d: %+v", len(pets), pets)
	}
	if pets[0].Name != "Whiskers" {
		t.Errorf("Expected pet name 'Whiskers', got '%s'", pets[0].Name)
	}
}

func TestExtract_Location(t *testing.T) {
	e := NewExtractor()

	tests := []struct {
		text string
		kind LocationKind
	}{
		{"I live in Berlin", LocationResidence},
		{"I moved to Lisbon", LocationResidence},
		{"I'm originally from Tokyo", LocationOrigin},
		{"I grew up in Nairobi", LocationOrigin},
	}

	for _, tt := range tests {
		entities := e.Extract(tt.text)
		if len(entities) != 1 {
			t.Fatalf("Extract(%q): expected 1 entity, got %d", tt.text, len(entities))
		}
		payload, ok := entities[0].Payload.(LocationPayload)
		if !ok {
			t.Fatalf("Extract(%q): expected LocationPayload, got %T", tt.text, entities[0].Payload)
		}
		if payload.Kind != tt.kind {
			t.Errorf("Extract(%q): expected kind %q, got %q", tt.text, tt.kind, payload.Kind)
		}
	}
}

func TestExtract_Relationship(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("My sister's name is Lena")
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}

	payload, ok := entities[0].Payload.(RelationshipPayload)
	if !ok {
		t.Fatalf("Expected RelationshipPayload, got %T", entities[0].Payload)
	}
	if payload.Relation != "sister" || payload.Name != "Lena" {
		t.Errorf("Expected sister Lena, got %s %s", payload.Relation, payload.Name)
	}
}

func TestExtract_Medical(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("I'm allergic to peanuts")
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}

	payload, ok := entities[0].Payload.(MedicalPayload)
	if !ok {
		t.Fatalf("Expected MedicalPayload, got %T", entities[0].Payload)
	}
	if payload.Kind != "allergy" || payload.Detail != "peanuts" {
		t.Errorf("Expected peanut allergy, got kind=%s detail=%s", payload.Kind, payload.Detail)
	}
}

func TestExtract_Work(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("I work as a software engineer at Acme")
	if len(entities) != 1 {
		t.Fatalf("Expected 1 entity, got %d", len(entities))
	}

	payload, ok := entities[0].Payload.(WorkPayload)
	if !ok {
		t.Fatalf("Expected WorkPayload, got %T", entities[0].Payload)
	}
	if payload.Role != "software engineer" {
		t.Errorf("Expected role 'software engineer', got '%s'", payload.Role)
	}
	if payload.Company != "Acme" {
		t.Errorf("Expected company 'Acme', got '%s'", payload.Company)
	}
}

func TestExtract_MultipleFamilies(t *testing.T) {
	e := NewExtractor()

	entities := e.Extract("My name is Clemens and my birthday is June 3rd")
	if len(entities) != 2 {
		t.Fatalf("Expected 2 entities, got %d", len(entities))
	}

	types := map[EntityType]bool{}
	for _, entity := range entities {
		types[entity.Type] = true
	}
	if !types[EntityName] || !types[EntityDate] {
		t.Errorf("Expected name and date entities, got %v", types)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	e := NewExtractor()
	text := "My name is Clemens and I have a dog named Rex"

	first := e.Extract(text)
	second := e.Extract(text)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Extraction is not deterministic:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestExtract_UnmatchedTextYieldsNothing(t *testing.T) {
	e := NewExtractor()

	if entities := e.Extract("The weather has been nice lately"); len(entities) != 0 {
		t.Errorf("Expected no entities, got %d", len(entities))
	}
}
