package memory

import (
	"encoding/json"
	"testing"
	"time"
)

func TestFactJSONRoundTrip(t *testing.T) {
	created := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	facts := []Fact{
		{ID: "f1", Type: EntityName, Payload: NamePayload{Name: "Clemens"}, Confidence: 0.95, Source: "my name is Clemens", CreatedAt: created},
		{ID: "f2", Type: EntityPet, Payload: PetPayload{Name: "Max", Species: "golden retriever"}, Confidence: 0.9, CreatedAt: created},
		{ID: "f3", Type: EntityLocation, Payload: LocationPayload{Kind: LocationOrigin, Place: "Tokyo"}, Confidence: 0.85, CreatedAt: created},
		{ID: "f4", Type: EntityRelationship, Payload: RelationshipPayload{Relation: "sister", Name: "Lena"}, Confidence: 0.9, CreatedAt: created},
		{ID: "f5", Type: EntityPreference, Payload: PreferencePayload{Subject: "hiking", Sentiment: "loves"}, Confidence: 0.85, CreatedAt: created},
		{ID: "f6", Type: EntityDate, Payload: DatePayload{Occasion: "birthday", When: "June 3rd"}, Confidence: 0.9, CreatedAt: created},
		{ID: "f7", Type: EntityMedical, Payload: MedicalPayload{Kind: "allergy", Detail: "peanuts"}, Confidence: 0.9, CreatedAt: created},
		{ID: "f8", Type: EntityWork, Payload: WorkPayload{Role: "engineer", Company: "Acme"}, Confidence: 0.9, CreatedAt: created},
	}

	for _, original := range facts {
		data, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("Marshal %s failed: %v", original.ID, err)
		}

		var decoded Fact
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("Unmarshal %s failed: %v", original.ID, err)
		}

		if decoded.Type != original.Type {
			t.Errorf("%s: type changed from %q to %q", original.ID, original.Type, decoded.Type)
		}
		if decoded.Payload != original.Payload {
			t.Errorf("%s: payload changed from %+v to %+v", original.ID, original.Payload, decoded.Payload)
		}
		if decoded.Line() != original.Line() {
			t.Errorf("%s: line changed from %q to %q", original.ID, original.Line(), decoded.Line())
		}
	}
}

func TestFactUnmarshal_UnknownType(t *testing.T) {
	data := []byte(`{"id":"x","type":"bogus","payload":{},"confidence":0.5}`)

	var f Fact
	if err := json.Unmarshal(data, &f); err == nil {
		t.Error("Expected an error for an unknown fact type")
	}
}

func TestPetLine(t *testing.T) {
	p := PetPayload{Name: "Max", Species: "golden retriever"}
	want := "Pet: Max is a golden retriever"
	if p.Line() != want {
		t.Errorf("Expected %q, got %q", want, p.Line())
	}
}

func TestWorkLineVariants(t *testing.T) {
	tests := []struct {
		payload WorkPayload
		want    string
	}{
		{WorkPayload{Role: "engineer", Company: "Acme"}, "Work: the user works as a engineer at Acme"},
		{WorkPayload{Role: "engineer"}, "Work: the user works as a engineer"},
		{WorkPayload{Company: "Acme"}, "Work: the user works at Acme"},
	}

	for _, tt := range tests {
		if got := tt.payload.Line(); got != tt.want {
			t.Errorf("Expected %q, got %q", tt.want, got)
		}
	}
}

func TestCategoryHasTheme(t *testing.T) {
	c := &Category{Themes: []string{"living", "pets"}}

	if !c.HasTheme("pets") {
		t.Error("Expected theme 'pets'")
	}
	if !c.HasTheme("Pets") {
		t.Error("Theme matching should be case-insensitive")
	}
	if c.HasTheme("health") {
		t.Error("Did not expect theme 'health'")
	}
}

func TestEmbeddingFresh(t *testing.T) {
	now := time.Now()
	e := &CategoryEmbedding{CreatedAt: now.Add(-30 * time.Minute)}

	if !e.Fresh(now, time.Hour) {
		t.Error("30 minute old embedding should be fresh inside a 1h window")
	}
	if e.Fresh(now, 10*time.Minute) {
		t.Error("30 minute old embedding should be stale inside a 10m window")
	}
}
