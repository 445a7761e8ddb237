package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Entity and Fact Types
// ============================================================================

// EntityType identifies the family of an extracted fact
type EntityType string

const (
	EntityName         EntityType = "name"
	EntityPet          EntityType = "pet"
	EntityLocation     EntityType = "location"
	EntityRelationship EntityType = "relationship"
	EntityPreference   EntityType = "preference"
	EntityDate         EntityType = "date"
	EntityMedical      EntityType = "medical"
	EntityWork         EntityType = "work"
)

// FactPayload is the typed payload of a fact, one variant per entity family.
// Line renders the payload as a single human-readable statement, used both
// for embedding content synthesis and for keyword matching.
type FactPayload interface {
	Type() EntityType
	Line() string
}

// NamePayload holds the user's stated name
type NamePayload struct {
	Name string `json:"name"`
}

func (p NamePayload) Type() EntityType { return EntityName }
func (p NamePayload) Line() string     { return fmt.Sprintf("Name: the user's name is %s", p.Name) }

// PetPayload holds one pet with its species
type PetPayload struct {
	Name    string `json:"name"`
	Species string `json:"species"`
}

func (p PetPayload) Type() EntityType { return EntityPet }
func (p PetPayload) Line() string     { return fmt.Sprintf("Pet: %s is a %s", p.Name, p.Species) }

// LocationKind distinguishes where a place fits in the user's life
type LocationKind string

const (
	LocationResidence LocationKind = "residence"
	LocationOrigin    LocationKind = "origin"
	LocationWork      LocationKind = "work"
)

// LocationPayload holds a place tied to the user
type LocationPayload struct {
	Kind  LocationKind `json:"kind"`
	Place string       `json:"place"`
}

func (p LocationPayload) Type() EntityType { return EntityLocation }
func (p LocationPayload) Line() string {
	switch p.Kind {
	case LocationOrigin:
		return fmt.Sprintf("Location: the user is from %s", p.Place)
	case LocationWork:
		return fmt.Sprintf("Location: the user works in %s", p.Place)
	default:
		return fmt.Sprintf("Location: the user lives in %s", p.Place)
	}
}

// RelationshipPayload holds a person related to the user
type RelationshipPayload struct {
	Relation string `json:"relation"`
	Name     string `json:"name"`
}

func (p RelationshipPayload) Type() EntityType { return EntityRelationship }
func (p RelationshipPayload) Line() string {
	if p.Name == "" {
		return fmt.Sprintf("Relationship: the user has a %s", p.Relation)
	}
	return fmt.Sprintf("Relationship: the user's %s is %s", p.Relation, p.Name)
}

// PreferencePayload holds a like, dislike or favorite
type PreferencePayload struct {
	Subject   string `json:"subject"`
	Sentiment string `json:"sentiment"` // favorite, likes, dislikes, prefers
}

func (p PreferencePayload) Type() EntityType { return EntityPreference }
func (p PreferencePayload) Line() string {
	return fmt.Sprintf("Preference: the user %s %s", p.Sentiment, p.Subject)
}

// DatePayload holds a recurring or one-off date that matters to the user
type DatePayload struct {
	Occasion string `json:"occasion"`
	When     string `json:"when"`
}

func (p DatePayload) Type() EntityType { return EntityDate }
func (p DatePayload) Line() string {
	return fmt.Sprintf("Date: the user's %s is %s", p.Occasion, p.When)
}

// MedicalPayload holds a health-related fact
type MedicalPayload struct {
	Kind   string `json:"kind"` // allergy, condition, medication
	Detail string `json:"detail"`
}

func (p MedicalPayload) Type() EntityType { return EntityMedical }
func (p MedicalPayload) Line() string {
	switch p.Kind {
	case "allergy":
		return fmt.Sprintf("Medical: the user is allergic to %s", p.Detail)
	case "medication":
		return fmt.Sprintf("Medical: the user takes %s", p.Detail)
	default:
		return fmt.Sprintf("Medical: the user has %s", p.Detail)
	}
}

// WorkPayload holds the user's occupation
type WorkPayload struct {
	Role    string `json:"role,omitempty"`
	Company string `json:"company,omitempty"`
}

func (p WorkPayload) Type() EntityType { return EntityWork }
func (p WorkPayload) Line() string {
	switch {
	case p.Role != "" && p.Company != "":
		return fmt.Sprintf("Work: the user works as a %s at %s", p.Role, p.Company)
	case p.Role != "":
		return fmt.Sprintf("Work: the user works as a %s", p.Role)
	default:
		return fmt.Sprintf("Work: the user works at %s", p.Company)
	}
}

// Entity is a candidate fact produced by the extractor and consumed
// immediately by the assignment engine
type Entity struct {
	Type       EntityType
	Payload    FactPayload
	Confidence float64
	Source     string // the message text the entity came from
}

// Fact is a stored, typed piece of information about a user
type Fact struct {
	ID         string      `json:"id"`
	Type       EntityType  `json:"type"`
	Payload    FactPayload `json:"payload"`
	Confidence float64     `json:"confidence"`
	Source     string      `json:"source"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Line renders the fact as a single statement
func (f Fact) Line() string {
	if f.Payload == nil {
		return f.Source
	}
	return f.Payload.Line()
}

// SearchText is the lowercased serialized form of the fact used for
// keyword matching
func (f Fact) SearchText() string {
	return strings.ToLower(f.Line() + " " + f.Source)
}

// factEnvelope is the persisted JSON shape of a Fact; the payload is kept
// as raw JSON so the discriminant can pick the variant on decode.
type factEnvelope struct {
	ID         string          `json:"id"`
	Type       EntityType      `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Confidence float64         `json:"confidence"`
	Source     string          `json:"source"`
	CreatedAt  time.Time       `json:"created_at"`
}

// MarshalJSON implements json.Marshaler
func (f Fact) MarshalJSON() ([]byte, error) {
	payload, err := json.Marshal(f.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal fact payload: %w", err)
	}
	return json.Marshal(factEnvelope{
		ID:         f.ID,
		Type:       f.Type,
		Payload:    payload,
		Confidence: f.Confidence,
		Source:     f.Source,
		CreatedAt:  f.CreatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Fact) UnmarshalJSON(data []byte) error {
	var env factEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	payload, err := decodePayload(env.Type, env.Payload)
	if err != nil {
		return err
	}

	f.ID = env.ID
	f.Type = env.Type
	f.Payload = payload
	f.Confidence = env.Confidence
	f.Source = env.Source
	f.CreatedAt = env.CreatedAt
	return nil
}

func decodePayload(t EntityType, raw json.RawMessage) (FactPayload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("fact of type %q has no payload", t)
	}

	unmarshal := func(v FactPayload) (FactPayload, error) {
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	}

	switch t {
	case EntityName:
		p, err := unmarshal(&NamePayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*NamePayload), nil
	case EntityPet:
		p, err := unmarshal(&PetPayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*PetPayload), nil
	case EntityLocation:
		p, err := unmarshal(&LocationPayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*LocationPayload), nil
	case EntityRelationship:
		p, err := unmarshal(&RelationshipPayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*RelationshipPayload), nil
	case EntityPreference:
		p, err := unmarshal(&PreferencePayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*PreferencePayload), nil
	case EntityDate:
		p, err := unmarshal(&DatePayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*DatePayload), nil
	case EntityMedical:
		p, err := unmarshal(&MedicalPayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*MedicalPayload), nil
	case EntityWork:
		p, err := unmarshal(&WorkPayload{})
		if err != nil {
			return nil, err
		}
		return *p.(*WorkPayload), nil
	default:
		return nil, fmt.Errorf("unknown fact type %q", t)
	}
}

// ============================================================================
// Category Types
// ============================================================================

// CategoryKind distinguishes the always-present fallback bucket from
// rule-created buckets and future split children
type CategoryKind string

const (
	CategoryGeneral CategoryKind = "general"
	CategoryPrimary CategoryKind = "primary"
	CategorySub     CategoryKind = "sub"
)

// GeneralCategoryName is the display name of the per-user fallback bucket
const GeneralCategoryName = "General"

// Category is a named, evolving bucket of related facts about one user.
// The fact list is append-only and FactCount always equals len(Facts).
type Category struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Name      string       `json:"name"`
	Kind      CategoryKind `json:"kind"`
	Facts     []Fact       `json:"facts"`
	Themes    []string     `json:"themes"`
	FactCount int          `json:"fact_count"`
	ParentID  string       `json:"parent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// HasTheme reports whether the category carries the given theme tag
func (c *Category) HasTheme(theme string) bool {
	for _, t := range c.Themes {
		if strings.EqualFold(t, theme) {
			return true
		}
	}
	return false
}

// CategoryEmbedding is the semantic summary of one category. At most one
// row exists per category.
type CategoryEmbedding struct {
	CategoryID string    `json:"category_id"`
	UserID     string    `json:"user_id"`
	Vector     []float32 `json:"vector"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

// Fresh reports whether the embedding is still inside the freshness window
func (e *CategoryEmbedding) Fresh(now time.Time, window time.Duration) bool {
	return now.Sub(e.CreatedAt) < window
}

// ============================================================================
// Profile and Retrieval Types
// ============================================================================

// UserProfile is a denormalized cache of the highest-value facts, giving
// O(1) exact lookup for identity queries without touching embeddings.
type UserProfile struct {
	UserID      string            `json:"user_id"`
	Name        string            `json:"name,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Facts       map[string]string `json:"facts,omitempty"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// CategoryBatch is one ranked retrieval result: a category with its facts
// and the summary text backing its embedding
type CategoryBatch struct {
	CategoryID string  `json:"category_id"`
	Name       string  `json:"name"`
	Facts      []Fact  `json:"facts"`
	Summary    string  `json:"summary,omitempty"`
	Confidence float64 `json:"confidence"`
	Stage      string  `json:"stage"` // identity, keyword, embedding, fallback
}

// Turn is one raw conversation exchange supplied by the transport layer
type Turn struct {
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
