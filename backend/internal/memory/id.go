package memory

import "github.com/google/uuid"

// NewID returns a new unique identifier for categories and facts
func NewID() string {
	return uuid.NewString()
}
