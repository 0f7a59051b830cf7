package category

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxNameLen bounds category names; names are unique service-wide.
const MaxNameLen = 100

// Category groups auctions for browsing.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewCategory creates a category with a bounded, non-empty name.
func NewCategory(name, description string) (*Category, error) {
	if name == "" {
		return nil, fmt.Errorf("category name is required")
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("category name exceeds %d characters", MaxNameLen)
	}

	return &Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
