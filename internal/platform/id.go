package platform

import "github.com/google/uuid"

// NewID returns a new random identifier for licenses and API keys.
func NewID() string {
	return uuid.New().String()
}
