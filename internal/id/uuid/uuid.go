// Package uuid provides ID generation helpers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/JakeFAU/chordsheet-resolver/internal/catalog"
)

// Generator creates UUID v7 strings, which sort by creation time.
type Generator struct{}

var _ catalog.IDGenerator = Generator{}

// NewUUIDGenerator creates a new Generator.
func NewUUIDGenerator() *Generator {
	return &Generator{}
}

// NewID returns a UUID7 string.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}

// Valid reports whether s parses as a UUID. Request IDs supplied by clients
// are only echoed back when they are valid.
func Valid(s string) bool {
	return uuid.Validate(s) == nil
}
