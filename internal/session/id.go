package session

import "github.com/google/uuid"

// GenerateID returns a new unguessable session identifier: a random
// (version 4) UUID, 122 bits of entropy in the canonical 36-char form.
func GenerateID() string {
	return uuid.NewString()
}
