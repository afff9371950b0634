package app

import "github.com/google/uuid"

// newJobID returns the identifier of an activation job.
// Isolated here so the ID strategy can evolve independently.
func newJobID() string {
	return uuid.NewString()
}
