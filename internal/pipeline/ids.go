package pipeline

import "github.com/google/uuid"

// newJobID returns a time-ordered id so job listings sort by creation.
func newJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "job_" + uuid.NewString()
	}
	return "job_" + id.String()
}
