package sync

import "github.com/google/uuid"

// newID returns a time-ordered id, so ids sort roughly by creation time.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
