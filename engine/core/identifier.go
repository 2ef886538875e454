package core

import "github.com/google/uuid"

// NewRequestID returns an identifier used to correlate the log lines of one extraction.
func NewRequestID() string {
	return uuid.NewString()
}
