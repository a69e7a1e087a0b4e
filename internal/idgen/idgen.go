package idgen

import (
	"github.com/google/uuid"
)

// ID prefixes for different models
const (
	PrefixChild   = "kid_"
	PrefixDevice  = "dev_"
	PrefixSession = "sess_"
	PrefixPause   = "pause_"
	PrefixAction  = "act_"
)

// NewChild generates a new child ID with kid_ prefix
func NewChild() string {
	return PrefixChild + uuid.New().String()
}

// NewDevice generates a new device ID with dev_ prefix
func NewDevice() string {
	return PrefixDevice + uuid.New().String()
}

// NewSession generates a new session ID with sess_ prefix
func NewSession() string {
	return PrefixSession + uuid.New().String()
}

// NewPauseInterval generates a new pause interval ID with pause_ prefix
func NewPauseInterval() string {
	return PrefixPause + uuid.New().String()
}

// NewAction generates a new instant action ID with act_ prefix
func NewAction() string {
	return PrefixAction + uuid.New().String()
}

// New generates a generic UUID without prefix (for internal use only)
func New() string {
	return uuid.New().String()
}
