package approval

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("approval: validation failed")
	ErrNotFound         = errors.New("approval: not found")
	ErrConfiguration    = errors.New("approval: configuration error")
	ErrAlreadyProcessed = errors.New("approval: already processed")

	// ErrNoRecipients matches ErrConfiguration.
	ErrNoRecipients = fmt.Errorf("%w: no recipients with a valid email", ErrConfiguration)
)
