package sentinel

import "errors"

// Store-level facts. Stores return these (possibly wrapped) and the services
// decide which domain code the fact maps to:
// - ErrNotFound: no record for the key at the requested stage
// - ErrConflict: a write collided with an existing record
// - ErrInvalidState: the record is in the wrong lifecycle state
// - ErrUnavailable: the backing store could not be reached
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
