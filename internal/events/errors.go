package events

import "errors"

// Outcomes the service reports besides success. Store failures are returned
// wrapped and never match these.
var (
	ErrEventNotFound = errors.New("event not found")
	ErrNotOrganiser  = errors.New("only the organiser can do this")
	ErrAlreadyJoined = errors.New("already joined this event")
	ErrNotJoined     = errors.New("not a participant of this event")
	ErrEditConflict  = errors.New("event was modified by another request")

	ErrUnknownType   = errors.New("unknown event type")
	ErrDuplicateType = errors.New("event type already exists")
)
