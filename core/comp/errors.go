package comp

import "errors"

// Domain faults are returned as typed sentinels so callers can tell a
// deliberate no-op apart from bad input.
var (
	// ErrNotFound means a referenced track, take or region id does not
	// exist in the session arenas.
	ErrNotFound = errors.New("comp: not found")

	// ErrInvalidRange means a time interval or split point is outside
	// the legal bounds of its target.
	ErrInvalidRange = errors.New("comp: invalid range")

	// ErrCrossTakeMerge means a merge referenced regions from more
	// than one take. Regions never span takes.
	ErrCrossTakeMerge = errors.New("comp: regions reference multiple takes")

	// ErrNoSource means a take was added with neither a decoded buffer
	// nor a fetchable source reference.
	ErrNoSource = errors.New("comp: take has no buffer or source")

	// ErrLocked means the target take is locked against edits.
	ErrLocked = errors.New("comp: take is locked")
)
