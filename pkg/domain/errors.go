package domain

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned when an operation runs before Initialize has
// completed for the room (or after the room row was deleted).
var ErrNotInitialized = errors.New("session not initialized")

// ErrRoomNotFound is returned when no row exists for the room.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomExists is returned by conditional creation when another client
// already created the row. It never escapes Initialize: the losing creator
// re-reads the winner's row.
var ErrRoomExists = errors.New("room already exists")

// ErrNotAuthorized is returned when a non-host participant attempts a
// host-only operation.
var ErrNotAuthorized = errors.New("operation restricted to the room host")

// ErrVersionConflict is returned by compare-and-swap updates when the row
// changed since it was read.
var ErrVersionConflict = errors.New("room state version conflict")

// ErrNotAccessible is the sentinel matched by errors.Is for navigation
// attempts into a stage that is not fully accessible.
var ErrNotAccessible = errors.New("stage not accessible")

// NotAccessibleError reports why a navigation target was rejected. The
// reason string is user-facing.
type NotAccessibleError struct {
	Stage  StageID
	Reason string
}

func (e *NotAccessibleError) Error() string {
	return fmt.Sprintf("stage %q not accessible: %s", e.Stage, e.Reason)
}

func (e *NotAccessibleError) Unwrap() error { return ErrNotAccessible }
