/*
Package session implements the per-participant session handle.

Initialize loads or lazily creates the room row (electing the host on
creation), opens the room's change feed, and returns a *Session whose cached
state is reconciled against every feed delivery. All mutations (Navigate,
ToggleEnabled) are persisted through the room store; the local cache is only
ever updated from the authoritative feed echo, never optimistically.
*/
package session
