/*
Package ports defines the driven ports (interfaces) for the Espalier engine.

These interfaces decouple the session core from external implementations,
allowing the engine to work with different persistence backends.

# Key Interfaces

  - RoomStore: persists the per-room session row and exposes its change feed.
    Implementations live in pkg/adapters (memory, redis).
*/
package ports
