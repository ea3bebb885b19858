/*
Package domain contains the core domain models for the Espalier engine.

It defines the stage graph, access rules, the persisted per-room session row,
and the change-feed event types. This package is kept pure and free of I/O or
persistence concerns, following Hexagonal Architecture principles.

# Key Entities

  - StageID / Graph / AccessRule: the fixed, ordered stage sequence and the
    prerequisite relation gating progression between stages.
  - RoomState: the authoritative per-room row shared by every participant
    (current stage, host, visited set, host-enablement overlay).
  - ChangeEvent: one delivery from the persistence collaborator's change feed.
  - LifecycleHooks: optional observability callbacks.
*/
package domain
