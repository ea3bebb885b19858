package ports

import (
	"context"

	"github.com/aretw0/espalier/pkg/domain"
)

// RoomStore is the persistence collaborator holding one RoomState row per
// room. Implementations must provide conditional insert (duplicate room ids
// fail), compare-and-swap point updates, and a best-effort per-room change
// feed. Nothing stronger is assumed: the session layer tolerates duplicate
// and late feed deliveries.
type RoomStore interface {
	// Load retrieves the row for a room.
	// Returns domain.ErrRoomNotFound if no row exists.
	Load(ctx context.Context, roomID string) (*domain.RoomState, error)

	// Create atomically inserts a new row. Returns domain.ErrRoomExists when
	// another client created the row first; the caller must then Load the
	// winner's row. The stored row gets Version 1. The argument is not
	// mutated.
	Create(ctx context.Context, state *domain.RoomState) error

	// Update replaces the row if and only if the stored Version still equals
	// state.Version, then bumps the version and refreshes UpdatedAt.
	// Returns domain.ErrVersionConflict on a lost race and
	// domain.ErrRoomNotFound if the row disappeared. The argument is not
	// mutated; the authoritative result arrives through Watch.
	Update(ctx context.Context, state *domain.RoomState) error

	// Delete removes the row. Deleting an absent row is not an error.
	Delete(ctx context.Context, roomID string) error

	// List returns the ids of all stored rooms.
	List(ctx context.Context) ([]string, error)

	// Watch subscribes to the room's change feed. The channel delivers every
	// insert, update, and delete of the row until ctx is canceled, then
	// closes. Delivery is ordered per room but not exactly-once.
	Watch(ctx context.Context, roomID string) (<-chan domain.ChangeEvent, error)
}
