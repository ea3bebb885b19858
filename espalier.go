package espalier

import (
	"context"
	_ "embed"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/ports"
	"github.com/aretw0/espalier/pkg/session"
)

// Version is the library version. Callers should strings.TrimSpace it.
//
//go:embed VERSION
var Version string

// DefaultGraph returns the canonical stage graph.
func DefaultGraph() *domain.Graph {
	return domain.DefaultGraph()
}

// Open starts a session for a participant in a room, creating the room on
// first contact. It is a convenience wrapper over session.Initialize with
// the canonical stage graph.
func Open(ctx context.Context, store ports.RoomStore, roomID, userID string, opts ...session.Option) (*session.Session, error) {
	return session.Initialize(ctx, store, domain.DefaultGraph(), roomID, userID, opts...)
}
