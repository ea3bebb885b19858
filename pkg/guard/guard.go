// Package guard implements the boundary helper that blocks entry into a
// stage's content until the session confirms full accessibility. It is the
// non-visual core the UI wraps around each stage.
package guard

import (
	"context"
	"time"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/session"
)

// DefaultGracePeriod bounds how long Wait allows the session's initial load
// to settle before deciding. It exists to avoid a false "locked" flash while
// the first snapshot is still in flight.
const DefaultGracePeriod = 3 * time.Second

// Status is the guard's decision for a stage.
type Status int

const (
	// StatusLoading means the session has not finished its initial load.
	StatusLoading Status = iota
	// StatusBlocked means the stage failed the progression or host gate.
	StatusBlocked
	// StatusReady means the stage is fully accessible.
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusBlocked:
		return "blocked"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Decision is one evaluation of the guarded stage.
type Decision struct {
	Status Status
	// Reason explains a blocked decision in user-facing terms.
	Reason string
}

// Guard gates access to a single stage of one session.
type Guard struct {
	session *session.Session
	stage   domain.StageID
	grace   time.Duration
}

// Option configures a Guard.
type Option func(*Guard)

// WithGracePeriod overrides the initial-load grace period.
func WithGracePeriod(d time.Duration) Option {
	return func(g *Guard) {
		if d > 0 {
			g.grace = d
		}
	}
}

// New creates a guard for a stage of the given session.
func New(s *session.Session, stage domain.StageID, opts ...Option) *Guard {
	g := &Guard{
		session: s,
		stage:   stage,
		grace:   DefaultGracePeriod,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Stage returns the guarded stage.
func (g *Guard) Stage() domain.StageID { return g.stage }

// Evaluate decides from the session's current cached state without waiting.
func (g *Guard) Evaluate() Decision {
	report, err := g.session.Report()
	if err != nil {
		return Decision{Status: StatusLoading}
	}
	entry, ok := report[g.stage]
	if !ok {
		return Decision{Status: StatusBlocked, Reason: "unknown stage"}
	}
	if !entry.Accessible {
		return Decision{Status: StatusBlocked, Reason: entry.Reason}
	}
	return Decision{Status: StatusReady}
}

// Wait blocks until the session's initial load settles, the grace period
// elapses, or ctx is canceled, then evaluates. The grace period expiring is
// not an error: the guard decides on whatever is cached rather than holding
// the client forever.
func (g *Guard) Wait(ctx context.Context) Decision {
	select {
	case <-g.session.Ready():
	case <-time.After(g.grace):
	case <-ctx.Done():
	}
	return g.Evaluate()
}

// Watch re-evaluates on every reconciled change until ctx is canceled. The
// current decision is always delivered first; consecutive identical
// decisions are suppressed.
func (g *Guard) Watch(ctx context.Context) <-chan Decision {
	out := make(chan Decision, 1)
	updates, unsubscribe := g.session.Subscribe()

	go func() {
		defer close(out)
		defer unsubscribe()

		last := g.Wait(ctx)
		out <- last

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-updates:
				if !ok {
					return
				}
				next := g.Evaluate()
				if next == last {
					continue
				}
				last = next
				select {
				case out <- next:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
