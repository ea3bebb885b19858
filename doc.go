/*
Package espalier is a session workflow engine for stage-gated collaborative
rooms: retrospectives, workshops, guided design sessions.

A room moves through a fixed, ordered graph of stages. Each participant
progresses independently, but a stage only opens once its prerequisites are
visited AND the room's host has enabled it. The first participant to reach a
room creates it and becomes host; everyone else joins the existing room and
sees the host's enablement decisions in real time.

# Concept

The engine is built hexagonally. The core (pkg/domain, pkg/access,
pkg/session) knows nothing about transports or storage; adapters plug a
RoomStore (in-memory or Redis) and a serving surface (HTTP, MCP, CLI) around
it. All writes are compare-and-swap on the room's version, so concurrent
hosts and navigating participants converge without losing updates, and every
session reconciles its cached state from the store's change feed.

# Usage

Open a session against a store and navigate:

	package main

	import (
		"context"
		"log"

		"github.com/aretw0/espalier"
		"github.com/aretw0/espalier/pkg/adapters/memory"
		"github.com/aretw0/espalier/pkg/domain"
	)

	func main() {
		ctx := context.Background()

		sess, err := espalier.Open(ctx, memory.NewStore(), "retro-42", "alice")
		if err != nil {
			log.Fatal(err)
		}
		defer sess.Close()

		// The creator is host and can enable stages for the room.
		if err := sess.ToggleEnabled(ctx, domain.StageBriefing); err != nil {
			log.Fatal(err)
		}
		if err := sess.Navigate(ctx, domain.StageBriefing); err != nil {
			log.Fatal(err)
		}
	}

For UI routing, pkg/guard wraps a session in a navigation guard that holds
clients on a loading screen during initialization and blocks entry to stages
the participant cannot access yet.
*/
package espalier
