// Package middleware provides composable wrappers around ports.RoomStore.
package middleware

import "github.com/aretw0/espalier/pkg/ports"

// Middleware allows wrapping a RoomStore to add behavior.
type Middleware func(ports.RoomStore) ports.RoomStore

// Chain applies middlewares outermost-first.
func Chain(store ports.RoomStore, mws ...Middleware) ports.RoomStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}
