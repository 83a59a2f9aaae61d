package store

import "context"

// IdentityStore remembers which username a client last used in a room, so
// a returning visitor with a join link lands back in the room under the
// same name without retyping it.
type IdentityStore interface {
	// Remember associates a username with a (client, room) pair.
	Remember(ctx context.Context, clientUID, roomCode, username string) error
	// Lookup returns the remembered username, or "" when none is stored.
	Lookup(ctx context.Context, clientUID, roomCode string) (string, error)
	// Forget removes the association.
	Forget(ctx context.Context, clientUID, roomCode string) error
	Close() error
}
