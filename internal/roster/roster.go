package roster

import (
	"sort"
	"sync"

	"github.com/weiawesome/chatter/internal/domain"
)

// Roster is the sorted, deduplicated set of usernames currently present in
// a room, derived entirely from the latest presence snapshot. It is not
// built incrementally from join/leave entries.
type Roster struct {
	mu    sync.RWMutex
	users []string
}

func New() *Roster {
	return &Roster{}
}

// SetFromSnapshot flattens a presence snapshot to a set of usernames,
// deduplicates, sorts ascending (case-sensitive), and replaces the exposed
// roster atomically. A record with no username falls back to its presence
// key, so an identity present through multiple connections appears once.
func (r *Roster) SetFromSnapshot(state domain.PresenceState) {
	seen := make(map[string]struct{}, len(state))
	for key, metas := range state {
		if len(metas) == 0 {
			continue
		}
		for _, m := range metas {
			name := m.Username
			if name == "" {
				name = key
			}
			seen[name] = struct{}{}
		}
	}

	users := make([]string, 0, len(seen))
	for name := range seen {
		users = append(users, name)
	}
	sort.Strings(users)

	r.mu.Lock()
	r.users = users
	r.mu.Unlock()
}

// Users returns a copy of the current roster.
func (r *Roster) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.users...)
}

func (r *Roster) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// Clear empties the roster. Invoked only on session teardown.
func (r *Roster) Clear() {
	r.mu.Lock()
	r.users = nil
	r.mu.Unlock()
}
