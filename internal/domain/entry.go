package domain

import "errors"

// EntryKind discriminates entries in the room event log.
type EntryKind string

const (
	KindChat          EntryKind = "chat"
	KindPresenceJoin  EntryKind = "presence-join"
	KindPresenceLeave EntryKind = "presence-leave"
)

// Entry is one unit in a room's ordered event log: a chat message or a
// presence transition. Entries are immutable once appended.
type Entry struct {
	ID       string    `json:"id"`
	Kind     EntryKind `json:"kind"`
	Username string    `json:"username"`
	Body     string    `json:"body,omitempty"`
}

// ChatPayload is the broadcast wire shape for a chat message.
// Presence transitions are never sent as broadcasts; they come from the
// channel's native presence events.
type ChatPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// PresenceMeta is the metadata tracked for one connection of a participant.
type PresenceMeta struct {
	Username string `json:"username"`
}

// PresenceState is a full presence snapshot, keyed by presence key. A key
// holds one record per live connection of the same identity.
type PresenceState map[string][]PresenceMeta

// Local input validation errors. Invalid input is rejected before it
// reaches the channel adapter.
var (
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrEmptyRoom     = errors.New("room code cannot be empty")
	ErrEmptyMessage  = errors.New("message cannot be empty")
	ErrNotJoined     = errors.New("not joined to a room")
)
