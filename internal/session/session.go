package session

import (
	"sync"

	"github.com/weiawesome/chatter/internal/chatlog"
	"github.com/weiawesome/chatter/internal/domain"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
	"github.com/weiawesome/chatter/internal/roster"
	"github.com/weiawesome/chatter/pkg/log"
)

// Session is the per-connection aggregate: one event log, one roster, and
// one channel adapter. Moving to a different room (or username) tears the
// previous subscription down and starts both models fresh.
type Session struct {
	id      string
	log     *chatlog.Log
	roster  *roster.Roster
	adapter *Adapter

	mu       sync.Mutex
	room     string
	username string
	joined   bool
}

func NewSession(id string, provider realtime.Provider, ids *ident.Generator) *Session {
	l := chatlog.New()
	r := roster.New()
	return &Session{
		id:      id,
		log:     l,
		roster:  r,
		adapter: NewAdapter(provider, ids, l, r),
	}
}

func (s *Session) ID() string               { return s.id }
func (s *Session) Log() *chatlog.Log        { return s.log }
func (s *Session) Roster() *roster.Roster   { return s.roster }
func (s *Session) SetObservers(onLog, onRoster func()) {
	s.adapter.SetObservers(onLog, onRoster)
}

// Join subscribes the session to a room. Rejoining the same room with the
// same username is a no-op; anything else closes the current subscription
// and clears both models before opening the new one.
func (s *Session) Join(roomCode, username string) error {
	if roomCode == "" {
		return domain.ErrEmptyRoom
	}
	if username == "" {
		return domain.ErrEmptyUsername
	}

	s.mu.Lock()
	if s.joined && s.room == roomCode && s.username == username {
		s.mu.Unlock()
		return nil
	}
	wasJoined := s.joined
	s.room = roomCode
	s.username = username
	s.joined = true
	s.mu.Unlock()

	if wasJoined {
		s.adapter.Close()
		s.log.Clear()
		s.roster.Clear()
	}

	log.L().Info().
		Str(log.FieldClientID, s.id).
		Str(log.FieldRoom, roomCode).
		Str(log.FieldUsername, username).
		Msg("session joining room")
	return s.adapter.Open(roomCode, username)
}

// SendMessage validates and broadcasts a chat message.
func (s *Session) SendMessage(body string) error {
	if body == "" {
		return domain.ErrEmptyMessage
	}
	s.mu.Lock()
	joined := s.joined
	s.mu.Unlock()
	if !joined {
		return domain.ErrNotJoined
	}
	s.adapter.Send(body)
	return nil
}

// Close releases the subscription and clears local state. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	s.joined = false
	s.mu.Unlock()

	s.adapter.Close()
	s.log.Clear()
	s.roster.Clear()
}

func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}
