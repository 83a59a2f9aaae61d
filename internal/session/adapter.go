package session

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/chatter/internal/chatlog"
	"github.com/weiawesome/chatter/internal/domain"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
	"github.com/weiawesome/chatter/internal/roster"
	"github.com/weiawesome/chatter/pkg/log"
)

// State of the channel adapter.
type State int

const (
	StateUnjoined State = iota
	StateOpening
	StateSubscribed
	StateClosed
)

// Adapter owns the lifecycle of one room subscription and reconciles its
// events into the local event log and roster. At most one channel handle is
// live at a time; opening a new one releases the previous handle first.
type Adapter struct {
	provider realtime.Provider
	ids      *ident.Generator
	log      *chatlog.Log
	roster   *roster.Roster

	onLog    func()
	onRoster func()

	mu       sync.Mutex
	state    State
	ch       realtime.Channel
	username string
	room     string
}

func NewAdapter(provider realtime.Provider, ids *ident.Generator, l *chatlog.Log, r *roster.Roster) *Adapter {
	return &Adapter{
		provider: provider,
		ids:      ids,
		log:      l,
		roster:   r,
	}
}

// SetObservers registers change notifications for the log and roster.
// Call before Open.
func (a *Adapter) SetObservers(onLog, onRoster func()) {
	a.mu.Lock()
	a.onLog = onLog
	a.onRoster = onRoster
	a.mu.Unlock()
}

// Open subscribes to the room's topic. An already-open handle is released
// first. Presence is announced only once the subscription acknowledges.
func (a *Adapter) Open(roomCode, username string) error {
	if roomCode == "" {
		return domain.ErrEmptyRoom
	}
	if username == "" {
		return domain.ErrEmptyUsername
	}

	a.mu.Lock()
	prev := a.ch
	a.ch = nil
	a.mu.Unlock()
	if prev != nil {
		prev.Unsubscribe()
	}

	ch := a.provider.Channel("room:"+roomCode, realtime.ChannelOpts{
		BroadcastSelf: true,
		PresenceKey:   username,
	})

	a.mu.Lock()
	a.state = StateOpening
	a.ch = ch
	a.username = username
	a.room = roomCode
	a.mu.Unlock()

	ch.OnPresenceSync(func() {
		if !a.isCurrent(ch) {
			return
		}
		a.roster.SetFromSnapshot(ch.PresenceState())
		a.notifyRoster()
	})
	ch.OnPresenceJoin(func(usernames []string) {
		a.appendPresence(ch, domain.KindPresenceJoin, usernames)
	})
	ch.OnPresenceLeave(func(usernames []string) {
		a.appendPresence(ch, domain.KindPresenceLeave, usernames)
	})
	ch.OnBroadcast("message", func(payload []byte) {
		if !a.isCurrent(ch) {
			return
		}
		var p domain.ChatPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.L().Debug().Err(err).Str(log.FieldRoom, roomCode).Msg("dropping malformed broadcast")
			return
		}
		// Received entry is appended verbatim; the payload carries the id.
		a.log.Append(domain.Entry{
			ID:       p.ID,
			Kind:     domain.KindChat,
			Username: p.Username,
			Body:     p.Message,
		})
		a.notifyLog()
	})

	ch.Subscribe(func(st realtime.Status) {
		if st != realtime.StatusSubscribed || !a.isCurrent(ch) {
			return
		}
		a.mu.Lock()
		if a.ch == ch && a.state == StateOpening {
			a.state = StateSubscribed
		}
		a.mu.Unlock()
		if err := ch.Track(domain.PresenceMeta{Username: username}); err != nil {
			log.L().Debug().Err(err).Str(log.FieldRoom, roomCode).Msg("presence track failed")
		}
	})

	return nil
}

// Send broadcasts a chat message with a freshly generated id. A no-op when
// no channel handle is open; it never returns an error to the caller.
func (a *Adapter) Send(body string) {
	if body == "" {
		return
	}

	a.mu.Lock()
	ch := a.ch
	st := a.state
	user := a.username
	a.mu.Unlock()

	if ch == nil || st != StateSubscribed {
		log.L().Debug().Msg("send on unjoined channel ignored")
		return
	}

	id, err := a.ids.Generate()
	if err != nil {
		log.L().Debug().Err(err).Msg("entry id generation failed")
		return
	}
	if err := ch.Send("message", domain.ChatPayload{
		ID:       id,
		Username: user,
		Message:  body,
	}); err != nil {
		log.L().Debug().Err(err).Msg("broadcast send failed")
	}
}

// Close unsubscribes and releases the handle. Idempotent. Events delivered
// after Close returns are ignored.
func (a *Adapter) Close() {
	a.mu.Lock()
	ch := a.ch
	a.ch = nil
	a.state = StateClosed
	a.mu.Unlock()

	if ch != nil {
		ch.Unsubscribe()
	}
}

func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adapter) isCurrent(ch realtime.Channel) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch == ch
}

func (a *Adapter) appendPresence(ch realtime.Channel, kind domain.EntryKind, usernames []string) {
	if !a.isCurrent(ch) {
		return
	}
	for _, name := range usernames {
		id, err := a.ids.Generate()
		if err != nil {
			log.L().Debug().Err(err).Msg("entry id generation failed")
			continue
		}
		a.log.Append(domain.Entry{
			ID:       id,
			Kind:     kind,
			Username: name,
		})
	}
	if len(usernames) > 0 {
		a.notifyLog()
	}
}

func (a *Adapter) notifyLog() {
	a.mu.Lock()
	f := a.onLog
	a.mu.Unlock()
	if f != nil {
		f()
	}
}

func (a *Adapter) notifyRoster() {
	a.mu.Lock()
	f := a.onRoster
	a.mu.Unlock()
	if f != nil {
		f()
	}
}
