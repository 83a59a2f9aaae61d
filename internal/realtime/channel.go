package realtime

import (
	"encoding/json"
	"sync"

	"github.com/weiawesome/chatter/internal/domain"
)

// Status reported to the subscribe callback.
type Status string

const (
	StatusSubscribed Status = "SUBSCRIBED"
	StatusClosed     Status = "CLOSED"
)

// ChannelOpts configures one subscription.
type ChannelOpts struct {
	// BroadcastSelf makes the channel deliver the subscriber's own
	// broadcasts back to it, so a sender needs no separate local echo.
	BroadcastSelf bool
	// PresenceKey identifies this participant's presence entry.
	PresenceKey string
}

type BroadcastHandler func(payload []byte)
type PresenceSyncHandler func()
type PresenceDiffHandler func(usernames []string)

// Channel is one subscription to a named topic. Handlers are registered
// before Subscribe and are all dispatched from a single goroutine, so they
// never race each other. After Unsubscribe returns no new events are
// dispatched; a handler already mid-flight may still finish, so anything a
// handler touches must tolerate one trailing invocation.
type Channel interface {
	OnBroadcast(event string, h BroadcastHandler)
	OnPresenceSync(h PresenceSyncHandler)
	OnPresenceJoin(h PresenceDiffHandler)
	OnPresenceLeave(h PresenceDiffHandler)

	Subscribe(cb func(Status))
	Track(meta domain.PresenceMeta) error
	PresenceState() domain.PresenceState
	Send(event string, payload any) error
	Unsubscribe()
}

// Provider hands out channels. Implemented by Broker.
type Provider interface {
	Channel(topic string, opts ChannelOpts) Channel
}

type eventKind int

const (
	evStatus eventKind = iota
	evBroadcast
	evPresenceSync
	evPresenceJoin
	evPresenceLeave
)

type event struct {
	kind    eventKind
	status  Status
	name    string
	payload []byte
	names   []string
}

// eventQueueSize bounds the per-channel delivery queue. Delivery is
// best-effort: a full queue drops, it never blocks the broker.
const eventQueueSize = 256

type channel struct {
	id     string
	broker *Broker
	topic  string
	opts   ChannelOpts

	mu         sync.Mutex
	subscribed bool
	closed     bool
	statusCb   func(Status)
	broadcasts map[string]BroadcastHandler
	onSync     PresenceSyncHandler
	onJoin     PresenceDiffHandler
	onLeave    PresenceDiffHandler

	events chan event
	done   chan struct{}
}

func (c *channel) OnBroadcast(event string, h BroadcastHandler) {
	c.mu.Lock()
	c.broadcasts[event] = h
	c.mu.Unlock()
}

func (c *channel) OnPresenceSync(h PresenceSyncHandler) {
	c.mu.Lock()
	c.onSync = h
	c.mu.Unlock()
}

func (c *channel) OnPresenceJoin(h PresenceDiffHandler) {
	c.mu.Lock()
	c.onJoin = h
	c.mu.Unlock()
}

func (c *channel) OnPresenceLeave(h PresenceDiffHandler) {
	c.mu.Lock()
	c.onLeave = h
	c.mu.Unlock()
}

// Subscribe registers the channel with its topic and reports the subscribed
// status asynchronously through the channel's own dispatch goroutine.
func (c *channel) Subscribe(cb func(Status)) {
	c.mu.Lock()
	if c.closed || c.subscribed {
		c.mu.Unlock()
		return
	}
	c.subscribed = true
	c.statusCb = cb
	c.mu.Unlock()

	go c.run()
	c.broker.subscribe(c)
	c.deliver(event{kind: evStatus, status: StatusSubscribed})
	// Late joiners learn the current presence set immediately.
	c.deliver(event{kind: evPresenceSync})
}

func (c *channel) Track(meta domain.PresenceMeta) error {
	c.mu.Lock()
	if c.closed || !c.subscribed {
		c.mu.Unlock()
		return ErrNotSubscribed
	}
	c.mu.Unlock()
	c.broker.track(c, meta)
	return nil
}

func (c *channel) PresenceState() domain.PresenceState {
	return c.broker.presenceState(c.topic)
}

// Send broadcasts a named event to all current subscribers of the topic.
// Sending on a closed or never-subscribed channel is a no-op.
func (c *channel) Send(name string, payload any) error {
	c.mu.Lock()
	if c.closed || !c.subscribed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.broker.broadcast(c, name, data)
	return nil
}

// Unsubscribe releases the subscription and its tracked presence.
// Idempotent; events arriving afterwards are dropped.
func (c *channel) Unsubscribe() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	cb := c.statusCb
	c.mu.Unlock()

	close(c.done)
	c.broker.unsubscribe(c)
	if cb != nil {
		cb(StatusClosed)
	}
}

// deliver enqueues an event unless the channel is closed or its queue is
// full. Never blocks.
func (c *channel) deliver(ev event) {
	select {
	case <-c.done:
	default:
		select {
		case <-c.done:
		case c.events <- ev:
		default:
		}
	}
}

func (c *channel) run() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.events:
			c.dispatch(ev)
		}
	}
}

func (c *channel) dispatch(ev event) {
	c.mu.Lock()
	statusCb := c.statusCb
	var bh BroadcastHandler
	if ev.kind == evBroadcast {
		bh = c.broadcasts[ev.name]
	}
	onSync, onJoin, onLeave := c.onSync, c.onJoin, c.onLeave
	c.mu.Unlock()

	switch ev.kind {
	case evStatus:
		if statusCb != nil {
			statusCb(ev.status)
		}
	case evBroadcast:
		if bh != nil {
			bh(ev.payload)
		}
	case evPresenceSync:
		if onSync != nil {
			onSync()
		}
	case evPresenceJoin:
		if onJoin != nil {
			onJoin(ev.names)
		}
	case evPresenceLeave:
		if onLeave != nil {
			onLeave(ev.names)
		}
	}
}
