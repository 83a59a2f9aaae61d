package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/weiawesome/chatter/internal/domain"
	"github.com/weiawesome/chatter/pkg/log"
)

// ErrNotSubscribed is returned when presence is tracked on a channel that
// never reached the subscribed state.
var ErrNotSubscribed = errors.New("channel is not subscribed")

// Broker is the process-wide realtime capability: named topics carrying
// presence tracking and broadcast fan-out. Exactly one Broker is
// constructed per running process.
type Broker struct {
	instanceID string

	mu     sync.RWMutex
	topics map[string]*topic
	relay  Relay
}

type presenceRecord struct {
	ref  string
	meta domain.PresenceMeta
}

type topic struct {
	subs     map[*channel]struct{}
	presence map[string][]presenceRecord
}

func NewBroker() *Broker {
	return &Broker{
		instanceID: uuid.New().String(),
		topics:     make(map[string]*topic),
	}
}

// InstanceID identifies this broker in relayed frames.
func (b *Broker) InstanceID() string { return b.instanceID }

// SetRelay attaches a cross-instance relay. Must be called before any
// channel subscribes.
func (b *Broker) SetRelay(r Relay) {
	b.mu.Lock()
	b.relay = r
	b.mu.Unlock()
}

// Channel creates an unsubscribed channel for the given topic.
func (b *Broker) Channel(name string, opts ChannelOpts) Channel {
	return &channel{
		id:         uuid.New().String(),
		broker:     b,
		topic:      name,
		opts:       opts,
		broadcasts: make(map[string]BroadcastHandler),
		events:     make(chan event, eventQueueSize),
		done:       make(chan struct{}),
	}
}

func (b *Broker) ensureTopic(name string) *topic {
	t, ok := b.topics[name]
	if !ok {
		t = &topic{
			subs:     make(map[*channel]struct{}),
			presence: make(map[string][]presenceRecord),
		}
		b.topics[name] = t
	}
	return t
}

func (b *Broker) subscribe(c *channel) {
	b.mu.Lock()
	t := b.ensureTopic(c.topic)
	t.subs[c] = struct{}{}
	b.mu.Unlock()

	log.L().Debug().Str(log.FieldRoom, c.topic).Str(log.FieldClientID, c.id).Msg("channel subscribed")
}

func (b *Broker) unsubscribe(c *channel) {
	b.mu.Lock()
	t, ok := b.topics[c.topic]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(t.subs, c)

	var left []string
	for key, records := range t.presence {
		kept := records[:0]
		removed := false
		var removedMeta domain.PresenceMeta
		for _, rec := range records {
			if rec.ref == c.id {
				removed = true
				removedMeta = rec.meta
				continue
			}
			kept = append(kept, rec)
		}
		if !removed {
			continue
		}
		if len(kept) == 0 {
			delete(t.presence, key)
			left = append(left, usernameFor(key, removedMeta))
		} else {
			t.presence[key] = kept
		}
	}

	if len(t.subs) == 0 && len(t.presence) == 0 {
		delete(b.topics, c.topic)
	}
	targets := snapshotSubs(t)
	relay := b.relay
	b.mu.Unlock()

	if len(left) > 0 {
		b.emitDiff(targets, evPresenceLeave, left)
		b.emitSync(targets)
	}
	if relay != nil {
		b.publishRelay(relay, Frame{
			Kind:  FrameUntrack,
			Topic: c.topic,
			Key:   c.opts.PresenceKey,
			Ref:   b.instanceID + "/" + c.id,
		})
	}

	log.L().Debug().Str(log.FieldRoom, c.topic).Str(log.FieldClientID, c.id).Msg("channel unsubscribed")
}

func (b *Broker) track(c *channel, meta domain.PresenceMeta) {
	b.mu.Lock()
	t := b.ensureTopic(c.topic)
	key := c.opts.PresenceKey
	newlyPresent := len(t.presence[key]) == 0
	t.presence[key] = append(t.presence[key], presenceRecord{ref: c.id, meta: meta})
	targets := snapshotSubs(t)
	relay := b.relay
	b.mu.Unlock()

	if newlyPresent {
		b.emitDiff(targets, evPresenceJoin, []string{usernameFor(key, meta)})
	}
	b.emitSync(targets)

	if relay != nil {
		m := meta
		b.publishRelay(relay, Frame{
			Kind:  FrameTrack,
			Topic: c.topic,
			Key:   key,
			Meta:  &m,
			Ref:   b.instanceID + "/" + c.id,
		})
	}
}

func (b *Broker) broadcast(sender *channel, name string, data []byte) {
	b.mu.RLock()
	t, ok := b.topics[sender.topic]
	var targets []*channel
	if ok {
		targets = snapshotSubs(t)
	}
	relay := b.relay
	b.mu.RUnlock()

	for _, c := range targets {
		if c == sender && !sender.opts.BroadcastSelf {
			continue
		}
		c.deliver(event{kind: evBroadcast, name: name, payload: data})
	}

	if relay != nil {
		b.publishRelay(relay, Frame{
			Kind:    FrameBroadcast,
			Topic:   sender.topic,
			Event:   name,
			Payload: data,
		})
	}
}

func (b *Broker) presenceState(name string) domain.PresenceState {
	b.mu.RLock()
	defer b.mu.RUnlock()

	t, ok := b.topics[name]
	if !ok {
		return domain.PresenceState{}
	}
	state := make(domain.PresenceState, len(t.presence))
	for key, records := range t.presence {
		metas := make([]domain.PresenceMeta, 0, len(records))
		for _, rec := range records {
			metas = append(metas, rec.meta)
		}
		state[key] = metas
	}
	return state
}

// inject applies a frame received from a sibling instance. The relay has
// already filtered out frames this instance originated.
func (b *Broker) inject(f Frame) {
	switch f.Kind {
	case FrameBroadcast:
		b.mu.RLock()
		t, ok := b.topics[f.Topic]
		var targets []*channel
		if ok {
			targets = snapshotSubs(t)
		}
		b.mu.RUnlock()
		for _, c := range targets {
			c.deliver(event{kind: evBroadcast, name: f.Event, payload: f.Payload})
		}

	case FrameTrack:
		var meta domain.PresenceMeta
		if f.Meta != nil {
			meta = *f.Meta
		}
		b.mu.Lock()
		t := b.ensureTopic(f.Topic)
		newlyPresent := len(t.presence[f.Key]) == 0
		t.presence[f.Key] = append(t.presence[f.Key], presenceRecord{ref: f.Ref, meta: meta})
		targets := snapshotSubs(t)
		b.mu.Unlock()
		if newlyPresent {
			b.emitDiff(targets, evPresenceJoin, []string{usernameFor(f.Key, meta)})
		}
		b.emitSync(targets)

	case FrameUntrack:
		b.mu.Lock()
		t, ok := b.topics[f.Topic]
		if !ok {
			b.mu.Unlock()
			return
		}
		records := t.presence[f.Key]
		kept := records[:0]
		removed := false
		var removedMeta domain.PresenceMeta
		for _, rec := range records {
			if rec.ref == f.Ref {
				removed = true
				removedMeta = rec.meta
				continue
			}
			kept = append(kept, rec)
		}
		emptied := removed && len(kept) == 0
		if emptied {
			delete(t.presence, f.Key)
		} else {
			t.presence[f.Key] = kept
		}
		if len(t.subs) == 0 && len(t.presence) == 0 {
			delete(b.topics, f.Topic)
		}
		targets := snapshotSubs(t)
		b.mu.Unlock()
		if emptied {
			b.emitDiff(targets, evPresenceLeave, []string{usernameFor(f.Key, removedMeta)})
		}
		if removed {
			b.emitSync(targets)
		}
	}
}

func (b *Broker) emitSync(targets []*channel) {
	for _, c := range targets {
		c.deliver(event{kind: evPresenceSync})
	}
}

func (b *Broker) emitDiff(targets []*channel, kind eventKind, names []string) {
	for _, c := range targets {
		c.deliver(event{kind: kind, names: names})
	}
}

func (b *Broker) publishRelay(r Relay, f Frame) {
	f.Origin = b.instanceID
	if err := r.Publish(context.Background(), f); err != nil {
		log.L().Debug().Err(err).Str(log.FieldRoom, f.Topic).Msg("relay publish failed")
	}
}

func snapshotSubs(t *topic) []*channel {
	subs := make([]*channel, 0, len(t.subs))
	for c := range t.subs {
		subs = append(subs, c)
	}
	return subs
}

func usernameFor(key string, meta domain.PresenceMeta) string {
	if meta.Username != "" {
		return meta.Username
	}
	return key
}
