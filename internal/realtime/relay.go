package realtime

import (
	"context"
	"encoding/json"

	"github.com/weiawesome/chatter/internal/domain"
)

// Frame kinds relayed between instances.
const (
	FrameBroadcast = "broadcast"
	FrameTrack     = "track"
	FrameUntrack   = "untrack"
)

// Frame is the unit relayed between sibling instances so that one room's
// broadcasts and presence transitions reach subscribers everywhere.
type Frame struct {
	Origin  string                `json:"origin"`
	Kind    string                `json:"kind"`
	Topic   string                `json:"topic"`
	Event   string                `json:"event,omitempty"`
	Payload json.RawMessage       `json:"payload,omitempty"`
	Key     string                `json:"key,omitempty"`
	Meta    *domain.PresenceMeta  `json:"meta,omitempty"`
	Ref     string                `json:"ref,omitempty"`
}

// Relay fans frames out to sibling instances. Optional: a broker with no
// relay is a single-instance deployment.
type Relay interface {
	Publish(ctx context.Context, f Frame) error
	Close() error
}
