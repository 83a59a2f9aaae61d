package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/weiawesome/chatter/internal/config"
	"github.com/weiawesome/chatter/internal/domain"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
	"github.com/weiawesome/chatter/internal/render"
	"github.com/weiawesome/chatter/internal/store"
	"github.com/weiawesome/chatter/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSHandler struct {
	provider   realtime.Provider
	roomCodes  *ident.Generator
	entryIDs   *ident.Generator
	identities store.IdentityStore
	wsCfg      config.WebSocketConfig
}

func NewWSHandler(provider realtime.Provider, roomCodes, entryIDs *ident.Generator, identities store.IdentityStore, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		provider:   provider,
		roomCodes:  roomCodes,
		entryIDs:   entryIDs,
		identities: identities,
		wsCfg:      wsCfg,
	}
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.L().Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(uuid.New().String(), conn, h.wsCfg, h.provider, h.entryIDs)

	// Every log or roster change pushes a fresh view. The window stays
	// anchored to the newest entry whenever the log grows.
	client.Session.SetObservers(
		func() {
			client.SendMessage(client.Window.Snapshot(render.ScrollToEnd))
		},
		func() {
			client.SendMessage(&domain.RosterMessage{
				Type:  domain.MsgTypeRoster,
				Users: client.Session.Roster().Users(),
			})
		},
	)

	go client.WritePump()
	go client.ReadPump(h.handleMessage, func(c *Client) {
		c.Session.Close()
		c.CloseSend()
		log.L().Info().Str(log.FieldClientID, c.ID).Msg("client disconnected")
	})
}

func (h *WSHandler) handleMessage(client *Client, message []byte) {
	var base domain.BaseMessage
	if err := json.Unmarshal(message, &base); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid message format"))
		return
	}

	ctx := context.Background()

	switch base.Type {
	case domain.MsgTypeJoin:
		var msg domain.JoinMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid join message"))
			return
		}
		h.handleJoin(ctx, client, msg)

	case domain.MsgTypeChat:
		var msg domain.ChatMessageWS
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid chat message"))
			return
		}
		if err := client.Session.SendMessage(msg.Content); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeNotInRoom, err.Error()))
		}

	case domain.MsgTypeResize:
		var msg domain.ResizeMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid resize message"))
			return
		}
		client.Window.SetViewport(msg.Width, msg.Height)
		client.SendMessage(client.Window.Snapshot(render.ScrollToEnd))

	case domain.MsgTypeScroll:
		var msg domain.ScrollMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid scroll message"))
			return
		}
		client.SendMessage(client.Window.Snapshot(msg.Offset))

	case domain.MsgTypePing:
		client.SendMessage(map[string]string{"type": domain.MsgTypePong})

	default:
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Unknown message type"))
	}
}

// handleJoin resolves the room and username, remembers the identity, and
// subscribes the session. A missing room code starts a new room; a missing
// username falls back to the one remembered for this client and room.
func (h *WSHandler) handleJoin(ctx context.Context, client *Client, msg domain.JoinMessage) {
	room := msg.Room
	if room == "" {
		code, err := h.roomCodes.Generate()
		if err != nil {
			client.SendMessage(domain.NewErrorMessage(domain.ErrCodeInternalError, "Could not create room"))
			return
		}
		room = code
	} else if ok, reason := h.roomCodes.Validate(room); !ok {
		log.L().Debug().Str(log.FieldRoom, room).Str("reason", reason).Msg("rejecting invalid room code")
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Invalid room code"))
		return
	}

	username := msg.Username
	if username == "" && msg.ClientUID != "" {
		remembered, err := h.identities.Lookup(ctx, msg.ClientUID, room)
		if err != nil {
			log.L().Warn().Err(err).Str(log.FieldRoom, room).Msg("identity lookup failed")
		}
		username = remembered
	}
	if username == "" {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, "Username is required"))
		return
	}

	if err := client.Session.Join(room, username); err != nil {
		client.SendMessage(domain.NewErrorMessage(domain.ErrCodeBadRequest, err.Error()))
		return
	}

	if msg.ClientUID != "" {
		if err := h.identities.Remember(ctx, msg.ClientUID, room, username); err != nil {
			log.L().Warn().Err(err).Str(log.FieldRoom, room).Msg("identity remember failed")
		}
	}

	client.SendMessage(&domain.JoinedMessage{
		Type:     domain.MsgTypeJoined,
		Room:     room,
		Username: username,
	})
	client.SendMessage(client.Window.Snapshot(render.ScrollToEnd))
}

func (h *WSHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.HandleWebSocket)
}
