package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/weiawesome/chatter/internal/config"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/internal/realtime"
	"github.com/weiawesome/chatter/internal/render"
	"github.com/weiawesome/chatter/internal/session"
	"github.com/weiawesome/chatter/pkg/log"
)

// Client is one websocket connection: its session (log, roster, room
// subscription) and its window over the session's log.
type Client struct {
	ID      string
	Conn    *websocket.Conn
	Send    chan []byte
	Session *session.Session
	Window  *render.Window
	config  config.WebSocketConfig

	// sendMu serializes queueing against CloseSend. Observer callbacks
	// run on the realtime dispatch goroutine and may still be in flight
	// when the read pump tears the connection down.
	sendMu     sync.Mutex
	sendClosed bool
}

func NewClient(id string, conn *websocket.Conn, cfg config.WebSocketConfig, provider realtime.Provider, entryIDs *ident.Generator) *Client {
	s := session.NewSession(id, provider, entryIDs)
	return &Client{
		ID:      id,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		Session: s,
		Window:  render.NewWindow(s.Log()),
		config:  cfg,
	}
}

func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.L().Warn().Err(err).Str(log.FieldClientID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendMessage queues a message for the write pump. A full queue drops the
// message rather than blocking the caller; the next window or roster push
// supersedes it anyway. Messages queued after CloseSend are dropped.
func (c *Client) SendMessage(message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return nil
	}

	select {
	case c.Send <- data:
	default:
		log.L().Debug().Str(log.FieldClientID, c.ID).Msg("send queue full, dropping message")
	}
	return nil
}

// CloseSend closes the send queue so the write pump drains and exits.
// Idempotent, and safe against concurrently queueing observers.
func (c *Client) CloseSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.sendClosed {
		return
	}
	c.sendClosed = true
	close(c.Send)
}
