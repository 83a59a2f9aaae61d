package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/weiawesome/chatter/internal/ident"
	"github.com/weiawesome/chatter/pkg/log"
)

// HTTPHandler serves the join-link entrypoint and health check.
type HTTPHandler struct {
	roomCodes *ident.Generator
}

func NewHTTPHandler(roomCodes *ident.Generator) *HTTPHandler {
	return &HTTPHandler{roomCodes: roomCodes}
}

// HandleIndex implements the shareable join link. A request without a room
// code gets a fresh one generated and is redirected to the canonical
// ?room= URL, so the address bar is always a link others can follow into
// the same room.
func (h *HTTPHandler) HandleIndex(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		code, err := h.roomCodes.Generate()
		if err != nil {
			log.L().Error().Err(err).Msg("room code generation failed")
			http.Error(w, "could not create room", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, "/?room="+code, http.StatusFound)
		return
	}

	if ok, reason := h.roomCodes.Validate(room); !ok {
		log.L().Debug().Str(log.FieldRoom, room).Str("reason", reason).Msg("rejecting invalid room code")
		http.Error(w, "invalid room code", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexPage))
}

func (h *HTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/", h.HandleIndex).Methods(http.MethodGet)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
}

const indexPage = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Chatter</title></head>
<body>
<p>Connect a websocket client to <code>/ws</code> and send a join message
with this page's <code>room</code> query parameter to enter the room.</p>
</body>
</html>
`
