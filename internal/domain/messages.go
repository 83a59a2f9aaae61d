package domain

// WebSocket message types from client.
const (
	MsgTypeJoin   = "join"
	MsgTypeChat   = "chat"
	MsgTypeResize = "resize"
	MsgTypeScroll = "scroll"
	MsgTypePing   = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeJoined = "joined"
	MsgTypeWindow = "window"
	MsgTypeRoster = "roster"
	MsgTypeError  = "error"
	MsgTypePong   = "pong"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotInRoom     = "NOT_IN_ROOM"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinMessage struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	Username  string `json:"username"`
	ClientUID string `json:"client_uid"`
}

type ChatMessageWS struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type ResizeMessage struct {
	Type   string `json:"type"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type ScrollMessage struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
}

// Server -> Client messages

type JoinedMessage struct {
	Type     string `json:"type"`
	Room     string `json:"room"`
	Username string `json:"username"`
}

type RosterMessage struct {
	Type  string   `json:"type"`
	Users []string `json:"users"`
}

// WindowRow is one materialized row of the virtualized log.
type WindowRow struct {
	Index  int   `json:"index"`
	Entry  Entry `json:"entry"`
	Top    int   `json:"top"`
	Height int   `json:"height"`
}

// WindowMessage carries only the rows intersecting the client viewport,
// plus the total scrollable height and the offset the rows were computed at.
type WindowMessage struct {
	Type        string      `json:"type"`
	TotalHeight int         `json:"total_height"`
	Offset      int         `json:"offset"`
	Rows        []WindowRow `json:"rows"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
