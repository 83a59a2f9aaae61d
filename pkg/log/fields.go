package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldClientIP  = "client_ip"

	// Actor
	FieldClientID = "client_id"
	FieldUsername = "username"

	// Chat
	FieldRoom    = "room"
	FieldEntryID = "entry_id"

	// Service
	FieldService = "service"
)
