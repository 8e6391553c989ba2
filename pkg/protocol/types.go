package protocol

// Message type constants for push-channel envelopes.
const (
	TypeLog    = "log"
	TypeStatus = "status"
	TypeError  = "error"
)
