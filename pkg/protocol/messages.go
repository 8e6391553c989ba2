package protocol

// LogEvent carries one appended job log line.
type LogEvent struct {
	Message string `json:"message"`
}

// StatusEvent is a point-in-time snapshot of a job, pushed after every
// job-level and mapping-level transition.
type StatusEvent struct {
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	Total        int    `json:"total"`
	Renamed      int    `json:"renamed"`
	Failed       int    `json:"failed"`
	NotFound     int    `json:"not_found"`
	NeedsOTP     bool   `json:"needs_otp"`
	SessionToken string `json:"session_string,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ErrorEvent reports a push-channel level error (e.g. unknown job).
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
