package telegramapi

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthFailed indicates credentials were rejected.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrBadCode indicates a rejected OTP code.
	ErrBadCode = errors.New("invalid login code")
	// ErrPeerNotFound indicates a resolution query matched nothing.
	ErrPeerNotFound = errors.New("peer not found")
	// ErrNotConnected indicates a call before a successful Authenticate.
	ErrNotConnected = errors.New("client not connected")
)

// FloodWaitError is the distinguished rate-limit condition. The server
// demands that the caller wait RetryAfter before repeating the call.
type FloodWaitError struct {
	RetryAfter time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait: retry after %s", e.RetryAfter)
}

// AsFloodWait extracts the mandated wait from an error chain.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.RetryAfter, true
	}
	return 0, false
}
