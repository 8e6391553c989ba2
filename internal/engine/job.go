package engine

import (
	"sync"

	"github.com/renameflux/renameflux/internal/match"
	"github.com/renameflux/renameflux/internal/telegramapi"
	"github.com/renameflux/renameflux/pkg/protocol"
)

// Status is the job state machine position.
type Status int

const (
	StatusIdle Status = iota
	StatusStarting
	StatusAwaitingOTP
	StatusScanning
	StatusRenaming
	StatusDone
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusStarting:
		return "starting"
	case StatusAwaitingOTP:
		return "awaiting-otp"
	case StatusScanning:
		return "scanning"
	case StatusRenaming:
		return "renaming"
	case StatusDone:
		return "done"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Terminal reports whether the status ends the job.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// canTransition encodes the legal state graph:
// idle → starting → (awaiting-otp ⇄ starting) → scanning → renaming → done,
// with error reachable from any non-idle state and done reachable early
// via cooperative stop.
func canTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if to == StatusError {
		return from != StatusIdle
	}
	switch from {
	case StatusIdle:
		return to == StatusStarting
	case StatusStarting:
		return to == StatusAwaitingOTP || to == StatusScanning || to == StatusDone
	case StatusAwaitingOTP:
		return to == StatusStarting || to == StatusDone
	case StatusScanning:
		return to == StatusRenaming || to == StatusDone
	case StatusRenaming:
		return to == StatusDone
	}
	return false
}

// MappingStatus tracks one requested rename through processing.
type MappingStatus int

const (
	MappingPending MappingStatus = iota
	MappingMatched
	MappingTransferred
	MappingFailed
	MappingNotFound
)

func (s MappingStatus) String() string {
	switch s {
	case MappingPending:
		return "pending"
	case MappingMatched:
		return "matched"
	case MappingTransferred:
		return "transferred"
	case MappingFailed:
		return "failed"
	case MappingNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Mapping is one requested rename. OldName and NewName are immutable;
// Status and MatchTier are set by the engine during processing.
type Mapping struct {
	OldName   string
	NewName   string
	Status    MappingStatus
	MatchTier match.Tier
}

// MappingRequest is one (old, new) pair from the start request.
type MappingRequest struct {
	OldName string `json:"old"`
	NewName string `json:"new"`
}

// JobConfig is everything a start request carries.
type JobConfig struct {
	Credentials   telegramapi.Credentials
	SessionToken  string
	SourceChannel string
	DestChannel   string
	DeleteAfter   bool
	Mappings      []MappingRequest
}

const (
	// logRingCap bounds the in-memory log; older lines are dropped.
	logRingCap = 1000
	// snapshotLogTail is how many trailing lines a snapshot returns.
	snapshotLogTail = 200
)

// Job is one rename run. It is owned by the Supervisor; external actors
// observe it only through snapshots and the event stream.
type Job struct {
	ID string

	mu            sync.Mutex
	status        Status
	mappings      []Mapping
	renamed       int
	failed        int
	notFound      int
	progress      int
	logs          []string
	errMsg        string
	sessionToken  string
	needsOTP      bool
	stopRequested bool

	otpCh chan string
}

func newJob(id string, reqs []MappingRequest) *Job {
	mappings := make([]Mapping, len(reqs))
	for i, r := range reqs {
		mappings[i] = Mapping{OldName: r.OldName, NewName: r.NewName}
	}
	return &Job{
		ID:       id,
		status:   StatusIdle,
		mappings: mappings,
		otpCh:    make(chan string, 1),
	}
}

// setStatus applies a transition if the state graph allows it.
func (j *Job) setStatus(to Status) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.status, to) {
		return false
	}
	j.status = to
	return true
}

func (j *Job) currentStatus() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

func (j *Job) appendLog(line string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logs = append(j.logs, line)
	if len(j.logs) > logRingCap {
		j.logs = j.logs[len(j.logs)-logRingCap:]
	}
}

// setError records the terminal error message. Only the first caller
// wins; the error field is populated exactly once.
func (j *Job) setError(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.errMsg == "" {
		j.errMsg = msg
	}
}

func (j *Job) setNeedsOTP(v bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.needsOTP = v
}

func (j *Job) setSessionToken(tok string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sessionToken = tok
}

func (j *Job) requestStop() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopRequested = true
}

func (j *Job) stopWanted() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopRequested
}

// Snapshot is a point-in-time external view of a job.
type Snapshot struct {
	JobID        string   `json:"job_id"`
	Status       string   `json:"status"`
	Progress     int      `json:"progress"`
	Total        int      `json:"total"`
	Renamed      int      `json:"renamed"`
	Failed       int      `json:"failed"`
	NotFound     int      `json:"not_found"`
	NeedsOTP     bool     `json:"needs_otp"`
	Logs         []string `json:"logs"`
	Error        string   `json:"error,omitempty"`
	SessionToken string   `json:"session_string,omitempty"`
}

func (j *Job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	logs := j.logs
	if len(logs) > snapshotLogTail {
		logs = logs[len(logs)-snapshotLogTail:]
	}
	return Snapshot{
		JobID:        j.ID,
		Status:       j.status.String(),
		Progress:     j.progress,
		Total:        len(j.mappings),
		Renamed:      j.renamed,
		Failed:       j.failed,
		NotFound:     j.notFound,
		NeedsOTP:     j.needsOTP,
		Logs:         append([]string(nil), logs...),
		Error:        j.errMsg,
		SessionToken: j.sessionToken,
	}
}

// statusEvent builds the push-channel status payload.
func (j *Job) statusEvent() protocol.StatusEvent {
	j.mu.Lock()
	defer j.mu.Unlock()
	return protocol.StatusEvent{
		Status:       j.status.String(),
		Progress:     j.progress,
		Total:        len(j.mappings),
		Renamed:      j.renamed,
		Failed:       j.failed,
		NotFound:     j.notFound,
		NeedsOTP:     j.needsOTP,
		SessionToken: j.sessionToken,
		Error:        j.errMsg,
	}
}
