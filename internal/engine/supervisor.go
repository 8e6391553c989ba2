// Package engine drives one rename job at a time: authentication (with
// OTP suspension), exhaustive source scanning, tiered matching, chunked
// transfer under rate gating, completion tracking, and ordered progress
// events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/renameflux/renameflux/internal/channelref"
	"github.com/renameflux/renameflux/internal/completion"
	"github.com/renameflux/renameflux/internal/events"
	"github.com/renameflux/renameflux/internal/match"
	"github.com/renameflux/renameflux/internal/pipeline"
	"github.com/renameflux/renameflux/internal/ratelimit"
	"github.com/renameflux/renameflux/internal/scan"
	"github.com/renameflux/renameflux/internal/telegramapi"
	"github.com/renameflux/renameflux/pkg/protocol"
)

var (
	// ErrConfig indicates an invalid start request; no job is created.
	ErrConfig = errors.New("invalid job configuration")
	// ErrJobRunning indicates a start while another job is non-terminal.
	ErrJobRunning = errors.New("a job is already running")
	// ErrUnknownJob indicates an operation on a job ID the supervisor
	// does not hold.
	ErrUnknownJob = errors.New("unknown job")
)

// Options tunes the engine.
type Options struct {
	ChunkSize       int
	MemoryThreshold int64
	SpoolDir        string
	MinDelay        time.Duration
	OTPTimeout      time.Duration
	OTPRetries      int
	ScanPageSize    int
	ScanRetries     int
}

func (o *Options) fillDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = pipeline.DefaultChunkSize
	}
	if o.MemoryThreshold <= 0 {
		o.MemoryThreshold = pipeline.DefaultMemoryThreshold
	}
	if o.MinDelay <= 0 {
		o.MinDelay = ratelimit.DefaultMinDelay
	}
	if o.OTPTimeout <= 0 {
		o.OTPTimeout = 5 * time.Minute
	}
	if o.OTPRetries <= 0 {
		o.OTPRetries = 3
	}
	if o.ScanPageSize <= 0 {
		o.ScanPageSize = scan.DefaultPageSize
	}
	if o.ScanRetries <= 0 {
		o.ScanRetries = scan.DefaultMaxRetries
	}
}

// ClientFactory creates a protocol client for one job.
type ClientFactory func() telegramapi.Client

// Supervisor owns the current job and runs its state machine. At most
// one job is non-terminal at any time; a second start is rejected
// rather than interleaving two jobs over one protocol session.
type Supervisor struct {
	logger    *slog.Logger
	hub       *events.Hub
	tracker   *completion.Tracker
	newClient ClientFactory
	opts      Options

	mu     sync.Mutex
	jobs   map[string]*Job
	active *Job
}

// NewSupervisor creates a supervisor.
func NewSupervisor(logger *slog.Logger, hub *events.Hub, tracker *completion.Tracker, newClient ClientFactory, opts Options) *Supervisor {
	opts.fillDefaults()
	return &Supervisor{
		logger:    logger,
		hub:       hub,
		tracker:   tracker,
		newClient: newClient,
		opts:      opts,
		jobs:      make(map[string]*Job),
	}
}

// Hub exposes the event hub for transports.
func (s *Supervisor) Hub() *events.Hub { return s.hub }

// Start validates the request, allocates a job, and begins processing
// asynchronously. Returns the job ID immediately.
func (s *Supervisor) Start(cfg JobConfig) (string, error) {
	if err := validate(cfg); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.active != nil && !s.active.currentStatus().Terminal() {
		s.mu.Unlock()
		return "", ErrJobRunning
	}
	// The previous job becomes eligible for collection once a new one
	// starts; only the current run is retained.
	if s.active != nil {
		delete(s.jobs, s.active.ID)
	}
	job := newJob(uuid.NewString(), cfg.Mappings)
	s.jobs[job.ID] = job
	s.active = job
	s.mu.Unlock()

	go s.run(job, cfg)
	return job.ID, nil
}

// SubmitOTP delivers a login code to a job waiting for one. A no-op
// unless the job is currently awaiting an OTP.
func (s *Supervisor) SubmitOTP(jobID, code string) error {
	job, ok := s.lookup(jobID)
	if !ok {
		return ErrUnknownJob
	}
	job.mu.Lock()
	waiting := job.needsOTP
	job.mu.Unlock()
	if !waiting {
		return nil
	}
	select {
	case job.otpCh <- code:
	default:
		// A code is already queued; drop the extra one.
	}
	return nil
}

// Stop requests cooperative cancellation: the in-flight transfer is
// allowed to finish, no further mappings start, and the job ends done.
func (s *Supervisor) Stop(jobID string) error {
	job, ok := s.lookup(jobID)
	if !ok {
		return ErrUnknownJob
	}
	job.requestStop()
	return nil
}

// Snapshot returns an external view of a job.
func (s *Supervisor) Snapshot(jobID string) (Snapshot, error) {
	job, ok := s.lookup(jobID)
	if !ok {
		return Snapshot{}, ErrUnknownJob
	}
	return job.snapshot(), nil
}

func (s *Supervisor) lookup(jobID string) (*Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

func validate(cfg JobConfig) error {
	if len(cfg.Mappings) == 0 {
		return fmt.Errorf("%w: mapping list is empty", ErrConfig)
	}
	if strings.TrimSpace(cfg.Credentials.APIID) == "" ||
		strings.TrimSpace(cfg.Credentials.APIHash) == "" ||
		strings.TrimSpace(cfg.Credentials.Phone) == "" {
		return fmt.Errorf("%w: api credentials are required", ErrConfig)
	}
	if strings.TrimSpace(cfg.SourceChannel) == "" {
		return fmt.Errorf("%w: source channel is required", ErrConfig)
	}
	if strings.TrimSpace(cfg.DestChannel) == "" {
		return fmt.Errorf("%w: destination channel is required", ErrConfig)
	}
	for i, m := range cfg.Mappings {
		if strings.TrimSpace(m.OldName) == "" || strings.TrimSpace(m.NewName) == "" {
			return fmt.Errorf("%w: mapping %d has a blank name", ErrConfig, i)
		}
	}
	return nil
}

// run is the job's single processing goroutine. All events are
// published from here, so subscribers observe transitions in order.
func (s *Supervisor) run(job *Job, cfg JobConfig) {
	ctx := context.Background()
	client := s.newClient()
	defer client.Close()

	logf := func(format string, args ...any) {
		line := fmt.Sprintf(format, args...)
		job.appendLog(line)
		s.logger.Info(line, "job_id", job.ID)
		s.publish(job, protocol.TypeLog, protocol.LogEvent{Message: line})
	}
	emitStatus := func() {
		s.publish(job, protocol.TypeStatus, job.statusEvent())
	}
	fatal := func(msg string) {
		job.setError(msg)
		job.setStatus(StatusError)
		logf("Fatal error: %s", msg)
		emitStatus()
		s.hub.CloseJob(job.ID)
	}

	limiter := ratelimit.NewController(s.opts.MinDelay, func(line string) {
		job.appendLog(line)
		s.publish(job, protocol.TypeLog, protocol.LogEvent{Message: line})
	})

	job.setStatus(StatusStarting)
	logf("Starting rename job %s", job.ID)
	logf("Source channel      : %s", cfg.SourceChannel)
	logf("Destination channel : %s", cfg.DestChannel)
	logf("Delete from source  : %v", cfg.DeleteAfter)
	logf("Files to rename     : %d", len(cfg.Mappings))
	emitStatus()

	if !s.authenticate(ctx, client, job, cfg, logf, emitStatus, fatal) {
		return
	}

	srcCh, err := channelref.Resolve(ctx, client, cfg.SourceChannel, func(line string) { logf("%s", line) })
	if err != nil {
		fatal(fmt.Sprintf("cannot resolve source channel %q: %v", cfg.SourceChannel, err))
		return
	}
	dstCh, err := channelref.Resolve(ctx, client, cfg.DestChannel, func(line string) { logf("%s", line) })
	if err != nil {
		fatal(fmt.Sprintf("cannot resolve destination channel %q: %v", cfg.DestChannel, err))
		return
	}

	job.setStatus(StatusScanning)
	logf("Scanning source channel %q for files...", srcCh.Title)
	emitStatus()

	scanner := scan.NewScanner(client, limiter, s.opts.ScanPageSize, s.opts.ScanRetries, func(line string) { logf("%s", line) })
	entries, err := scanner.Scan(ctx, srcCh)
	if err != nil {
		fatal(fmt.Sprintf("scan failed: %v", err))
		return
	}

	job.setStatus(StatusRenaming)
	emitStatus()

	s.processMappings(ctx, job, cfg, client, limiter, entries, srcCh, dstCh, logf, emitStatus)

	s.finish(job, cfg, logf, emitStatus)
}

// authenticate drives the login flow, suspending for OTP codes as
// needed. Returns false if the job ended.
func (s *Supervisor) authenticate(ctx context.Context, client telegramapi.Client, job *Job, cfg JobConfig, logf func(string, ...any), emitStatus func(), fatal func(string)) bool {
	res, err := client.Authenticate(ctx, cfg.Credentials, cfg.SessionToken)
	if err != nil {
		fatal(fmt.Sprintf("authentication failed: %v", err))
		return false
	}

	badCodes := 0
	for res.NeedsOTP {
		job.setNeedsOTP(true)
		job.setStatus(StatusAwaitingOTP)
		logf("OTP sent to your account. Enter the code to continue.")
		emitStatus()

		var code string
		select {
		case code = <-job.otpCh:
		case <-time.After(s.opts.OTPTimeout):
			job.setNeedsOTP(false)
			fatal("authentication failed: timed out waiting for OTP")
			return false
		case <-ctx.Done():
			job.setNeedsOTP(false)
			fatal(fmt.Sprintf("authentication aborted: %v", ctx.Err()))
			return false
		}

		job.setNeedsOTP(false)
		job.setStatus(StatusStarting)
		logf("OTP received, authenticating...")
		emitStatus()

		res, err = client.SubmitOTP(ctx, code)
		if errors.Is(err, telegramapi.ErrBadCode) {
			badCodes++
			if badCodes >= s.opts.OTPRetries {
				fatal(fmt.Sprintf("authentication failed: %d invalid codes", badCodes))
				return false
			}
			logf("Invalid code, try again.")
			res = telegramapi.AuthResult{NeedsOTP: true}
			continue
		}
		if err != nil {
			fatal(fmt.Sprintf("authentication failed: %v", err))
			return false
		}
	}

	job.setSessionToken(res.SessionToken)
	logf("Logged in successfully.")
	emitStatus()
	return true
}

// processMappings iterates the mappings in their original input order.
// Per-mapping failures never abort the run.
func (s *Supervisor) processMappings(ctx context.Context, job *Job, cfg JobConfig, client telegramapi.Client, limiter *ratelimit.Controller, entries []scan.Entry, srcCh, dstCh telegramapi.Channel, logf func(string, ...any), emitStatus func()) {
	matcher := match.NewMatcher(entries)
	pipe := pipeline.New(client, limiter, pipeline.Config{
		ChunkSize:       s.opts.ChunkSize,
		MemoryThreshold: s.opts.MemoryThreshold,
		SpoolDir:        s.opts.SpoolDir,
	})
	total := len(job.mappings)

	for i := range job.mappings {
		if job.stopWanted() {
			logf("Stop requested: ending after %d of %d mappings.", i, total)
			break
		}

		m := &job.mappings[i]

		if s.tracker.Done(cfg.SourceChannel, cfg.DestChannel, m.OldName) {
			s.setMapping(job, m, MappingTransferred, match.TierNone)
			s.bumpProgress(job)
			logf("[%03d/%d] Already done (resumed): %s", i+1, total, m.OldName)
			emitStatus()
			continue
		}

		entry, tier, ok := matcher.Match(m.OldName)
		if !ok {
			s.setMapping(job, m, MappingNotFound, match.TierNone)
			s.bump(job, func(j *Job) { j.notFound++ })
			s.bumpProgress(job)
			logf("[%03d/%d] NOT FOUND: %s", i+1, total, m.OldName)
			emitStatus()
			continue
		}
		s.setMapping(job, m, MappingMatched, tier)
		logf("[%03d/%d] Matched %s via %s tier -> message %d", i+1, total, m.OldName, tier, entry.MessageID)
		emitStatus()

		if err := limiter.PaceFile(ctx); err != nil {
			s.setMapping(job, m, MappingFailed, tier)
			s.bump(job, func(j *Job) { j.failed++ })
			s.bumpProgress(job)
			logf("[%03d/%d] ERROR: %v", i+1, total, err)
			emitStatus()
			continue
		}

		newName := ensureExtension(m.NewName, entry.FileName)
		msgID, err := pipe.Transfer(ctx, entry, dstCh, newName, func(pr pipeline.Progress) {
			logf("Transferring %s: %s / %s (%.1f MB/s)",
				pr.FileName, formatBytes(pr.BytesDone), formatBytes(pr.Total), pr.RateBps/1e6)
		})
		if err != nil {
			s.setMapping(job, m, MappingFailed, tier)
			s.bump(job, func(j *Job) { j.failed++ })
			s.bumpProgress(job)
			logf("[%03d/%d] ERROR renaming %s: %v", i+1, total, m.OldName, err)
			emitStatus()
			continue
		}

		s.setMapping(job, m, MappingTransferred, tier)
		s.tracker.MarkDone(cfg.SourceChannel, cfg.DestChannel, m.OldName)
		s.bump(job, func(j *Job) { j.renamed++ })

		if cfg.DeleteAfter {
			delErr := limiter.Do(ctx, func() error {
				return client.DeleteMessage(ctx, srcCh, entry.MessageID)
			})
			if delErr != nil {
				logf("[%03d/%d] WARNING: could not delete source message %d: %v", i+1, total, entry.MessageID, delErr)
			} else {
				logf("[%03d/%d] Deleted source message %d", i+1, total, entry.MessageID)
			}
		}

		s.bumpProgress(job)
		logf("[%03d/%d] Renamed -> destination message %d", i+1, total, msgID)
		logf("    OLD: %s", m.OldName)
		logf("    NEW: %s", newName)
		emitStatus()
	}
}

// finish emits the summary block, the final session token, and the
// terminal status.
func (s *Supervisor) finish(job *Job, cfg JobConfig, logf func(string, ...any), emitStatus func()) {
	snap := job.snapshot()
	logf("Rename job complete.")
	logf("  Renamed   : %d", snap.Renamed)
	logf("  Failed    : %d", snap.Failed)
	logf("  Not found : %d", snap.NotFound)

	var failedNames, missingNames []string
	job.mu.Lock()
	for _, m := range job.mappings {
		switch m.Status {
		case MappingFailed:
			failedNames = append(failedNames, m.OldName)
		case MappingNotFound:
			missingNames = append(missingNames, m.OldName)
		}
	}
	job.mu.Unlock()
	for _, n := range failedNames {
		logf("  failed: %s", n)
	}
	for _, n := range missingNames {
		logf("  not found: %s", n)
	}
	if snap.SessionToken != "" {
		logf("Save your session string to skip the OTP next time.")
	}

	job.setStatus(StatusDone)
	emitStatus()
	s.hub.CloseJob(job.ID)
}

func (s *Supervisor) setMapping(job *Job, m *Mapping, st MappingStatus, tier match.Tier) {
	job.mu.Lock()
	m.Status = st
	m.MatchTier = tier
	job.mu.Unlock()
}

func (s *Supervisor) bump(job *Job, f func(*Job)) {
	job.mu.Lock()
	f(job)
	job.mu.Unlock()
}

func (s *Supervisor) bumpProgress(job *Job) {
	job.mu.Lock()
	job.progress++
	job.mu.Unlock()
}

func (s *Supervisor) publish(job *Job, msgType string, payload any) {
	env, err := protocol.NewEnvelope(msgType, job.ID, payload)
	if err != nil {
		s.logger.Error("marshal event", "error", err, "job_id", job.ID)
		return
	}
	s.hub.Publish(job.ID, env)
}

// ensureExtension appends the source file's extension when the new name
// has none, falling back to .mkv.
func ensureExtension(newName, sourceName string) string {
	if filepath.Ext(newName) != "" {
		return newName
	}
	ext := filepath.Ext(sourceName)
	if ext == "" {
		ext = ".mkv"
	}
	return newName + ext
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
