// Package scan builds the searchable file index for a source channel by
// paginating its history exhaustively. A single bounded listing is not
// enough for channels with thousands of messages, so the scanner
// advances a cursor until the collaborator reports no further pages.
package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/renameflux/renameflux/internal/ratelimit"
	"github.com/renameflux/renameflux/internal/telegramapi"
)

const (
	// DefaultPageSize is the listing page size.
	DefaultPageSize = 100
	// DefaultMaxRetries bounds retries of a single failed page fetch.
	DefaultMaxRetries = 3
	// scanLogEvery controls the cadence of scan progress log lines.
	scanLogEvery = 100
)

// Entry is one discovered file in the source channel, addressable for
// transfer without re-reading its bytes. Entries keep scan order
// (message order, oldest first); tie-breaks in matching depend on it.
type Entry struct {
	MessageID int64
	FileName  string
	FileSize  int64
	FileRef   telegramapi.FileRef
}

// Scanner paginates a channel and indexes its file-bearing messages.
type Scanner struct {
	client     telegramapi.Client
	limiter    *ratelimit.Controller
	pageSize   int
	maxRetries int
	logf       func(string)
	retryWait  func(ctx context.Context, attempt int) error
}

// NewScanner creates a scanner. limiter may be nil (no flood-wait
// gating, used by tests); logf may be nil.
func NewScanner(client telegramapi.Client, limiter *ratelimit.Controller, pageSize, maxRetries int, logf func(string)) *Scanner {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if logf == nil {
		logf = func(string) {}
	}
	return &Scanner{
		client:     client,
		limiter:    limiter,
		pageSize:   pageSize,
		maxRetries: maxRetries,
		logf:       logf,
		retryWait:  defaultRetryWait,
	}
}

// SetRetryWait overrides the inter-retry backoff (for tests).
func (s *Scanner) SetRetryWait(fn func(ctx context.Context, attempt int) error) {
	if fn != nil {
		s.retryWait = fn
	}
}

// Scan walks the channel's full history and returns every file-bearing
// message as an Entry, oldest first. A page fetch that keeps failing
// after the retry budget fails the whole scan.
func (s *Scanner) Scan(ctx context.Context, ch telegramapi.Channel) ([]Entry, error) {
	var entries []Entry
	var cursor int64
	scanned := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := s.fetchPage(ctx, ch, cursor)
		if err != nil {
			return nil, fmt.Errorf("scan channel %q: %w", ch.Title, err)
		}

		for _, msg := range page.Messages {
			entries = append(entries, Entry{
				MessageID: msg.ID,
				FileName:  msg.FileName,
				FileSize:  msg.FileSize,
				FileRef:   msg.FileRef,
			})
			cursor = msg.ID
			scanned++
			if scanned%scanLogEvery == 0 {
				s.logf(fmt.Sprintf("Scanned %d messages, indexed %d files so far...", scanned, len(entries)))
			}
		}

		if !page.HasMore {
			break
		}
		if len(page.Messages) == 0 {
			// A page that claims more but delivers nothing would loop forever.
			break
		}
	}

	s.logf(fmt.Sprintf("Scan complete: %d files indexed", len(entries)))
	return entries, nil
}

// fetchPage fetches one page, retrying bounded on failure. Flood waits
// inside a fetch are handled by the rate controller and do not consume
// retry budget.
func (s *Scanner) fetchPage(ctx context.Context, ch telegramapi.Channel, cursor int64) (telegramapi.Page, error) {
	var page telegramapi.Page
	var lastErr error

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		op := func() error {
			var err error
			page, err = s.client.ListMessages(ctx, ch, cursor, s.pageSize)
			return err
		}
		var err error
		if s.limiter != nil {
			err = s.limiter.Do(ctx, op)
		} else {
			err = op()
		}
		if err == nil {
			return page, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return telegramapi.Page{}, ctx.Err()
		}
		s.logf(fmt.Sprintf("Page fetch failed (attempt %d/%d): %v", attempt+1, s.maxRetries, err))
		if attempt < s.maxRetries-1 {
			if err := s.retryWait(ctx, attempt); err != nil {
				return telegramapi.Page{}, err
			}
		}
	}
	return telegramapi.Page{}, fmt.Errorf("page fetch failed after %d attempts: %w", s.maxRetries, lastErr)
}

func defaultRetryWait(ctx context.Context, attempt int) error {
	d := time.Duration(attempt+1) * time.Second
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
