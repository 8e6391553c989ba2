// Package pipeline moves one file's bytes from its source reference to
// the destination channel under a new filename, with peak memory
// bounded independently of file size. Small files are buffered in
// memory; large ones spill to a temporary spool file that is removed on
// every exit path.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/renameflux/renameflux/internal/progress"
	"github.com/renameflux/renameflux/internal/ratelimit"
	"github.com/renameflux/renameflux/internal/scan"
	"github.com/renameflux/renameflux/internal/telegramapi"
)

const (
	// DefaultChunkSize is the download chunk size.
	DefaultChunkSize = 512 * 1024
	// DefaultMemoryThreshold is the largest file buffered fully in
	// memory; anything bigger spills to disk.
	DefaultMemoryThreshold = 400 * 1024 * 1024
	// progressInterval bounds how often progress is emitted.
	progressInterval = 250 * time.Millisecond
)

// ErrTransferAborted indicates the transfer stopped before the upload
// acknowledged completion.
var ErrTransferAborted = errors.New("transfer aborted")

// Progress is one incremental transfer progress report.
type Progress struct {
	FileName  string
	BytesDone int64
	Total     int64
	RateBps   float64
}

// Config tunes the pipeline.
type Config struct {
	ChunkSize       int
	MemoryThreshold int64
	SpoolDir        string // "" = system temp dir
}

// Pipeline transfers files one at a time.
type Pipeline struct {
	client  telegramapi.Client
	limiter *ratelimit.Controller
	cfg     Config
}

// New creates a pipeline. limiter may be nil (no flood-wait gating).
func New(client telegramapi.Client, limiter *ratelimit.Controller, cfg Config) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.MemoryThreshold <= 0 {
		cfg.MemoryThreshold = DefaultMemoryThreshold
	}
	return &Pipeline{client: client, limiter: limiter, cfg: cfg}
}

// Transfer downloads the entry's bytes chunk by chunk and uploads them
// to dest under newName. The new name is always supplied explicitly as
// upload metadata. onProgress (may be nil) receives throttled
// incremental reports. Returns the destination message ID.
func (p *Pipeline) Transfer(ctx context.Context, entry scan.Entry, dest telegramapi.Channel, newName string, onProgress func(Progress)) (int64, error) {
	var reader telegramapi.ChunkReader
	err := p.gated(ctx, func() error {
		var err error
		reader, err = p.client.DownloadChunks(ctx, entry.FileRef, p.cfg.ChunkSize)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("open download: %w", err)
	}
	defer reader.Close()

	size := reader.Size()
	if size <= 0 {
		size = entry.FileSize
	}

	meter := progress.NewMeter()
	meter.Start(size)
	var lastEmit int64
	emit := func(final bool) {
		if onProgress == nil {
			return
		}
		if !final && !shouldEmit(&lastEmit) {
			return
		}
		st := meter.Snapshot()
		onProgress(Progress{
			FileName:  newName,
			BytesDone: st.BytesDone,
			Total:     st.Total,
			RateBps:   st.RateBps,
		})
	}

	if size <= p.cfg.MemoryThreshold {
		return p.transferBuffered(ctx, reader, dest, newName, size, meter, emit)
	}
	return p.transferSpooled(ctx, reader, dest, newName, size, meter, emit)
}

// transferBuffered accumulates chunks in memory and uploads from the
// buffer.
func (p *Pipeline) transferBuffered(ctx context.Context, reader telegramapi.ChunkReader, dest telegramapi.Channel, newName string, size int64, meter *progress.Meter, emit func(bool)) (int64, error) {
	var buf bytes.Buffer
	buf.Grow(int(size))

	if err := p.drain(ctx, reader, &buf, meter, emit); err != nil {
		return 0, err
	}

	data := buf.Bytes()
	return p.upload(ctx, dest, newName, int64(len(data)), func() (io.Reader, error) {
		return bytes.NewReader(data), nil
	}, emit)
}

// transferSpooled writes chunks to a temp file and streams the upload
// from disk. At most one chunk's worth of bytes lives in memory at any
// instant. The spool file is removed on every exit path.
func (p *Pipeline) transferSpooled(ctx context.Context, reader telegramapi.ChunkReader, dest telegramapi.Channel, newName string, size int64, meter *progress.Meter, emit func(bool)) (msgID int64, err error) {
	spool, err := os.CreateTemp(p.cfg.SpoolDir, "renameflux-*.spool")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	spoolPath := spool.Name()
	defer func() {
		spool.Close()
		if rmErr := os.Remove(spoolPath); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = fmt.Errorf("remove spool file: %w", rmErr)
		}
	}()

	if err := p.drain(ctx, reader, spool, meter, emit); err != nil {
		return 0, err
	}

	written, err := spool.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("spool size: %w", err)
	}

	return p.upload(ctx, dest, newName, written, func() (io.Reader, error) {
		if _, err := spool.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind spool: %w", err)
		}
		return spool, nil
	}, emit)
}

// drain copies all chunks from reader into w, checking cancellation and
// emitting progress at chunk granularity.
func (p *Pipeline) drain(ctx context.Context, reader telegramapi.ChunkReader, w io.Writer, meter *progress.Meter, emit func(bool)) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrTransferAborted, err)
		}
		chunk, err := reader.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("download chunk: %w", err)
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("write chunk: %w", err)
		}
		meter.Add(len(chunk))
		emit(false)
	}
}

// upload posts the assembled bytes, re-opening the source for the
// single flood-wait retry the rate controller may perform. A failed
// upload never leaves a partially acknowledged message: either the
// collaborator acknowledged with a message ID or the transfer failed.
func (p *Pipeline) upload(ctx context.Context, dest telegramapi.Channel, newName string, size int64, open func() (io.Reader, error), emit func(bool)) (int64, error) {
	var msgID int64
	err := p.gated(ctx, func() error {
		src, err := open()
		if err != nil {
			return err
		}
		msgID, err = p.client.UploadFile(ctx, dest, src, newName, size)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("upload %q: %w", newName, err)
	}
	emit(true)
	return msgID, nil
}

func (p *Pipeline) gated(ctx context.Context, op func() error) error {
	if p.limiter != nil {
		return p.limiter.Do(ctx, op)
	}
	return op()
}

// shouldEmit rate-limits progress reports to one per interval.
func shouldEmit(last *int64) bool {
	now := time.Now().UnixNano()
	prev := atomic.LoadInt64(last)
	if now-prev < int64(progressInterval) {
		return false
	}
	return atomic.CompareAndSwapInt64(last, prev, now)
}
