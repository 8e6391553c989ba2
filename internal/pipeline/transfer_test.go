package pipeline

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/renameflux/renameflux/internal/scan"
	"github.com/renameflux/renameflux/internal/telegramapi"
)

func setup(t *testing.T, fileSize int64, cfg Config) (*Pipeline, *telegramapi.Fake, scan.Entry, telegramapi.Channel) {
	t.Helper()
	fake := telegramapi.NewFake()
	fake.AddFile(1, 10, "old.mkv", fileSize)
	entry := scan.Entry{MessageID: 10, FileName: "old.mkv", FileSize: fileSize, FileRef: telegramapi.FileRef("ref-1-10")}
	dest := telegramapi.Channel{ID: 2, Title: "Dest"}
	return New(fake, nil, cfg), fake, entry, dest
}

func TestTransferBufferedSmallFile(t *testing.T) {
	p, fake, entry, dest := setup(t, 10*1024, Config{ChunkSize: 1024, MemoryThreshold: 1 << 20})

	msgID, err := p.Transfer(context.Background(), entry, dest, "new.mkv", nil)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if msgID == 0 {
		t.Fatal("expected a destination message ID")
	}
	if len(fake.Uploads) != 1 {
		t.Fatalf("expected 1 upload, got %d", len(fake.Uploads))
	}
	up := fake.Uploads[0]
	if up.Name != "new.mkv" {
		t.Errorf("uploaded name = %q, want new.mkv (never the source name)", up.Name)
	}
	if up.Bytes != 10*1024 {
		t.Errorf("uploaded %d bytes, want %d", up.Bytes, 10*1024)
	}
	if up.ChannelID != 2 {
		t.Errorf("uploaded to channel %d, want 2", up.ChannelID)
	}
}

func TestTransferSpoolsLargeFile(t *testing.T) {
	spoolDir := t.TempDir()
	p, fake, entry, dest := setup(t, 64*1024, Config{ChunkSize: 4 * 1024, MemoryThreshold: 8 * 1024, SpoolDir: spoolDir})

	_, err := p.Transfer(context.Background(), entry, dest, "new.mkv", nil)
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if fake.Uploads[0].Bytes != 64*1024 {
		t.Errorf("uploaded %d bytes, want %d", fake.Uploads[0].Bytes, 64*1024)
	}
	assertSpoolEmpty(t, spoolDir)
}

func TestTransferSpoolCleanupOnUploadFailure(t *testing.T) {
	spoolDir := t.TempDir()
	p, fake, entry, dest := setup(t, 64*1024, Config{ChunkSize: 4 * 1024, MemoryThreshold: 8 * 1024, SpoolDir: spoolDir})
	boom := errors.New("upload exploded")
	fake.UploadErrs = []error{boom}

	_, err := p.Transfer(context.Background(), entry, dest, "new.mkv", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected upload error, got %v", err)
	}
	assertSpoolEmpty(t, spoolDir)
}

func TestTransferDownloadFailure(t *testing.T) {
	spoolDir := t.TempDir()
	p, fake, entry, dest := setup(t, 64*1024, Config{ChunkSize: 4 * 1024, MemoryThreshold: 8 * 1024, SpoolDir: spoolDir})
	boom := errors.New("download exploded")
	fake.DownloadErrs[entry.FileRef] = boom

	_, err := p.Transfer(context.Background(), entry, dest, "new.mkv", nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected download error, got %v", err)
	}
	if len(fake.Uploads) != 0 {
		t.Fatal("expected no upload after download failure")
	}
	assertSpoolEmpty(t, spoolDir)
}

func TestTransferCancelledMidFile(t *testing.T) {
	spoolDir := t.TempDir()
	p, _, entry, dest := setup(t, 64*1024, Config{ChunkSize: 4 * 1024, MemoryThreshold: 8 * 1024, SpoolDir: spoolDir})

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := false
	_, err := p.Transfer(ctx, entry, dest, "new.mkv", func(pr Progress) {
		if !cancelled {
			cancelled = true
			cancel()
		}
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	assertSpoolEmpty(t, spoolDir)
}

func TestTransferReportsProgress(t *testing.T) {
	p, _, entry, dest := setup(t, 10*1024, Config{ChunkSize: 1024, MemoryThreshold: 1 << 20})

	var last Progress
	count := 0
	_, err := p.Transfer(context.Background(), entry, dest, "new.mkv", func(pr Progress) {
		last = pr
		count++
	})
	if err != nil {
		t.Fatalf("Transfer() error = %v", err)
	}
	if count == 0 {
		t.Fatal("expected at least one progress report")
	}
	if last.BytesDone != 10*1024 || last.Total != 10*1024 {
		t.Errorf("final progress = %d/%d, want %d/%d", last.BytesDone, last.Total, 10*1024, 10*1024)
	}
	if last.FileName != "new.mkv" {
		t.Errorf("progress file name = %q, want new.mkv", last.FileName)
	}
}

func assertSpoolEmpty(t *testing.T, dir string) {
	t.Helper()
	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	if len(files) != 0 {
		t.Fatalf("expected spool dir to be empty, found %d files", len(files))
	}
}
