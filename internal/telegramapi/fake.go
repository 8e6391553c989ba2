package telegramapi

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Fake is a scripted in-memory Client implementation for testing.
// Channel contents, authentication behavior, and failure injection are
// all configured up front; calls are recorded for assertions.
type Fake struct {
	mu sync.Mutex

	// Authentication script.
	RequireOTP bool   // first Authenticate without a valid token reports NeedsOTP
	AcceptCode string // the one OTP code SubmitOTP accepts
	ValidToken string // session token that skips the OTP flow
	IssueToken string // token handed out after successful auth
	AuthErr    error  // fatal Authenticate failure

	// Channel directory and history.
	peers   map[string]Channel
	history map[int64][]Message

	// Failure injection.
	ListErrs     []error // consumed one per ListMessages call (nil = no error)
	DownloadErrs map[FileRef]error
	UploadErrs   []error // consumed one per UploadFile call (nil = no error)
	DeleteErr    error

	// Synchronization hooks. When set, UploadFile announces the upload
	// name on UploadStarted and then blocks until UploadBlock yields.
	UploadStarted chan string
	UploadBlock   chan struct{}

	// Recorded activity.
	Uploads     []FakeUpload
	Deleted     []int64
	ListCalls   int
	OTPAttempts int

	connected     bool
	failedUploads int // keeps UploadErrs scripting aligned with call order
}

// FakeUpload records one UploadFile call.
type FakeUpload struct {
	ChannelID int64
	Name      string
	Size      int64
	Bytes     int64 // bytes actually read from src
	MsgID     int64
}

// NewFake returns an empty fake with no channels and no auth demands.
func NewFake() *Fake {
	return &Fake{
		peers:        make(map[string]Channel),
		history:      make(map[int64][]Message),
		DownloadErrs: make(map[FileRef]error),
	}
}

// AddPeer registers a channel under a resolution key. Keys use the
// forms "@name", "id:123", and "link:t.me/...".
func (f *Fake) AddPeer(key string, ch Channel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[key] = ch
}

// AddFile appends a file-bearing message to a channel's history.
// Messages are served oldest first in insertion order.
func (f *Fake) AddFile(chID, msgID int64, name string, size int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[chID] = append(f.history[chID], Message{
		ID:       msgID,
		FileName: name,
		FileSize: size,
		FileRef:  FileRef(fmt.Sprintf("ref-%d-%d", chID, msgID)),
	})
}

func (f *Fake) Authenticate(ctx context.Context, creds Credentials, sessionToken string) (AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AuthErr != nil {
		return AuthResult{}, f.AuthErr
	}
	if sessionToken != "" && sessionToken == f.ValidToken {
		f.connected = true
		return AuthResult{SessionToken: sessionToken}, nil
	}
	if f.RequireOTP {
		return AuthResult{NeedsOTP: true}, nil
	}
	f.connected = true
	return AuthResult{SessionToken: f.IssueToken}, nil
}

func (f *Fake) SubmitOTP(ctx context.Context, code string) (AuthResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OTPAttempts++
	if code != f.AcceptCode {
		return AuthResult{}, ErrBadCode
	}
	f.connected = true
	return AuthResult{SessionToken: f.IssueToken}, nil
}

func (f *Fake) ResolvePeer(ctx context.Context, q PeerQuery) (Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var key string
	switch q.Kind {
	case PeerUsername:
		key = "@" + q.Username
	case PeerChatID:
		key = fmt.Sprintf("id:%d", q.ChatID)
	case PeerLink:
		key = "link:" + q.Link
	}
	ch, ok := f.peers[key]
	if !ok {
		return Channel{}, fmt.Errorf("%w: %s", ErrPeerNotFound, key)
	}
	return ch, nil
}

func (f *Fake) ListMessages(ctx context.Context, ch Channel, cursor int64, limit int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.ListCalls
	f.ListCalls++
	if call < len(f.ListErrs) && f.ListErrs[call] != nil {
		return Page{}, f.ListErrs[call]
	}

	all := f.history[ch.ID]
	start := 0
	for i, m := range all {
		if m.ID > cursor {
			start = i
			break
		}
		start = i + 1
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	page := Page{
		Messages: append([]Message(nil), all[start:end]...),
		HasMore:  end < len(all),
	}
	return page, nil
}

func (f *Fake) DownloadChunks(ctx context.Context, ref FileRef, chunkSize int) (ChunkReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.DownloadErrs[ref]; err != nil {
		return nil, err
	}
	size, ok := f.findSize(ref)
	if !ok {
		return nil, fmt.Errorf("unknown file reference %q", ref)
	}
	return &fakeChunkReader{size: size, chunkSize: chunkSize}, nil
}

func (f *Fake) findSize(ref FileRef) (int64, bool) {
	for _, msgs := range f.history {
		for _, m := range msgs {
			if m.FileRef == ref {
				return m.FileSize, true
			}
		}
	}
	return 0, false
}

func (f *Fake) UploadFile(ctx context.Context, ch Channel, src io.Reader, name string, size int64) (int64, error) {
	f.mu.Lock()
	call := len(f.Uploads) + f.failedUploads
	var injected error
	if call < len(f.UploadErrs) {
		injected = f.UploadErrs[call]
	}
	f.mu.Unlock()

	if injected != nil {
		f.mu.Lock()
		f.failedUploads++
		f.mu.Unlock()
		return 0, injected
	}

	if f.UploadStarted != nil {
		f.UploadStarted <- name
	}
	if f.UploadBlock != nil {
		<-f.UploadBlock
	}

	// Drain src without materializing it; count bytes only.
	n, err := io.Copy(io.Discard, src)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	msgID := int64(100000 + len(f.Uploads))
	f.Uploads = append(f.Uploads, FakeUpload{
		ChannelID: ch.ID,
		Name:      name,
		Size:      size,
		Bytes:     n,
		MsgID:     msgID,
	})
	return msgID, nil
}

func (f *Fake) DeleteMessage(ctx context.Context, ch Channel, msgID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.Deleted = append(f.Deleted, msgID)
	for i, m := range f.history[ch.ID] {
		if m.ID == msgID {
			f.history[ch.ID] = append(f.history[ch.ID][:i], f.history[ch.ID][i+1:]...)
			break
		}
	}
	return nil
}

// OTPAttemptCount returns how many SubmitOTP calls the fake has seen.
func (f *Fake) OTPAttemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OTPAttempts
}

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

var _ Client = (*Fake)(nil)

// fakeChunkReader serves a deterministic byte pattern in fixed-size
// chunks. Only one chunk is ever alive, so arbitrarily large reported
// sizes cost no memory.
type fakeChunkReader struct {
	size      int64
	chunkSize int
	offset    int64
	buf       []byte
}

func (r *fakeChunkReader) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.offset >= r.size {
		return nil, io.EOF
	}
	n := int64(r.chunkSize)
	if r.offset+n > r.size {
		n = r.size - r.offset
	}
	if r.buf == nil || int64(len(r.buf)) != n {
		r.buf = make([]byte, n)
	}
	for i := range r.buf {
		r.buf[i] = byte((r.offset + int64(i)) % 251)
	}
	r.offset += n
	return r.buf, nil
}

func (r *fakeChunkReader) Size() int64 { return r.size }

func (r *fakeChunkReader) Close() error { return nil }
