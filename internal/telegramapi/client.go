// Package telegramapi defines the boundary with the underlying protocol
// client. The engine never speaks the wire protocol itself; everything
// network-facing goes through the Client interface, and any call may
// surface a FloodWaitError carrying a server-mandated wait.
package telegramapi

import (
	"context"
	"io"
)

// Credentials are the API credentials supplied on job start.
type Credentials struct {
	APIID   string
	APIHash string
	Phone   string
}

// AuthResult is the outcome of an authentication attempt.
// When NeedsOTP is set the session is suspended until SubmitOTP succeeds.
type AuthResult struct {
	NeedsOTP     bool
	SessionToken string
}

// PeerKind discriminates the resolution strategies a PeerQuery can use.
type PeerKind int

const (
	PeerUsername PeerKind = iota
	PeerChatID
	PeerLink
)

// PeerQuery is one resolution attempt against the protocol client.
type PeerQuery struct {
	Kind     PeerKind
	Username string
	ChatID   int64
	Link     string
}

// Channel is a resolved channel entity.
type Channel struct {
	ID    int64
	Title string
}

// FileRef is an opaque handle addressing a stored file's bytes without
// re-specifying content. Stable for the lifetime of a session.
type FileRef string

// Message is one file-bearing message from a channel listing.
// Listings only return messages that carry a document.
type Message struct {
	ID       int64
	FileName string
	FileSize int64
	FileRef  FileRef
}

// Page is one bounded slice of a channel's message history, oldest first.
type Page struct {
	Messages []Message
	HasMore  bool
}

// ChunkReader yields a file's bytes as a finite sequence of chunks.
type ChunkReader interface {
	// Next returns the next chunk, or io.EOF after the last one.
	// The returned slice is only valid until the following call.
	Next(ctx context.Context) ([]byte, error)
	// Size is the total byte count the download will deliver.
	Size() int64
	Close() error
}

// Client is the protocol collaborator contract.
type Client interface {
	// Authenticate starts or resumes a session. A non-empty sessionToken
	// skips the OTP flow when still valid.
	Authenticate(ctx context.Context, creds Credentials, sessionToken string) (AuthResult, error)

	// SubmitOTP delivers a login code to an authentication attempt that
	// reported NeedsOTP. Returns ErrBadCode for a rejected code.
	SubmitOTP(ctx context.Context, code string) (AuthResult, error)

	// ResolvePeer resolves one PeerQuery to a channel entity.
	ResolvePeer(ctx context.Context, q PeerQuery) (Channel, error)

	// ListMessages returns file-bearing messages after the cursor
	// (0 = from the start of history), oldest first.
	ListMessages(ctx context.Context, ch Channel, cursor int64, limit int) (Page, error)

	// DownloadChunks opens a chunked download of the referenced file.
	DownloadChunks(ctx context.Context, ref FileRef, chunkSize int) (ChunkReader, error)

	// UploadFile posts src as a document to ch under the given name.
	// The name is always supplied explicitly; it is never inferred from
	// the source. Returns the new message ID.
	UploadFile(ctx context.Context, ch Channel, src io.Reader, name string, size int64) (int64, error)

	// DeleteMessage removes a message from a channel.
	DeleteMessage(ctx context.Context, ch Channel, msgID int64) error

	Close() error
}
