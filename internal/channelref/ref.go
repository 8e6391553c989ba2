// Package channelref parses the channel identifier formats users paste
// into the UI (@username, -100-prefixed numeric IDs, t.me links) and
// resolves them against the protocol client with an ordered list of
// fallback strategies.
package channelref

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/renameflux/renameflux/internal/telegramapi"
)

// ErrResolution indicates every resolution strategy failed for a reference.
var ErrResolution = errors.New("channel not resolvable")

// ErrEmptyRef indicates a blank channel reference.
var ErrEmptyRef = errors.New("empty channel reference")

// Kind discriminates the reference formats.
type Kind int

const (
	KindUsername Kind = iota
	KindChatID
	KindLink
)

func (k Kind) String() string {
	switch k {
	case KindUsername:
		return "username"
	case KindChatID:
		return "chat-id"
	case KindLink:
		return "link"
	default:
		return "unknown"
	}
}

// Ref is a parsed channel reference.
type Ref struct {
	Raw      string
	Kind     Kind
	Username string
	ChatID   int64
	Link     string
}

var (
	numericRe  = regexp.MustCompile(`^-?\d+$`)
	usernameRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{3,}$`)
)

// Parse classifies a raw channel reference.
// Accepted forms: t.me/... or http(s):// links, numeric chat IDs with
// the -100-style prefix (or bare), @username, and bare usernames.
// Anything else is passed through as a link attempt, mirroring the
// permissive behavior users expect from pasted identifiers.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, ErrEmptyRef
	}

	if strings.HasPrefix(raw, "https://") || strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "t.me/") {
		return Ref{Raw: raw, Kind: KindLink, Link: raw}, nil
	}

	if numericRe.MatchString(raw) {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Ref{}, fmt.Errorf("parse chat id %q: %w", raw, err)
		}
		return Ref{Raw: raw, Kind: KindChatID, ChatID: id}, nil
	}

	if strings.HasPrefix(raw, "@") {
		return Ref{Raw: raw, Kind: KindUsername, Username: strings.TrimPrefix(raw, "@")}, nil
	}
	if usernameRe.MatchString(raw) {
		return Ref{Raw: raw, Kind: KindUsername, Username: raw}, nil
	}

	return Ref{Raw: raw, Kind: KindLink, Link: raw}, nil
}

// BareID strips the -100 supergroup prefix from a full chat ID.
// -1001234567890 → 1234567890. IDs without the prefix pass through
// as their absolute value. The prefix is the literal decimal digits
// "100" prepended to the bare ID, so it is stripped textually.
func BareID(id int64) int64 {
	abs := id
	if abs < 0 {
		abs = -abs
	}
	s := strconv.FormatInt(abs, 10)
	if strings.HasPrefix(s, "100") && len(s) > 3 {
		if bare, err := strconv.ParseInt(s[3:], 10, 64); err == nil {
			return bare
		}
	}
	return abs
}

// queries returns the ordered resolution attempts for a reference.
func (r Ref) queries() []telegramapi.PeerQuery {
	switch r.Kind {
	case KindUsername:
		return []telegramapi.PeerQuery{
			{Kind: telegramapi.PeerUsername, Username: r.Username},
		}
	case KindChatID:
		qs := []telegramapi.PeerQuery{
			{Kind: telegramapi.PeerChatID, ChatID: r.ChatID},
		}
		if bare := BareID(r.ChatID); bare != r.ChatID {
			qs = append(qs, telegramapi.PeerQuery{Kind: telegramapi.PeerChatID, ChatID: bare})
		}
		return qs
	case KindLink:
		return []telegramapi.PeerQuery{
			{Kind: telegramapi.PeerLink, Link: r.Link},
		}
	}
	return nil
}

// Resolve tries each strategy for the reference in order until one
// succeeds. Each attempt is reported through logf so the user can see
// what is happening. Returns ErrResolution (wrapped) when all fail.
func Resolve(ctx context.Context, client telegramapi.Client, raw string, logf func(string)) (telegramapi.Channel, error) {
	if logf == nil {
		logf = func(string) {}
	}
	ref, err := Parse(raw)
	if err != nil {
		return telegramapi.Channel{}, fmt.Errorf("%w: %v", ErrResolution, err)
	}

	logf(fmt.Sprintf("Resolving channel %q (%s)", ref.Raw, ref.Kind))

	var lastErr error
	for _, q := range ref.queries() {
		ch, err := client.ResolvePeer(ctx, q)
		if err == nil {
			logf(fmt.Sprintf("Resolved %q -> %s", ref.Raw, ch.Title))
			return ch, nil
		}
		lastErr = err
		logf(fmt.Sprintf("Resolution attempt failed for %q: %v", ref.Raw, err))
		if ctx.Err() != nil {
			return telegramapi.Channel{}, ctx.Err()
		}
	}

	return telegramapi.Channel{}, fmt.Errorf("%w: %q: %v", ErrResolution, raw, lastErr)
}
