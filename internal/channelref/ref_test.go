package channelref

import (
	"context"
	"errors"
	"testing"

	"github.com/renameflux/renameflux/internal/telegramapi"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		kind     Kind
		username string
		chatID   int64
		link     string
		wantErr  bool
	}{
		{name: "at username", raw: "@mychannel", kind: KindUsername, username: "mychannel"},
		{name: "bare username", raw: "mychannel", kind: KindUsername, username: "mychannel"},
		{name: "supergroup id", raw: "-1001234567890", kind: KindChatID, chatID: -1001234567890},
		{name: "bare positive id", raw: "1234567890", kind: KindChatID, chatID: 1234567890},
		{name: "tme link", raw: "t.me/mychannel", kind: KindLink, link: "t.me/mychannel"},
		{name: "https link", raw: "https://t.me/joinchat/AbCdEf", kind: KindLink, link: "https://t.me/joinchat/AbCdEf"},
		{name: "whitespace trimmed", raw: "  @mychannel  ", kind: KindUsername, username: "mychannel"},
		{name: "empty", raw: "", wantErr: true},
		{name: "blank", raw: "   ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := Parse(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if ref.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", ref.Kind, tt.kind)
			}
			if ref.Username != tt.username {
				t.Errorf("Username = %q, want %q", ref.Username, tt.username)
			}
			if ref.ChatID != tt.chatID {
				t.Errorf("ChatID = %d, want %d", ref.ChatID, tt.chatID)
			}
			if ref.Link != tt.link {
				t.Errorf("Link = %q, want %q", ref.Link, tt.link)
			}
		})
	}
}

func TestBareID(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{-1001234567890, 1234567890},
		{-1003557121488, 3557121488},
		{1234567890, 1234567890},
		{-987654, 987654},
	}
	for _, tt := range tests {
		if got := BareID(tt.in); got != tt.want {
			t.Errorf("BareID(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestResolveUsername(t *testing.T) {
	fake := telegramapi.NewFake()
	fake.AddPeer("@mychannel", telegramapi.Channel{ID: 42, Title: "My Channel"})

	ch, err := Resolve(context.Background(), fake, "@mychannel", nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ch.ID != 42 {
		t.Errorf("ID = %d, want 42", ch.ID)
	}
}

func TestResolveChatIDFallsBackToBareID(t *testing.T) {
	fake := telegramapi.NewFake()
	// Only resolvable under the bare ID, not the -100 prefixed one.
	fake.AddPeer("id:1234567890", telegramapi.Channel{ID: 1234567890, Title: "Private"})

	var attempts []string
	ch, err := Resolve(context.Background(), fake, "-1001234567890", func(s string) {
		attempts = append(attempts, s)
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if ch.Title != "Private" {
		t.Errorf("Title = %q, want Private", ch.Title)
	}
	if len(attempts) < 3 {
		t.Errorf("expected resolution attempts to be logged, got %d lines", len(attempts))
	}
}

func TestResolveAllStrategiesFail(t *testing.T) {
	fake := telegramapi.NewFake()

	_, err := Resolve(context.Background(), fake, "-1001234567890", nil)
	if !errors.Is(err, ErrResolution) {
		t.Fatalf("expected ErrResolution, got %v", err)
	}
}
