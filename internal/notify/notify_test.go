package notify

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tyemirov/tripauth/internal/session"
)

func TestLogNotifierLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	notifier := NewLogNotifier(zap.New(core))

	notifier.Notify(session.Notice{Kind: session.NoticeSignedIn, Message: "Signed in as Ada Lovelace"})
	notifier.Notify(session.Notice{
		Kind:      session.NoticeLockedOut,
		Message:   "Too many failed attempts",
		Err:       session.ErrLockedOut,
		Remaining: 15 * time.Minute,
	})

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[0].Message != "Signed in as Ada Lovelace" {
		t.Fatalf("unexpected first entry %+v", entries[0])
	}
	if entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for failures, got %v", entries[1].Level)
	}
	if logs.FilterField(zap.String("code", "notice.locked_out")).Len() != 1 {
		t.Fatalf("expected locked_out code field")
	}
	if logs.FilterField(zap.Duration("remaining", 15*time.Minute)).Len() != 1 {
		t.Fatalf("expected remaining field")
	}
}

func TestChannelNotifierNeverBlocks(t *testing.T) {
	t.Parallel()

	notifier := NewChannelNotifier(2)
	for index := 0; index < 5; index++ {
		notifier.Notify(session.Notice{Kind: session.NoticeAuthenticationFailed})
	}
	if notifier.Dropped() != 3 {
		t.Fatalf("expected 3 dropped notices, got %d", notifier.Dropped())
	}
	if notice := <-notifier.Notices(); notice.Kind != session.NoticeAuthenticationFailed {
		t.Fatalf("unexpected notice %+v", notice)
	}
}

func TestFanoutForwardsToEach(t *testing.T) {
	t.Parallel()

	first := NewChannelNotifier(1)
	second := NewChannelNotifier(1)
	fanout := Fanout{first, nil, second}
	fanout.Notify(session.Notice{Kind: session.NoticeRefreshFailed, Err: errors.New("boom")})

	for _, notifier := range []*ChannelNotifier{first, second} {
		if notice := <-notifier.Notices(); notice.Kind != session.NoticeRefreshFailed {
			t.Fatalf("unexpected notice %+v", notice)
		}
	}
}
