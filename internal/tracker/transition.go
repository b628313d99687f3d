package tracker

import (
	"context"
	"log/slog"
)

// TransitionKind classifies a voice state change.
type TransitionKind int

const (
	KindNone TransitionKind = iota
	KindJoin
	KindLeave
	KindSwitch
	// KindStateChange is a change within the same channel (mute, deafen, stream).
	KindStateChange
)

func (k TransitionKind) String() string {
	switch k {
	case KindJoin:
		return "voice_join"
	case KindLeave:
		return "voice_leave"
	case KindSwitch:
		return "voice_switch"
	case KindStateChange:
		return "voice_state"
	default:
		return "none"
	}
}

// Transition is a live voice state change for one user.
type Transition struct {
	GuildID      string
	UserID       string
	OldChannelID string
	NewChannelID string
	Deaf         bool
	SelfDeaf     bool
}

func (tr Transition) Deafened() bool {
	return tr.Deaf || tr.SelfDeaf
}

func (tr Transition) Kind() TransitionKind {
	switch {
	case tr.OldChannelID == "" && tr.NewChannelID == "":
		return KindNone
	case tr.OldChannelID == "":
		return KindJoin
	case tr.NewChannelID == "":
		return KindLeave
	case tr.OldChannelID != tr.NewChannelID:
		return KindSwitch
	default:
		return KindStateChange
	}
}

// Apply turns a live transition into closes and opens. A switch is a close of
// the old channel followed by an open of the new one. Failures are logged.
func (t *Tracker) Apply(ctx context.Context, tr Transition) TransitionKind {
	kind := tr.Kind()
	switch kind {
	case KindJoin:
		t.applyOpen(ctx, tr)
	case KindLeave:
		t.applyClose(ctx, tr, tr.OldChannelID)
	case KindSwitch:
		t.applyClose(ctx, tr, tr.OldChannelID)
		t.applyOpen(ctx, tr)
	case KindStateChange:
		if tr.Deafened() {
			t.applyClose(ctx, tr, tr.NewChannelID)
		} else {
			t.applyOpen(ctx, tr)
		}
	}
	return kind
}

func (t *Tracker) applyOpen(ctx context.Context, tr Transition) {
	if tr.Deafened() {
		t.filtered("deafened", tr.GuildID, tr.UserID, tr.NewChannelID)
		return
	}
	if _, err := t.Open(ctx, tr.GuildID, tr.UserID, tr.NewChannelID, false); err != nil {
		t.logger.Error("failed to open voice session",
			slog.String("guild", tr.GuildID),
			slog.String("user", tr.UserID),
			slog.String("channel", tr.NewChannelID),
			slog.Any("err", err))
	}
}

func (t *Tracker) applyClose(ctx context.Context, tr Transition, channelID string) {
	if _, err := t.Close(ctx, tr.GuildID, tr.UserID, channelID, false); err != nil {
		t.logger.Error("failed to close voice session",
			slog.String("guild", tr.GuildID),
			slog.String("user", tr.UserID),
			slog.String("channel", channelID),
			slog.Any("err", err))
	}
}
