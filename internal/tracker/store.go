// Package tracker keeps one persisted session per stay of a user in a voice
// channel and reconciles open sessions against live platform presence.
package tracker

import (
	"context"

	"voicestats/internal/models"
)

// Store persists voice sessions. Implementations return models.ErrDuplicateOpen
// from Create when the triple already has an open session and
// models.ErrSessionClosed from Update when the session is no longer open.
type Store interface {
	Create(ctx context.Context, session *models.VoiceSession) error
	// FindOpen returns nil, nil when no open session matches.
	FindOpen(ctx context.Context, guildID, userID, channelID string) (*models.VoiceSession, error)
	FindAllOpen(ctx context.Context) ([]*models.VoiceSession, error)
	Update(ctx context.Context, id string, fields models.SessionClose) error
	Delete(ctx context.Context, id string) error
}

// VoiceState is a user's live voice presence.
type VoiceState struct {
	ChannelID string
	Deaf      bool
	SelfDeaf  bool
}

// Deafened reports whether the user is server- or self-deafened.
func (v VoiceState) Deafened() bool {
	return v.Deaf || v.SelfDeaf
}

// Presence exposes the live platform view the tracker is checked against.
type Presence interface {
	// AFKChannel returns the guild's AFK channel id and whether the guild is known.
	AFKChannel(guildID string) (string, bool)
	// VoiceState returns the user's voice state, or false when the user is in no channel.
	VoiceState(guildID, userID string) (VoiceState, bool)
}
