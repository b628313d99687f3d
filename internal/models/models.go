package models

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateOpen is returned by a session store when an open session
	// already exists for the same guild, user and channel.
	ErrDuplicateOpen = errors.New("open voice session already exists")

	// ErrSessionClosed is returned when updating a session that is missing or
	// has already been closed.
	ErrSessionClosed = errors.New("voice session not found or already closed")
)

// VoiceSession represents a user's stay in a single voice channel
type VoiceSession struct {
	ID          string
	GuildID     string
	UserID      string
	ChannelID   string
	StartedAt   time.Time
	HasLeft     bool
	EndedAt     *time.Time
	DurationMs  *int64
	Approximate bool
}

// Key returns the (guild, user, channel) triple identifying the session.
func (s *VoiceSession) Key() SessionKey {
	return SessionKey{GuildID: s.GuildID, UserID: s.UserID, ChannelID: s.ChannelID}
}

// SessionKey identifies at most one open session at a time
type SessionKey struct {
	GuildID   string
	UserID    string
	ChannelID string
}

// SessionClose holds the fields written when a session is closed
type SessionClose struct {
	EndedAt     time.Time
	DurationMs  int64
	Approximate bool
}

// VoiceChannelHours represents closed voice time per channel for a user
type VoiceChannelHours struct {
	UserID       string
	GuildID      string
	ChannelID    string
	TotalSeconds int64
	// ApproxSeconds is the part of TotalSeconds with an inferred boundary.
	ApproxSeconds int64
}

// VoiceHours represents total closed voice time for a user in a guild
type VoiceHours struct {
	UserID        string
	GuildID       string
	TotalSeconds  int64
	ApproxSeconds int64
}

// MessageEvent represents a single received guild message
type MessageEvent struct {
	GuildID   string
	ChannelID string
	UserID    string
	MessageID string
	CreatedAt time.Time
}

// MessageCount represents message totals for a user
type MessageCount struct {
	UserID   string
	Messages int64
}
