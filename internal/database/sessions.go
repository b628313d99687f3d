package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"voicestats/internal/models"
)

// uniqueViolation is the Postgres error code for unique_violation.
const uniqueViolation = "23505"

// sessionColumns lists columns returned by voice session SELECT queries.
var sessionColumns = []string{
	"id", "guild_id", "user_id", "channel_id", "started_at",
	"has_left", "ended_at", "duration_ms", "approximate",
}

// SessionStore persists voice sessions in Postgres
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new session store
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts an open session. A second open session for the same guild,
// user and channel violates voice_sessions_open_uniq and yields
// models.ErrDuplicateOpen.
func (s *SessionStore) Create(ctx context.Context, session *models.VoiceSession) error {
	query, args, err := psq.Insert("voice_sessions").
		Columns("id", "guild_id", "user_id", "channel_id", "started_at", "has_left", "approximate").
		Values(session.ID, session.GuildID, session.UserID, session.ChannelID, session.StartedAt, false, session.Approximate).
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}

	if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return models.ErrDuplicateOpen
		}
		return fmt.Errorf("failed to insert voice session: %w", err)
	}
	return nil
}

// FindOpen returns the open session for the triple, or nil when there is none
func (s *SessionStore) FindOpen(ctx context.Context, guildID, userID, channelID string) (*models.VoiceSession, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("voice_sessions").
		Where(sq.Eq{"guild_id": guildID}).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"channel_id": channelID}).
		Where(sq.Eq{"has_left": false}).
		OrderBy("started_at").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	session, err := scanSession(s.db.conn.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find open voice session: %w", err)
	}
	return session, nil
}

// FindAllOpen returns every open session, oldest first
func (s *SessionStore) FindAllOpen(ctx context.Context) ([]*models.VoiceSession, error) {
	query, args, err := psq.Select(sessionColumns...).
		From("voice_sessions").
		Where(sq.Eq{"has_left": false}).
		OrderBy("started_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := s.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query open voice sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sessions []*models.VoiceSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voice session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating voice session rows: %w", err)
	}
	return sessions, nil
}

// Update closes an open session. Only open rows are touched, so a session is
// closed at most once.
func (s *SessionStore) Update(ctx context.Context, id string, fields models.SessionClose) error {
	query, args, err := psq.Update("voice_sessions").
		Set("has_left", true).
		Set("ended_at", fields.EndedAt).
		Set("duration_ms", fields.DurationMs).
		Set("approximate", fields.Approximate).
		Where(sq.Eq{"id": id}).
		Where(sq.Eq{"has_left": false}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building update: %w", err)
	}

	res, err := s.db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to close voice session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return models.ErrSessionClosed
	}
	return nil
}

// Delete removes a session record
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	query, args, err := psq.Delete("voice_sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building delete: %w", err)
	}
	if _, err := s.db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete voice session: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.VoiceSession, error) {
	var (
		session  models.VoiceSession
		endedAt  sql.NullTime
		duration sql.NullInt64
	)
	if err := row.Scan(
		&session.ID,
		&session.GuildID,
		&session.UserID,
		&session.ChannelID,
		&session.StartedAt,
		&session.HasLeft,
		&endedAt,
		&duration,
		&session.Approximate,
	); err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time.UTC()
		session.EndedAt = &t
	}
	if duration.Valid {
		d := duration.Int64
		session.DurationMs = &d
	}
	session.StartedAt = session.StartedAt.UTC()
	return &session, nil
}
