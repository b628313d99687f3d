package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"

	"voicestats/internal/models"
)

// Repository handles the statistics read side and message counters
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// RecordMessage stores a received guild message; edits of a known message are ignored
func (r *Repository) RecordMessage(ctx context.Context, event models.MessageEvent) error {
	query, args, err := psq.Insert("message_events").
		Columns("message_id", "guild_id", "channel_id", "user_id", "created_at").
		Values(event.MessageID, event.GuildID, event.ChannelID, event.UserID, event.CreatedAt).
		Suffix("ON CONFLICT (message_id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("building insert: %w", err)
	}
	if _, err := r.db.conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record message: %w", err)
	}
	return nil
}

// GetVoiceChannelHours gets closed voice time per channel for a user in a guild
func (r *Repository) GetVoiceChannelHours(ctx context.Context, userID, guildID string) ([]models.VoiceChannelHours, error) {
	query, args, err := psq.Select(
		"channel_id",
		"COALESCE(SUM(duration_ms), 0) / 1000 AS total_seconds",
		"COALESCE(SUM(duration_ms) FILTER (WHERE approximate), 0) / 1000 AS approx_seconds",
	).
		From("voice_sessions").
		Where(sq.Eq{"guild_id": guildID}).
		Where(sq.Eq{"user_id": userID}).
		Where(sq.Eq{"has_left": true}).
		GroupBy("channel_id").
		OrderBy("total_seconds DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get voice channel hours: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channelHours []models.VoiceChannelHours
	for rows.Next() {
		ch := models.VoiceChannelHours{UserID: userID, GuildID: guildID}
		if err := rows.Scan(&ch.ChannelID, &ch.TotalSeconds, &ch.ApproxSeconds); err != nil {
			slog.Warn("error scanning channel hours row", slog.Any("err", err))
			continue
		}
		channelHours = append(channelHours, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel hours rows: %w", err)
	}
	return channelHours, nil
}

// GetVoiceLeaderboard gets the users with the most closed voice time in a guild
func (r *Repository) GetVoiceLeaderboard(ctx context.Context, guildID string, limit int) ([]models.VoiceHours, error) {
	query, args, err := psq.Select(
		"user_id",
		"COALESCE(SUM(duration_ms), 0) / 1000 AS total_seconds",
		"COALESCE(SUM(duration_ms) FILTER (WHERE approximate), 0) / 1000 AS approx_seconds",
	).
		From("voice_sessions").
		Where(sq.Eq{"guild_id": guildID}).
		Where(sq.Eq{"has_left": true}).
		GroupBy("user_id").
		OrderBy("total_seconds DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get voice leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var board []models.VoiceHours
	for rows.Next() {
		vh := models.VoiceHours{GuildID: guildID}
		if err := rows.Scan(&vh.UserID, &vh.TotalSeconds, &vh.ApproxSeconds); err != nil {
			slog.Warn("error scanning leaderboard row", slog.Any("err", err))
			continue
		}
		board = append(board, vh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating leaderboard rows: %w", err)
	}
	return board, nil
}

// GetChannelMessageLeaderboard gets the top posters in a channel since a point in time
func (r *Repository) GetChannelMessageLeaderboard(ctx context.Context, guildID, channelID string, since time.Time, limit int) ([]models.MessageCount, error) {
	query, args, err := psq.Select("user_id", "COUNT(*) AS messages").
		From("message_events").
		Where(sq.Eq{"guild_id": guildID}).
		Where(sq.Eq{"channel_id": channelID}).
		Where(sq.GtOrEq{"created_at": since}).
		GroupBy("user_id").
		OrderBy("messages DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}

	rows, err := r.db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get message leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var counts []models.MessageCount
	for rows.Next() {
		var mc models.MessageCount
		if err := rows.Scan(&mc.UserID, &mc.Messages); err != nil {
			slog.Warn("error scanning message count row", slog.Any("err", err))
			continue
		}
		counts = append(counts, mc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating message count rows: %w", err)
	}
	return counts, nil
}
