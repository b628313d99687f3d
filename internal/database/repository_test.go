package database

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestats/internal/models"
)

func newMockRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewRepository(Wrap(conn)), mock
}

func TestRecordMessage(t *testing.T) {
	repo, mock := newMockRepository(t)
	event := models.MessageEvent{GuildID: "100", ChannelID: "400", UserID: "200", MessageID: "900", CreatedAt: testStart}

	mock.ExpectExec("INSERT INTO message_events (.+) ON CONFLICT \\(message_id\\) DO NOTHING").
		WithArgs("900", "100", "400", "200", testStart).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RecordMessage(context.Background(), event))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetVoiceChannelHours(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"channel_id", "total_seconds", "approx_seconds"}).
		AddRow("301", int64(7200), int64(600)).
		AddRow("302", int64(60), int64(0))
	mock.ExpectQuery("SELECT channel_id, (.+) FROM voice_sessions WHERE guild_id = \\$1 AND user_id = \\$2 AND has_left = \\$3 GROUP BY channel_id ORDER BY total_seconds DESC").
		WithArgs("100", "200", true).
		WillReturnRows(rows)

	hours, err := repo.GetVoiceChannelHours(context.Background(), "200", "100")
	require.NoError(t, err)
	require.Len(t, hours, 2)
	assert.Equal(t, models.VoiceChannelHours{UserID: "200", GuildID: "100", ChannelID: "301", TotalSeconds: 7200, ApproxSeconds: 600}, hours[0])
	assert.Equal(t, int64(60), hours[1].TotalSeconds)
}

func TestGetVoiceLeaderboard(t *testing.T) {
	repo, mock := newMockRepository(t)

	rows := sqlmock.NewRows([]string{"user_id", "total_seconds", "approx_seconds"}).
		AddRow("200", int64(3600), int64(0))
	mock.ExpectQuery("SELECT user_id, (.+) FROM voice_sessions WHERE guild_id = \\$1 AND has_left = \\$2 GROUP BY user_id ORDER BY total_seconds DESC LIMIT 25").
		WithArgs("100", true).
		WillReturnRows(rows)

	board, err := repo.GetVoiceLeaderboard(context.Background(), "100", 25)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, "200", board[0].UserID)
	assert.Equal(t, int64(3600), board[0].TotalSeconds)
}

func TestGetVoiceLeaderboardFailure(t *testing.T) {
	repo, mock := newMockRepository(t)
	dbErr := errors.New("connection refused")

	mock.ExpectQuery("SELECT user_id").WillReturnError(dbErr)

	_, err := repo.GetVoiceLeaderboard(context.Background(), "100", 25)
	assert.ErrorIs(t, err, dbErr)
}

func TestGetChannelMessageLeaderboard(t *testing.T) {
	repo, mock := newMockRepository(t)
	since := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"user_id", "messages"}).
		AddRow("200", int64(42)).
		AddRow("201", int64(7))
	mock.ExpectQuery("SELECT user_id, COUNT\\(\\*\\) AS messages FROM message_events WHERE guild_id = \\$1 AND channel_id = \\$2 AND created_at >= \\$3 GROUP BY user_id ORDER BY messages DESC LIMIT 25").
		WithArgs("100", "400", since).
		WillReturnRows(rows)

	counts, err := repo.GetChannelMessageLeaderboard(context.Background(), "100", "400", since, 25)
	require.NoError(t, err)
	assert.Equal(t, []models.MessageCount{{UserID: "200", Messages: 42}, {UserID: "201", Messages: 7}}, counts)
}
