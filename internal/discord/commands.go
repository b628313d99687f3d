package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"voicestats/pkg/utils"
)

const (
	leaderboardSize = 25
	maxMessageLen   = 2000
)

// handleCommand runs a prefixed command and reports whether one matched.
func (b *Bot) handleCommand(ctx context.Context, sender messageSender, m *discordgo.Message) bool {
	content := strings.TrimSpace(m.Content)
	if !strings.HasPrefix(content, b.prefix) {
		return false
	}
	args := strings.Fields(strings.TrimPrefix(content, b.prefix))
	if len(args) == 0 {
		return false
	}

	var reply string
	switch strings.ToLower(args[0]) {
	case "voice":
		reply = b.voiceCommand(ctx, m, args[1:])
	case "leaderboard":
		reply = b.leaderboardCommand(ctx, m)
	case "channel-leaderboard":
		reply = b.channelLeaderboardCommand(ctx, m)
	default:
		return false
	}

	if _, err := sender.ChannelMessageSend(m.ChannelID, utils.TruncateString(reply, maxMessageLen)); err != nil {
		b.logger.Error("error sending reply",
			slog.String("command", args[0]),
			slog.String("channel", m.ChannelID),
			slog.Any("err", err))
	}
	return true
}

// approximateNote flags totals that include time closed by reconciliation.
func approximateNote(approxSeconds int64) string {
	if approxSeconds <= 0 {
		return ""
	}
	return fmt.Sprintf(" (~%s estimated)", utils.FormatDuration(approxSeconds))
}

func (b *Bot) voiceCommand(ctx context.Context, m *discordgo.Message, args []string) string {
	userID, name := m.Author.ID, m.Author.Username
	if len(args) > 0 && utils.IsUserMention(args[0]) {
		userID = utils.ExtractUserIDFromMention(args[0])
		name = utils.FormatUserMention(userID)
	}

	channelHours, err := b.repository.GetVoiceChannelHours(ctx, userID, m.GuildID)
	if err != nil {
		b.logger.Error("error getting voice channel hours", slog.String("user", userID), slog.Any("err", err))
		return "Something went wrong while loading voice time."
	}

	var lines []string
	var total, approx int64
	for _, ch := range channelHours {
		total += ch.TotalSeconds
		approx += ch.ApproxSeconds
		lines = append(lines, fmt.Sprintf("%s: %s%s",
			utils.FormatChannelMention(ch.ChannelID), utils.FormatDuration(ch.TotalSeconds), approximateNote(ch.ApproxSeconds)))
	}
	if len(lines) == 0 {
		lines = append(lines, "(no voice time yet)")
	}

	return fmt.Sprintf("🔊 %s, voice per channel:\n%s\nTotal: %s%s",
		name, strings.Join(lines, "\n"), utils.FormatDuration(total), approximateNote(approx))
}

func (b *Bot) leaderboardCommand(ctx context.Context, m *discordgo.Message) string {
	board, err := b.repository.GetVoiceLeaderboard(ctx, m.GuildID, leaderboardSize)
	if err != nil {
		b.logger.Error("error getting voice leaderboard", slog.String("guild", m.GuildID), slog.Any("err", err))
		return "Something went wrong while loading the leaderboard."
	}
	if len(board) == 0 {
		return "🏆 No voice time recorded in this server yet."
	}

	lines := []string{"🏆 Voice leaderboard"}
	for i, entry := range board {
		duration := utils.FormatDuration(entry.TotalSeconds) + approximateNote(entry.ApproxSeconds)
		lines = append(lines, utils.FormatLeaderboardEntry(i+1, utils.FormatUserMention(entry.UserID), duration))
	}
	return strings.Join(lines, "\n")
}

func (b *Bot) channelLeaderboardCommand(ctx context.Context, m *discordgo.Message) string {
	now := b.now().UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	counts, err := b.repository.GetChannelMessageLeaderboard(ctx, m.GuildID, m.ChannelID, monthStart, leaderboardSize)
	if err != nil {
		b.logger.Error("error getting message leaderboard", slog.String("channel", m.ChannelID), slog.Any("err", err))
		return "Something went wrong while loading the leaderboard."
	}

	channel := utils.FormatChannelMention(m.ChannelID)
	if len(counts) == 0 {
		return fmt.Sprintf("💬 No messages in %s this month.", channel)
	}

	lines := []string{fmt.Sprintf("💬 Top posters in %s (%s)", channel, monthStart.Format("January 2006"))}
	for i, c := range counts {
		lines = append(lines, utils.FormatLeaderboardEntry(i+1, utils.FormatUserMention(c.UserID), fmt.Sprintf("%d messages", c.Messages)))
	}
	return strings.Join(lines, "\n")
}
