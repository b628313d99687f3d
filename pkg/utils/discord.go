package utils

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// FormatUserMention formats a user ID as a Discord mention
func FormatUserMention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

// ExtractUserIDFromMention extracts the user ID from <@id> or <@!id>
func ExtractUserIDFromMention(mention string) string {
	userID := strings.TrimPrefix(mention, "<@")
	userID = strings.TrimSuffix(userID, ">")
	return strings.TrimPrefix(userID, "!")
}

// IsUserMention checks if a string is a user mention. Role mentions (<@&id>)
// are not.
func IsUserMention(text string) bool {
	if !strings.HasPrefix(text, "<@") || !strings.HasSuffix(text, ">") {
		return false
	}
	id := ExtractUserIDFromMention(text)
	if id == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatLeaderboardEntry formats a leaderboard line with a medal for the top three
func FormatLeaderboardEntry(rank int, userMention, value string) string {
	var medal string
	switch rank {
	case 1:
		medal = "🥇"
	case 2:
		medal = "🥈"
	case 3:
		medal = "🥉"
	default:
		medal = fmt.Sprintf("%d.", rank)
	}
	return fmt.Sprintf("%s %s - %s", medal, userMention, value)
}

// FormatChannelMention formats a channel ID as a Discord channel mention
func FormatChannelMention(channelID string) string {
	return fmt.Sprintf("<#%s>", channelID)
}

// TruncateString shortens s to at most maxLen runes, ending with "..."
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string([]rune(s)[:maxLen])
	}
	return string([]rune(s)[:maxLen-3]) + "..."
}
