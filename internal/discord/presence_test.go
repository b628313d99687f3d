package discord

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicestats/internal/tracker"
)

func newTestState(t *testing.T) *discordgo.State {
	t.Helper()
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{
		ID:           "100",
		AfkChannelID: "199",
		VoiceStates: []*discordgo.VoiceState{
			{GuildID: "100", UserID: "200", ChannelID: "301"},
			{GuildID: "100", UserID: "201", ChannelID: "302", SelfDeaf: true},
		},
	}))
	require.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "101", Unavailable: true}))
	return state
}

func TestPresenceAFKChannel(t *testing.T) {
	p := NewPresence(newTestState(t))

	afk, ok := p.AFKChannel("100")
	assert.True(t, ok)
	assert.Equal(t, "199", afk)

	_, ok = p.AFKChannel("101")
	assert.False(t, ok, "unavailable guild")

	_, ok = p.AFKChannel("999")
	assert.False(t, ok)
}

func TestPresenceVoiceState(t *testing.T) {
	p := NewPresence(newTestState(t))

	vs, ok := p.VoiceState("100", "200")
	require.True(t, ok)
	assert.Equal(t, tracker.VoiceState{ChannelID: "301"}, vs)

	vs, ok = p.VoiceState("100", "201")
	require.True(t, ok)
	assert.True(t, vs.Deafened())

	_, ok = p.VoiceState("100", "202")
	assert.False(t, ok)

	_, ok = p.VoiceState("999", "200")
	assert.False(t, ok)
}

func TestPresenceFollowsStateUpdates(t *testing.T) {
	state := newTestState(t)
	se := &discordgo.Session{StateEnabled: true}
	p := NewPresence(state)

	update := &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "100", UserID: "200", ChannelID: "303"}}
	require.NoError(t, state.OnInterface(se, update))

	vs, ok := p.VoiceState("100", "200")
	require.True(t, ok)
	assert.Equal(t, "303", vs.ChannelID)

	tr := transitionFromUpdate(update)
	assert.Equal(t, tracker.KindSwitch, tr.Kind())
	assert.Equal(t, "301", tr.OldChannelID)
	assert.Equal(t, "303", tr.NewChannelID)

	leave := &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{GuildID: "100", UserID: "200"}}
	require.NoError(t, state.OnInterface(se, leave))

	_, ok = p.VoiceState("100", "200")
	assert.False(t, ok)
	assert.Equal(t, tracker.KindLeave, transitionFromUpdate(leave).Kind())
}
