package discord

import (
	"github.com/bwmarrin/discordgo"

	"voicestats/internal/tracker"
)

// statePresence answers presence queries from the gateway state cache.
type statePresence struct {
	state *discordgo.State
}

// NewPresence wraps a discordgo state cache.
func NewPresence(state *discordgo.State) tracker.Presence {
	return &statePresence{state: state}
}

// AFKChannel reports unavailable guilds (listed in Ready but not yet streamed
// in) as unknown.
func (p *statePresence) AFKChannel(guildID string) (string, bool) {
	g, err := p.state.Guild(guildID)
	if err != nil {
		return "", false
	}
	p.state.RLock()
	defer p.state.RUnlock()
	if g.Unavailable {
		return "", false
	}
	return g.AfkChannelID, true
}

func (p *statePresence) VoiceState(guildID, userID string) (tracker.VoiceState, bool) {
	vs, err := p.state.VoiceState(guildID, userID)
	if err != nil {
		return tracker.VoiceState{}, false
	}
	p.state.RLock()
	defer p.state.RUnlock()
	if vs.ChannelID == "" {
		return tracker.VoiceState{}, false
	}
	return tracker.VoiceState{ChannelID: vs.ChannelID, Deaf: vs.Deaf, SelfDeaf: vs.SelfDeaf}, true
}
