package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"voicestats/internal/analytics"
	"voicestats/internal/models"
	"voicestats/internal/tracker"
)

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	ids := make([]string, 0, len(event.Guilds))
	for _, g := range event.Guilds {
		ids = append(ids, g.ID)
	}
	name := ""
	if event.User != nil {
		name = event.User.Username
	}
	b.logger.Info("connected", slog.String("bot", name), slog.Int("guilds", len(ids)))
	b.gate.ready(ids)
}

func (b *Bot) onGuildCreate(s *discordgo.Session, event *discordgo.GuildCreate) {
	if event.Guild == nil {
		return
	}
	b.logger.Debug("guild available", slog.String("guild", event.ID), slog.String("name", event.Name))
	b.gate.guildAvailable(event.ID)
}

// transitionFromUpdate builds a transition from a voice state update. The
// state cache fills BeforeUpdate with the previous voice state, if any.
func transitionFromUpdate(vs *discordgo.VoiceStateUpdate) tracker.Transition {
	var tr tracker.Transition
	if vs.VoiceState != nil {
		tr = tracker.Transition{
			GuildID:      vs.GuildID,
			UserID:       vs.UserID,
			NewChannelID: vs.ChannelID,
			Deaf:         vs.Deaf,
			SelfDeaf:     vs.SelfDeaf,
		}
	}
	if vs.BeforeUpdate != nil {
		tr.OldChannelID = vs.BeforeUpdate.ChannelID
		if tr.GuildID == "" {
			tr.GuildID = vs.BeforeUpdate.GuildID
			tr.UserID = vs.BeforeUpdate.UserID
		}
	}
	return tr
}

func voiceEvents(tr tracker.Transition) []analytics.Event {
	event := func(action string) analytics.Event {
		return analytics.Event{Action: action, GuildID: tr.GuildID, UserID: tr.UserID}
	}
	switch tr.Kind() {
	case tracker.KindJoin:
		return []analytics.Event{event(analytics.ActionVoiceJoin)}
	case tracker.KindLeave:
		return []analytics.Event{event(analytics.ActionVoiceLeave)}
	case tracker.KindSwitch:
		return []analytics.Event{
			event(analytics.ActionVoiceSwitch),
			event(analytics.ActionVoiceLeave),
			event(analytics.ActionVoiceJoin),
		}
	default:
		return nil
	}
}

func (b *Bot) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	tr := transitionFromUpdate(vs)
	kind := tr.Kind()
	if kind == tracker.KindNone || tr.GuildID == "" || tr.UserID == "" {
		return
	}

	b.logger.Debug("voice transition",
		slog.String("kind", kind.String()),
		slog.String("guild", tr.GuildID),
		slog.String("user", tr.UserID),
		slog.String("from", tr.OldChannelID),
		slog.String("to", tr.NewChannelID))

	if b.dispatcher == nil || !b.dispatcher.Dispatch(tr) {
		b.logger.Warn("voice transition dropped",
			slog.String("guild", tr.GuildID),
			slog.String("user", tr.UserID))
	}
	b.analytics.Track(voiceEvents(tr)...)
}

func (b *Bot) recordMessage(m *discordgo.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	event := models.MessageEvent{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		UserID:    m.Author.ID,
		MessageID: m.ID,
		CreatedAt: m.Timestamp.UTC(),
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = b.now().UTC()
	}
	if err := b.repository.RecordMessage(ctx, event); err != nil {
		b.logger.Error("error recording message",
			slog.String("guild", m.GuildID),
			slog.String("message", m.ID),
			slog.Any("err", err))
	}
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(s, m.Message)
}

func (b *Bot) handleMessage(sender messageSender, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.GuildID == "" {
		return
	}
	if m.Author.Bot {
		return
	}

	b.recordMessage(m)
	b.analytics.Track(analytics.Event{
		Action:     analytics.ActionMessageReceive,
		GuildID:    m.GuildID,
		UserID:     m.Author.ID,
		Dimensions: []string{m.GuildID, m.ChannelID, m.Author.ID},
	})

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	b.handleCommand(ctx, sender, m)
}

// onMessageUpdate counts edits of messages sent before the bot started;
// messages already recorded are ignored by the store.
func (b *Bot) onMessageUpdate(s *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil || m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	b.recordMessage(m.Message)
}

func (b *Bot) trackMember(action, guildID string, user *discordgo.User) {
	if user == nil {
		return
	}
	b.analytics.Track(analytics.Event{Action: action, GuildID: guildID, UserID: user.ID})
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member != nil {
		b.trackMember(analytics.ActionUserJoined, m.GuildID, m.User)
	}
}

func (b *Bot) onGuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member != nil {
		b.trackMember(analytics.ActionUserLeft, m.GuildID, m.User)
	}
}

func (b *Bot) onGuildBanAdd(s *discordgo.Session, m *discordgo.GuildBanAdd) {
	b.trackMember(analytics.ActionUserBanned, m.GuildID, m.User)
}
