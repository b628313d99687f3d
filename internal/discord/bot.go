package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"voicestats/internal/analytics"
	"voicestats/internal/models"
	"voicestats/internal/tracker"
)

const requestTimeout = 10 * time.Second

// Repository is the statistics storage the bot reads and writes.
type Repository interface {
	RecordMessage(ctx context.Context, event models.MessageEvent) error
	GetVoiceChannelHours(ctx context.Context, userID, guildID string) ([]models.VoiceChannelHours, error)
	GetVoiceLeaderboard(ctx context.Context, guildID string, limit int) ([]models.VoiceHours, error)
	GetChannelMessageLeaderboard(ctx context.Context, guildID, channelID string, since time.Time, limit int) ([]models.MessageCount, error)
}

// Dispatcher accepts voice transitions for ordered processing.
type Dispatcher interface {
	Dispatch(tr tracker.Transition) bool
}

// Minimal session interface for sending channel messages.
type messageSender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Options configures the bot.
type Options struct {
	Token               string
	CommandPrefix       string
	StartupSweepTimeout time.Duration
	Logger              *slog.Logger
}

// Bot represents the Discord bot
type Bot struct {
	session    *discordgo.Session
	repository Repository
	analytics  *analytics.Client
	dispatcher Dispatcher
	gate       *startupGate
	prefix     string
	timeout    time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// New creates a new Discord bot. Voice transitions are dropped until Start
// supplies a dispatcher.
func New(opts Options, repository Repository, ga *analytics.Client) (*Bot, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildBans

	bot := newBot(opts, repository, ga)
	bot.session = session

	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onGuildCreate)
	session.AddHandler(bot.onVoiceStateUpdate)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onMessageUpdate)
	session.AddHandler(bot.onGuildMemberAdd)
	session.AddHandler(bot.onGuildMemberRemove)
	session.AddHandler(bot.onGuildBanAdd)

	return bot, nil
}

func newBot(opts Options, repository Repository, ga *analytics.Client) *Bot {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "discord"))
	prefix := opts.CommandPrefix
	if prefix == "" {
		prefix = "!"
	}
	b := &Bot{
		repository: repository,
		analytics:  ga,
		prefix:     prefix,
		timeout:    requestTimeout,
		now:        time.Now,
		logger:     logger,
	}
	b.gate = newStartupGate(opts.StartupSweepTimeout, nil, logger)
	return b
}

// Presence exposes the session's state cache to the tracker.
func (b *Bot) Presence() tracker.Presence {
	return NewPresence(b.session.State)
}

// Start wires the dispatcher, then opens the gateway connection. onGuildsReady
// runs after each Ready once guild state has loaded.
func (b *Bot) Start(dispatcher Dispatcher, onGuildsReady func()) error {
	b.dispatcher = dispatcher
	b.gate.fire = onGuildsReady

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.logger.Info("bot is running")
	return nil
}

// Stop stops the bot
func (b *Bot) Stop() error {
	b.gate.stop()
	return b.session.Close()
}
