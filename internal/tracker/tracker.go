package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"voicestats/internal/models"
	"voicestats/internal/telemetry"
)

// Outcome is the effect an open or close had.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeFiltered
	OutcomeOpened
	OutcomeDuplicate
	OutcomeClosed
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFiltered:
		return "filtered"
	case OutcomeOpened:
		return "opened"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeClosed:
		return "closed"
	case OutcomeNotFound:
		return "not_found"
	default:
		return "failed"
	}
}

const defaultStoreTimeout = 5 * time.Second

// Tracker opens and closes voice sessions.
type Tracker struct {
	store    Store
	presence Presence
	index    *OpenIndex
	timeout  time.Duration
	now      func() time.Time
	base     *slog.Logger
	logger   *slog.Logger

	mu            sync.RWMutex
	onDiscrepancy func()
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithStoreTimeout bounds every store call.
func WithStoreTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// New creates a tracker with an empty open index.
func New(store Store, presence Presence, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		presence: presence,
		index:    NewOpenIndex(),
		timeout:  defaultStoreTimeout,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.base = t.logger
	t.logger = t.base.With(slog.String("component", "tracker"))
	return t
}

// SetDiscrepancyHandler registers fn to run when the tracker finds its cached
// view disagreeing with the store.
func (t *Tracker) SetDiscrepancyHandler(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDiscrepancy = fn
}

func (t *Tracker) discrepancy() {
	t.mu.RLock()
	fn := t.onDiscrepancy
	t.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// IndexLen returns the number of sessions this process has open in its index.
func (t *Tracker) IndexLen() int {
	return t.index.Len()
}

// clock returns the current time in UTC truncated to milliseconds, so that
// durations computed from stored timestamps are exact.
func (t *Tracker) clock() time.Time {
	return t.now().UTC().Truncate(time.Millisecond)
}

func (t *Tracker) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, t.timeout)
}

func (t *Tracker) filtered(reason, guildID, userID, channelID string) (Outcome, error) {
	telemetry.IncFiltered(reason)
	t.logger.Debug("session open skipped",
		slog.String("reason", reason),
		slog.String("guild", guildID),
		slog.String("user", userID),
		slog.String("channel", channelID))
	return OutcomeFiltered, nil
}

// Open starts a session for the user in channelID unless the channel is empty,
// the guild is unknown, the channel is the guild's AFK channel or the user is
// deafened.
func (t *Tracker) Open(ctx context.Context, guildID, userID, channelID string, approximate bool) (Outcome, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "tracker.open", guildID, userID, channelID, approximate)
	outcome, err := t.open(ctx, guildID, userID, channelID, approximate)
	telemetry.EndSessionSpan(span, outcome.String(), err)
	return outcome, err
}

func (t *Tracker) open(ctx context.Context, guildID, userID, channelID string, approximate bool) (Outcome, error) {
	if channelID == "" {
		return t.filtered("no_channel", guildID, userID, channelID)
	}
	afk, known := t.presence.AFKChannel(guildID)
	if !known {
		return t.filtered("unknown_guild", guildID, userID, channelID)
	}
	if channelID == afk {
		return t.filtered("afk", guildID, userID, channelID)
	}
	if vs, ok := t.presence.VoiceState(guildID, userID); ok && vs.Deafened() {
		return t.filtered("deafened", guildID, userID, channelID)
	}

	key := models.SessionKey{GuildID: guildID, UserID: userID, ChannelID: channelID}
	if t.index.Has(key) {
		telemetry.IncDuplicate()
		return OutcomeDuplicate, nil
	}

	session := &models.VoiceSession{
		ID:          uuid.NewString(),
		GuildID:     guildID,
		UserID:      userID,
		ChannelID:   channelID,
		StartedAt:   t.clock(),
		Approximate: approximate,
	}

	sctx, cancel := t.storeContext(ctx)
	defer cancel()
	if err := t.store.Create(sctx, session); err != nil {
		if errors.Is(err, models.ErrDuplicateOpen) {
			telemetry.IncDuplicate()
			t.logger.Debug("session already open",
				slog.String("guild", guildID),
				slog.String("user", userID),
				slog.String("channel", channelID))
			return OutcomeDuplicate, nil
		}
		telemetry.IncStoreFailure("create")
		return OutcomeFailed, fmt.Errorf("creating voice session: %w", err)
	}

	telemetry.SetOpenIndexSize(t.index.Put(session))
	telemetry.IncOpened(approximate)
	t.logger.Debug("session opened",
		slog.String("id", session.ID),
		slog.String("guild", guildID),
		slog.String("user", userID),
		slog.String("channel", channelID),
		slog.Bool("approximate", approximate))
	return OutcomeOpened, nil
}

// Close ends the user's open session in channelID. Closing a session that is
// not open reports OutcomeNotFound and is not an error.
func (t *Tracker) Close(ctx context.Context, guildID, userID, channelID string, approximate bool) (Outcome, error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "tracker.close", guildID, userID, channelID, approximate)
	outcome, err := t.closeLive(ctx, guildID, userID, channelID, approximate)
	telemetry.EndSessionSpan(span, outcome.String(), err)
	return outcome, err
}

func (t *Tracker) closeLive(ctx context.Context, guildID, userID, channelID string, approximate bool) (Outcome, error) {
	afk, known := t.presence.AFKChannel(guildID)
	if !known {
		t.logger.Info("session close skipped, guild unknown",
			slog.String("guild", guildID),
			slog.String("user", userID))
		return OutcomeFiltered, nil
	}
	if channelID == "" || channelID == afk {
		return OutcomeFiltered, nil
	}

	sctx, cancel := t.storeContext(ctx)
	defer cancel()

	key := models.SessionKey{GuildID: guildID, UserID: userID, ChannelID: channelID}
	target, size, cached := t.index.Take(key)
	telemetry.SetOpenIndexSize(size)
	if !cached {
		var err error
		target, err = t.store.FindOpen(sctx, guildID, userID, channelID)
		if err != nil {
			telemetry.IncStoreFailure("find_open")
			return OutcomeFailed, fmt.Errorf("finding open voice session: %w", err)
		}
		if target == nil {
			telemetry.IncNotFound()
			t.logger.Info("no open session to close",
				slog.String("guild", guildID),
				slog.String("user", userID),
				slog.String("channel", channelID))
			return OutcomeNotFound, nil
		}
	}

	return t.finish(sctx, target, cached, approximate)
}

// closeRecord closes a persisted open session without the live-event policy
// checks, so a record whose channel has since become the AFK channel still
// gets closed.
func (t *Tracker) closeRecord(ctx context.Context, session *models.VoiceSession, approximate bool) (outcome Outcome, err error) {
	ctx, span := telemetry.StartSessionSpan(ctx, "tracker.close_record",
		session.GuildID, session.UserID, session.ChannelID, approximate)
	defer func() { telemetry.EndSessionSpan(span, outcome.String(), err) }()

	sctx, cancel := t.storeContext(ctx)
	defer cancel()

	target, size, cached := t.index.Take(session.Key())
	telemetry.SetOpenIndexSize(size)
	if cached && target.ID != session.ID {
		telemetry.SetOpenIndexSize(t.index.Put(target))
		cached = false
	}
	if !cached {
		target = session
	}
	return t.finish(sctx, target, cached, approximate)
}

// finish writes the close fields for target. The approximate flag is the
// caller's; the start's own flag is not carried over.
func (t *Tracker) finish(ctx context.Context, target *models.VoiceSession, cached, approximate bool) (Outcome, error) {
	endedAt := t.clock()
	if endedAt.Before(target.StartedAt) {
		endedAt = target.StartedAt
	}
	fields := models.SessionClose{
		EndedAt:     endedAt,
		DurationMs:  endedAt.Sub(target.StartedAt).Milliseconds(),
		Approximate: approximate,
	}
	if err := t.store.Update(ctx, target.ID, fields); err != nil {
		if errors.Is(err, models.ErrSessionClosed) {
			telemetry.IncNotFound()
			t.logger.Info("session already closed",
				slog.String("id", target.ID),
				slog.Bool("cached", cached))
			if cached {
				t.discrepancy()
			}
			return OutcomeNotFound, nil
		}
		telemetry.IncStoreFailure("update")
		return OutcomeFailed, fmt.Errorf("closing voice session %s: %w", target.ID, err)
	}

	telemetry.IncClosed(fields.Approximate)
	t.logger.Debug("session closed",
		slog.String("id", target.ID),
		slog.String("guild", target.GuildID),
		slog.String("user", target.UserID),
		slog.String("channel", target.ChannelID),
		slog.Int64("duration_ms", fields.DurationMs),
		slog.Bool("approximate", fields.Approximate))
	return OutcomeClosed, nil
}
