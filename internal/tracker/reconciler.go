package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"voicestats/internal/models"
	"voicestats/internal/telemetry"
)

// ErrSweepInProgress is returned by Sweep when another sweep is still running.
var ErrSweepInProgress = errors.New("reconciliation sweep already running")

type sweepAction string

const (
	actionUntouched sweepAction = "untouched"
	actionClosed    sweepAction = "closed"
	actionMoved     sweepAction = "moved"
	actionOrphaned  sweepAction = "orphaned"
	actionPruned    sweepAction = "pruned"
	actionSkipped   sweepAction = "skipped"
	actionFailed    sweepAction = "failed"
)

// SweepReport counts what a sweep did with each open session.
type SweepReport struct {
	Examined  int
	Untouched int
	Closed    int
	Moved     int
	Orphaned  int
	Pruned    int
	Skipped   int
	Failed    int
}

func (r *SweepReport) add(a sweepAction) {
	r.Examined++
	switch a {
	case actionUntouched:
		r.Untouched++
	case actionClosed:
		r.Closed++
	case actionMoved:
		r.Moved++
	case actionOrphaned:
		r.Orphaned++
	case actionPruned:
		r.Pruned++
	case actionSkipped:
		r.Skipped++
	case actionFailed:
		r.Failed++
	}
}

// ReconcilerConfig configures periodic sweeps.
type ReconcilerConfig struct {
	// Interval between periodic sweeps; zero disables the ticker.
	Interval time.Duration
	// Concurrency bounds how many sessions are reconciled at once.
	Concurrency int
	// PruneOrphans deletes open sessions whose guild is no longer known.
	PruneOrphans bool
}

// Reconciler force-closes persisted open sessions that no longer match live
// presence. Sweeps never overlap.
type Reconciler struct {
	tracker     *Tracker
	interval    time.Duration
	concurrency int
	prune       bool
	logger      *slog.Logger

	running  atomic.Bool
	mu       sync.Mutex
	stopped  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewReconciler(t *Tracker, cfg ReconcilerConfig) *Reconciler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Reconciler{
		tracker:     t,
		interval:    cfg.Interval,
		concurrency: cfg.Concurrency,
		prune:       cfg.PruneOrphans,
		logger:      t.base.With(slog.String("component", "reconciler")),
		stopChan:    make(chan struct{}),
	}
}

// Start runs periodic sweeps until ctx is done or Stop is called.
func (r *Reconciler) Start(ctx context.Context) {
	if r.interval <= 0 {
		r.logger.Info("periodic reconciliation disabled")
		return
	}
	if !r.acquire() {
		return
	}
	go r.loop(ctx)
}

// Stop ends periodic sweeps and waits for running sweeps to return.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.stopChan)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// acquire registers a background goroutine unless the reconciler is stopped.
func (r *Reconciler) acquire() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.wg.Add(1)
	return true
}

func (r *Reconciler) loop(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.run(ctx, "periodic")
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Trigger starts a sweep in the background. It is a no-op while another sweep
// is running or after Stop.
func (r *Reconciler) Trigger(ctx context.Context, reason string) {
	if !r.acquire() {
		return
	}
	go func() {
		defer r.wg.Done()
		r.run(ctx, reason)
	}()
}

func (r *Reconciler) run(ctx context.Context, reason string) {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.stopChan:
			cancel()
		case <-sctx.Done():
		}
	}()

	report, err := r.sweepFor(sctx, reason)
	if errors.Is(err, ErrSweepInProgress) {
		r.logger.Debug("sweep skipped, already running", slog.String("reason", reason))
		return
	}
	attrs := []any{
		slog.String("reason", reason),
		slog.Int("examined", report.Examined),
		slog.Int("untouched", report.Untouched),
		slog.Int("closed", report.Closed),
		slog.Int("moved", report.Moved),
		slog.Int("orphaned", report.Orphaned),
		slog.Int("pruned", report.Pruned),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
	}
	if err != nil {
		r.logger.Error("reconciliation sweep ended early", append(attrs, slog.Any("err", err))...)
		return
	}
	r.logger.Info("reconciliation sweep complete", attrs...)
}

// Sweep compares every open session against live presence. A failing bulk
// query aborts the sweep; per-session failures are logged and counted.
func (r *Reconciler) Sweep(ctx context.Context) (SweepReport, error) {
	return r.sweepFor(ctx, "manual")
}

func (r *Reconciler) sweepFor(ctx context.Context, reason string) (SweepReport, error) {
	var report SweepReport
	if !r.running.CompareAndSwap(false, true) {
		telemetry.IncSweep("skipped")
		return report, ErrSweepInProgress
	}
	defer r.running.Store(false)

	ctx, span := telemetry.StartSpan(ctx, "reconciler.sweep", telemetry.AttrSweepReason.String(reason))
	defer span.End()

	var err error
	telemetry.TimeFunc(telemetry.SweepDuration, func() {
		report, err = r.sweep(ctx)
	})
	span.SetAttributes(
		attribute.Int("sessions.examined", report.Examined),
		attribute.Int("sessions.closed", report.Closed),
		attribute.Int("sessions.moved", report.Moved),
		attribute.Int("sessions.skipped", report.Skipped),
		attribute.Int("sessions.failed", report.Failed),
	)
	telemetry.RecordError(span, err)
	return report, err
}

func (r *Reconciler) sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	qctx, cancel := r.tracker.storeContext(ctx)
	sessions, err := r.tracker.store.FindAllOpen(qctx)
	cancel()
	if err != nil {
		telemetry.IncStoreFailure("find_all_open")
		telemetry.IncSweep("aborted")
		return report, fmt.Errorf("loading open voice sessions: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			action := r.reconcile(ctx, session)
			telemetry.AddSweepSessions(string(action), 1)
			mu.Lock()
			report.add(action)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		telemetry.IncSweep("aborted")
		return report, fmt.Errorf("sweep cancelled: %w", err)
	}
	telemetry.IncSweep("ok")
	return report, nil
}

func (r *Reconciler) reconcile(ctx context.Context, s *models.VoiceSession) sweepAction {
	if s == nil {
		return actionFailed
	}
	log := r.logger.With(
		slog.String("id", s.ID),
		slog.String("guild", s.GuildID),
		slog.String("user", s.UserID),
		slog.String("channel", s.ChannelID))

	presence := r.tracker.presence
	if _, known := presence.AFKChannel(s.GuildID); !known {
		if !r.prune {
			log.Debug("open session for unknown guild left in place")
			return actionOrphaned
		}
		dctx, cancel := r.tracker.storeContext(ctx)
		defer cancel()
		if err := r.tracker.store.Delete(dctx, s.ID); err != nil {
			telemetry.IncStoreFailure("delete")
			log.Error("failed to prune orphaned session", slog.Any("err", err))
			return actionFailed
		}
		log.Info("pruned open session for unknown guild")
		return actionPruned
	}

	vs, present := presence.VoiceState(s.GuildID, s.UserID)
	switch {
	case !present:
		log.Info("user no longer in voice, closing session approximately")
		return r.closeApprox(ctx, log, s)
	case vs.ChannelID != s.ChannelID:
		log.Info("user in a different voice channel, moving session approximately", slog.String("live_channel", vs.ChannelID))
		if action := r.closeApprox(ctx, log, s); action != actionClosed {
			return action
		}
		outcome, err := r.tracker.Open(ctx, s.GuildID, s.UserID, vs.ChannelID, true)
		if err != nil {
			log.Error("failed to open session for live channel", slog.String("live_channel", vs.ChannelID), slog.Any("err", err))
			return actionFailed
		}
		if outcome == OutcomeFiltered {
			// The live channel is not tracked (AFK or deafened).
			return actionClosed
		}
		return actionMoved
	case vs.Deafened():
		log.Info("user deafened, closing session approximately")
		return r.closeApprox(ctx, log, s)
	default:
		return actionUntouched
	}
}

func (r *Reconciler) closeApprox(ctx context.Context, log *slog.Logger, s *models.VoiceSession) sweepAction {
	outcome, err := r.tracker.closeRecord(ctx, s, true)
	if err != nil {
		log.Error("failed to close stale session", slog.Any("err", err))
		return actionFailed
	}
	if outcome != OutcomeClosed {
		log.Info("stale session not closed", slog.String("outcome", outcome.String()))
		return actionSkipped
	}
	return actionClosed
}
