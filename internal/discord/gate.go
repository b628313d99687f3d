package discord

import (
	"log/slog"
	"sync"
	"time"
)

// startupGate fires once every guild listed in Ready has arrived through
// GuildCreate, or when the timeout passes, whichever comes first. A new Ready
// re-arms it.
type startupGate struct {
	timeout time.Duration
	fire    func()
	logger  *slog.Logger

	mu      sync.Mutex
	pending map[string]struct{}
	armed   bool
	timer   *time.Timer
}

func newStartupGate(timeout time.Duration, fire func(), logger *slog.Logger) *startupGate {
	return &startupGate{
		timeout: timeout,
		fire:    fire,
		logger:  logger,
		pending: make(map[string]struct{}),
	}
}

func (g *startupGate) ready(guildIDs []string) {
	g.mu.Lock()
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.pending = make(map[string]struct{}, len(guildIDs))
	for _, id := range guildIDs {
		g.pending[id] = struct{}{}
	}
	g.armed = true
	if len(g.pending) > 0 {
		g.timer = time.AfterFunc(g.timeout, func() { g.open("timeout") })
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()
	g.open("no guilds")
}

func (g *startupGate) guildAvailable(guildID string) {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return
	}
	delete(g.pending, guildID)
	done := len(g.pending) == 0
	g.mu.Unlock()
	if done {
		g.open("all guilds available")
	}
}

func (g *startupGate) open(reason string) {
	g.mu.Lock()
	if !g.armed {
		g.mu.Unlock()
		return
	}
	g.armed = false
	missing := len(g.pending)
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.mu.Unlock()

	g.logger.Info("guild state loaded", slog.String("reason", reason), slog.Int("missing_guilds", missing))
	if g.fire != nil {
		g.fire()
	}
}

func (g *startupGate) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.armed = false
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
}
