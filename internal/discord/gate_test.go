package discord

import (
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestGate(timeout time.Duration) (*startupGate, *atomic.Int32) {
	var fired atomic.Int32
	g := newStartupGate(timeout, func() { fired.Add(1) }, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return g, &fired
}

func TestGateOpensWhenAllGuildsArrive(t *testing.T) {
	g, fired := newTestGate(time.Hour)

	g.ready([]string{"100", "101"})
	g.guildAvailable("100")
	assert.Equal(t, int32(0), fired.Load())

	g.guildAvailable("101")
	assert.Equal(t, int32(1), fired.Load())

	g.guildAvailable("102")
	assert.Equal(t, int32(1), fired.Load(), "fires once per ready")
}

func TestGateOpensOnTimeout(t *testing.T) {
	g, fired := newTestGate(20 * time.Millisecond)

	g.ready([]string{"100"})
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)

	g.guildAvailable("100")
	assert.Equal(t, int32(1), fired.Load())
}

func TestGateWithoutGuilds(t *testing.T) {
	g, fired := newTestGate(time.Hour)
	g.ready(nil)
	assert.Equal(t, int32(1), fired.Load())
}

func TestGateRearmsOnReady(t *testing.T) {
	g, fired := newTestGate(time.Hour)

	g.ready([]string{"100"})
	g.guildAvailable("100")
	g.ready([]string{"100"})
	g.guildAvailable("100")

	assert.Equal(t, int32(2), fired.Load())
}

func TestGateIgnoresGuildsBeforeReady(t *testing.T) {
	g, fired := newTestGate(time.Hour)
	g.guildAvailable("100")
	assert.Equal(t, int32(0), fired.Load())
}

func TestGateStop(t *testing.T) {
	g, fired := newTestGate(20 * time.Millisecond)

	g.ready([]string{"100"})
	g.stop()
	time.Sleep(50 * time.Millisecond)
	g.guildAvailable("100")

	assert.Equal(t, int32(0), fired.Load())
}
