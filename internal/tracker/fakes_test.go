package tracker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"voicestats/internal/models"
)

var errStoreDown = errors.New("connection refused")

// memStore is an in-memory Store enforcing one open session per triple.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]*models.VoiceSession
	order    []string

	failCreate  error
	failFind    error
	failFindAll error
	failUpdate  error
	failDelete  error

	// failUpdateID fails updates for a single session only.
	failUpdateID string

	// afterFindAll runs once the open list has been taken, outside the lock.
	afterFindAll func()

	finds   int
	updates int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*models.VoiceSession)}
}

func clone(s *models.VoiceSession) *models.VoiceSession {
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	if s.DurationMs != nil {
		d := *s.DurationMs
		c.DurationMs = &d
	}
	return &c
}

func (m *memStore) Create(_ context.Context, s *models.VoiceSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return m.failCreate
	}
	for _, existing := range m.sessions {
		if !existing.HasLeft && existing.Key() == s.Key() {
			return models.ErrDuplicateOpen
		}
	}
	m.sessions[s.ID] = clone(s)
	m.order = append(m.order, s.ID)
	return nil
}

func (m *memStore) FindOpen(_ context.Context, guildID, userID, channelID string) (*models.VoiceSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finds++
	if m.failFind != nil {
		return nil, m.failFind
	}
	key := models.SessionKey{GuildID: guildID, UserID: userID, ChannelID: channelID}
	for _, id := range m.order {
		s, ok := m.sessions[id]
		if ok && !s.HasLeft && s.Key() == key {
			return clone(s), nil
		}
	}
	return nil, nil
}

func (m *memStore) FindAllOpen(_ context.Context) ([]*models.VoiceSession, error) {
	m.mu.Lock()
	if m.failFindAll != nil {
		m.mu.Unlock()
		return nil, m.failFindAll
	}
	var out []*models.VoiceSession
	for _, id := range m.order {
		if s, ok := m.sessions[id]; ok && !s.HasLeft {
			out = append(out, clone(s))
		}
	}
	hook := m.afterFindAll
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memStore) Update(_ context.Context, id string, f models.SessionClose) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	if m.failUpdateID != "" && m.failUpdateID == id {
		return errStoreDown
	}
	s, ok := m.sessions[id]
	if !ok || s.HasLeft {
		return models.ErrSessionClosed
	}
	m.updates++
	ended := f.EndedAt
	dur := f.DurationMs
	s.HasLeft = true
	s.EndedAt = &ended
	s.DurationMs = &dur
	s.Approximate = f.Approximate
	return nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	delete(m.sessions, id)
	return nil
}

// seed inserts a session directly, as a previous process would have left it.
func (m *memStore) seed(id, guildID, userID, channelID string, startedAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = &models.VoiceSession{
		ID: id, GuildID: guildID, UserID: userID, ChannelID: channelID, StartedAt: startedAt,
	}
	m.order = append(m.order, id)
}

func (m *memStore) get(id string) *models.VoiceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return clone(s)
	}
	return nil
}

func (m *memStore) all() []*models.VoiceSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.VoiceSession
	for _, id := range m.order {
		if s, ok := m.sessions[id]; ok {
			out = append(out, clone(s))
		}
	}
	return out
}

func (m *memStore) open(key models.SessionKey) []*models.VoiceSession {
	var out []*models.VoiceSession
	for _, s := range m.all() {
		if !s.HasLeft && s.Key() == key {
			out = append(out, s)
		}
	}
	return out
}

func (m *memStore) closed() []*models.VoiceSession {
	var out []*models.VoiceSession
	for _, s := range m.all() {
		if s.HasLeft {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChannelID < out[j].ChannelID })
	return out
}

// fakePresence is a mutable live view of guilds and voice states.
type fakePresence struct {
	mu     sync.Mutex
	guilds map[string]string // guild -> afk channel
	voice  map[string]VoiceState
}

func newFakePresence() *fakePresence {
	return &fakePresence{
		guilds: make(map[string]string),
		voice:  make(map[string]VoiceState),
	}
}

func (p *fakePresence) addGuild(guildID, afkChannelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.guilds[guildID] = afkChannelID
}

func (p *fakePresence) set(guildID, userID string, vs VoiceState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.voice[guildID+":"+userID] = vs
}

func (p *fakePresence) leave(guildID, userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.voice, guildID+":"+userID)
}

func (p *fakePresence) AFKChannel(guildID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	afk, ok := p.guilds[guildID]
	return afk, ok
}

func (p *fakePresence) VoiceState(guildID, userID string) (VoiceState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vs, ok := p.voice[guildID+":"+userID]
	return vs, ok
}

// stepClock advances by step on every call.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}
