package tracker

import (
	"sync"

	"voicestats/internal/models"
)

// OpenIndex caches sessions opened by this process so closing them does not
// need a store lookup. The store stays authoritative.
type OpenIndex struct {
	sessions map[models.SessionKey]*models.VoiceSession
	mu       sync.Mutex
}

func NewOpenIndex() *OpenIndex {
	return &OpenIndex{
		sessions: make(map[models.SessionKey]*models.VoiceSession),
	}
}

func (i *OpenIndex) Put(session *models.VoiceSession) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sessions[session.Key()] = session
	return len(i.sessions)
}

// Take removes and returns the session stored under key.
func (i *OpenIndex) Take(key models.SessionKey) (*models.VoiceSession, int, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	session, ok := i.sessions[key]
	if ok {
		delete(i.sessions, key)
	}
	return session, len(i.sessions), ok
}

func (i *OpenIndex) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.sessions)
}

func (i *OpenIndex) Has(key models.SessionKey) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	_, ok := i.sessions[key]
	return ok
}
