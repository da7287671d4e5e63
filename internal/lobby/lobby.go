// Package lobby maps room codes to live actors. The hosting guarantee
// the rooms rely on — at most one live actor per code — is enforced
// here, along with room creation and idle eviction.
package lobby

import (
	"context"
	"crypto/rand"
	"log"
	"regexp"
	"sync"
	"time"

	"passage-race/internal/race"
)

const (
	codeAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	codeLength   = 5
)

var codePattern = regexp.MustCompile(`^[a-z0-9]{5}$`)

// ValidCode reports whether code has the short join-code shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}

// GenerateCode produces a fresh 5-character join code.
func GenerateCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// Lobby owns all room actors.
type Lobby struct {
	mu    sync.RWMutex
	rooms map[string]*race.Room
	cfg   race.Config
	hooks []race.RaceEndHook
}

func New(cfg race.Config, hooks ...race.RaceEndHook) *Lobby {
	return &Lobby{
		rooms: make(map[string]*race.Room),
		cfg:   cfg,
		hooks: hooks,
	}
}

// Get returns the live actor for code, creating it on first use.
func (l *Lobby) Get(code string) *race.Room {
	l.mu.RLock()
	room := l.rooms[code]
	l.mu.RUnlock()
	if room != nil && !room.Closed() {
		return room
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if room := l.rooms[code]; room != nil && !room.Closed() {
		return room
	}
	room = race.NewRoom(code, l.cfg, l.hooks...)
	l.rooms[code] = room
	log.Printf("[Lobby] room %s created (total %d)", code, len(l.rooms))
	return room
}

// Has reports whether a live actor exists for code.
func (l *Lobby) Has(code string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	room := l.rooms[code]
	return room != nil && !room.Closed()
}

// Count returns the number of registered rooms.
func (l *Lobby) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.rooms)
}

// Sweep closes and evicts rooms with no connected user for at least
// ttl, returning how many were removed.
func (l *Lobby) Sweep(ttl time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for code, room := range l.rooms {
		if room.IdleFor(ttl) {
			room.Close()
			delete(l.rooms, code)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("[Lobby] swept %d idle room(s), %d remain", removed, len(l.rooms))
	}
	return removed
}

// StartJanitor sweeps periodically until ctx ends.
func (l *Lobby) StartJanitor(ctx context.Context, every, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep(ttl)
			}
		}
	}()
}
