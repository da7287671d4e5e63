package race

import (
	"encoding/json"
	"time"
)

// State is the race lifecycle. It only moves forward:
// Waiting → Countdown → Playing → Finished.
type State int

const (
	StateWaiting State = iota
	StateCountdown
	StatePlaying
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateCountdown:
		return "countdown"
	case StatePlaying:
		return "playing"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Passage identifies the agreed passage: its catalog index and the
// number of characters a racer must type to finish.
type Passage struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// User is one participant's state within a room. The identity survives
// disconnects; only Connected tracks whether a live socket currently
// represents it.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Country   string `json:"country"`
	City      string `json:"city,omitempty"`
	Ping      int    `json:"ping"`
	Position  int    `json:"position"`
	Connected bool   `json:"connected"`
	Admin     bool   `json:"admin"`
	Finished  int    `json:"finished,omitempty"` // 1-based finish rank, 0 while racing
}

func (u *User) safe() SafeUser {
	return SafeUser{
		ID:        u.ID,
		Name:      u.Name,
		Country:   u.Country,
		Ping:      u.Ping,
		Position:  u.Position,
		Connected: u.Connected,
		Admin:     u.Admin,
		Finished:  u.Finished,
	}
}

// SafeUser is the broadcastable projection of a User: no socket handle,
// no city.
type SafeUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Country   string `json:"country"`
	Ping      int    `json:"ping"`
	Position  int    `json:"position"`
	Connected bool   `json:"connected"`
	Admin     bool   `json:"admin"`
	Finished  int    `json:"finished,omitempty"`
}

// Snapshot is the sanitized projection of a Game, sent as the `game`
// message and returned by the read-only RPC surface. Timestamps are
// wall clock milliseconds. Statistics blobs are deliberately absent.
type Snapshot struct {
	State              State               `json:"state"`
	StartTime          *int64              `json:"startTime,omitempty"`
	EndTime            *int64              `json:"endTime,omitempty"`
	CountdownStartTime *int64              `json:"countdownStartTime,omitempty"`
	Passage            *Passage            `json:"passage,omitempty"`
	Users              map[string]SafeUser `json:"users"`
}

// Game is the aggregate owned exclusively by one Room actor. All
// methods assume single-threaded access; the actor provides it.
type Game struct {
	State              State
	StartTime          *time.Time
	EndTime            *time.Time
	CountdownStartTime *time.Time
	Passage            *Passage
	Users              map[string]*User
	Statistics         map[string]json.RawMessage

	nextRank int
}

func NewGame() *Game {
	return &Game{
		State:      StateWaiting,
		Users:      make(map[string]*User),
		Statistics: make(map[string]json.RawMessage),
		nextRank:   1,
	}
}

// Join admits a brand-new identity. The first user admitted to an empty
// room becomes admin; that never changes afterwards.
func (g *Game) Join(id, name, country, city string) (*User, error) {
	if g.State != StateWaiting {
		return nil, ErrRoomBusy
	}
	user := &User{
		ID:        id,
		Name:      name,
		Country:   country,
		City:      city,
		Connected: true,
		Admin:     len(g.Users) == 0,
	}
	g.Users[id] = user
	return user, nil
}

// Reconnect revives a known identity, flipping only Connected. The
// position, admin flag and finish rank are untouched.
func (g *Game) Reconnect(id string) (*User, bool) {
	user, ok := g.Users[id]
	if !ok {
		return nil, false
	}
	user.Connected = true
	return user, true
}

// MarkDisconnected flips Connected off, leaving the entry in place so
// ranks and statistics survive a reconnect.
func (g *Game) MarkDisconnected(id string) {
	if user, ok := g.Users[id]; ok {
		user.Connected = false
	}
}

// Start moves Waiting → Countdown. Only the admin may start, and only
// once.
func (g *Game) Start(by *User, now time.Time) error {
	if by == nil || !by.Admin {
		return ErrForbidden
	}
	if g.State != StateWaiting {
		return ErrRaceStarted
	}
	g.State = StateCountdown
	t := now
	g.CountdownStartTime = &t
	return nil
}

// SetPassage fixes the passage. Admin-only, at most once per room;
// immutable after the first success.
func (g *Game) SetPassage(by *User, p Passage) error {
	if by == nil || !by.Admin {
		return ErrForbidden
	}
	if g.Passage != nil {
		return ErrPassageSet
	}
	cp := p
	g.Passage = &cp
	return nil
}

// CountdownElapsed reports whether the countdown window has passed.
func (g *Game) CountdownElapsed(now time.Time, window time.Duration) bool {
	return g.State == StateCountdown &&
		g.CountdownStartTime != nil &&
		now.Sub(*g.CountdownStartTime) >= window
}

// BeginPlaying moves Countdown → Playing and stamps the start time.
// Reached only via the alarm, never directly from a client message.
func (g *Game) BeginPlaying(now time.Time) {
	if g.State != StateCountdown {
		return
	}
	g.State = StatePlaying
	t := now
	g.StartTime = &t
}

// UpdatePosition records a progress report. The cursor is recorded in
// every state; rank assignment and the Finished transition run only
// while Playing. Returns the rank assigned by this update (0 if none)
// and whether the race just completed.
func (g *Game) UpdatePosition(id string, position int, now time.Time) (rank int, raceOver bool) {
	user, ok := g.Users[id]
	if !ok {
		return 0, false
	}
	user.Position = position

	if g.State != StatePlaying || g.Passage == nil {
		return 0, false
	}
	if user.Finished == 0 && position >= g.Passage.Length {
		user.Finished = g.nextRank
		g.nextRank++
		rank = user.Finished
	}
	return rank, g.CheckCompletion(now)
}

// CheckCompletion finishes the race once every user is either finished
// or disconnected. Meaningful only while Playing.
func (g *Game) CheckCompletion(now time.Time) bool {
	if g.State != StatePlaying || len(g.Users) == 0 {
		return false
	}
	for _, u := range g.Users {
		if u.Finished == 0 && u.Connected {
			return false
		}
	}
	g.State = StateFinished
	t := now
	g.EndTime = &t
	return true
}

// SetStatistics stores a user's end-of-race metrics blob verbatim.
// Accepted in every state so straggling clients can still report;
// never part of the live snapshot.
func (g *Game) SetStatistics(id string, blob json.RawMessage) {
	if _, ok := g.Users[id]; !ok {
		return
	}
	g.Statistics[id] = blob
}

// AnyConnected reports whether any live socket currently represents a
// user in this room.
func (g *Game) AnyConnected() bool {
	for _, u := range g.Users {
		if u.Connected {
			return true
		}
	}
	return false
}

// Snapshot builds the sanitized projection of the current state.
func (g *Game) Snapshot() Snapshot {
	snap := Snapshot{
		State:              g.State,
		StartTime:          msPtr(g.StartTime),
		EndTime:            msPtr(g.EndTime),
		CountdownStartTime: msPtr(g.CountdownStartTime),
		Users:              make(map[string]SafeUser, len(g.Users)),
	}
	if g.Passage != nil {
		p := *g.Passage
		snap.Passage = &p
	}
	for id, u := range g.Users {
		snap.Users[id] = u.safe()
	}
	return snap
}

func msPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}
