// Package race implements the per-room session coordinator for a live
// multiplayer typing race. One Room is one logical actor: a single
// goroutine owns the Game aggregate and processes socket frames, RPC
// calls and self-scheduled alarm ticks one at a time through an inbox
// channel, so no mutation of one room's state ever interleaves with
// another. Rooms are independent and run fully concurrently.
package race

import (
	"encoding/json"
	"log"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"passage-race/internal/protocol"
)

const maxNameLength = 16

// Config holds per-room timing knobs.
type Config struct {
	// HealthCheckInterval is the self-wake cadence for heartbeat
	// broadcasts. Zero or negative disables the alarm entirely
	// (degraded mode: no health sweeps, no timed transitions).
	HealthCheckInterval time.Duration
	// CountdownDuration is the Countdown → Playing window.
	CountdownDuration time.Duration
	// SendBuffer caps the actor inbox.
	SendBuffer int
}

func DefaultConfig() Config {
	return Config{
		HealthCheckInterval: 10 * time.Second,
		CountdownDuration:   3 * time.Second,
		SendBuffer:          256,
	}
}

// JoinRequest carries everything the actor needs to admit a socket.
type JoinRequest struct {
	Conn Conn
	// UserID is the identity this socket claims: a verified session id
	// when Recovered, a freshly generated id otherwise. A recovered id
	// with no matching user falls through to the new-join path, reusing
	// the id so the caller's cookie stays valid.
	UserID    string
	Recovered bool
	Name      string
	Country   string
	City      string
}

// PlayerResult is one participant's line in a finished-race record.
type PlayerResult struct {
	UserID     string          `json:"userId"`
	Name       string          `json:"name"`
	Rank       int             `json:"rank,omitempty"`
	Position   int             `json:"position"`
	Statistics json.RawMessage `json:"statistics,omitempty"`
}

// RaceRecord is emitted to race-end hooks once, on the Finished
// transition.
type RaceRecord struct {
	Code      string         `json:"code"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   time.Time      `json:"endedAt"`
	Players   []PlayerResult `json:"players"`
}

// RaceEndHook is a post-finish callback. It runs outside the actor
// goroutine; panics are recovered and logged.
type RaceEndHook func(RaceRecord)

type eventType int

const (
	eventConnect eventType = iota
	eventDisconnect
	eventFrame
	eventStart
	eventSetPassage
	eventSnapshot
	eventIdentity
	eventClose
)

type event struct {
	typ     eventType
	conn    Conn
	join    JoinRequest
	userID  string
	raw     []byte
	passage Passage
	now     time.Time
	reply   chan response
}

type response struct {
	user     SafeUser
	snapshot Snapshot
	err      error
}

// Room is the top-level coordinator for one race code.
type Room struct {
	Code string

	cfg   Config
	game  *Game
	conns *registry
	hooks []RaceEndHook

	events   chan event
	done     chan struct{}
	stopOnce sync.Once

	// alarm is owned by the actor goroutine: the timer fires into the
	// run loop, and rescheduling happens only from handlers.
	alarm    *time.Timer
	alarmSet bool

	// emptySince is unix seconds since the last connected user left,
	// 0 while occupied. Written by the actor, read by the lobby sweep.
	emptySince atomic.Int64
}

// NewRoom creates the actor for a code and starts its goroutine. The
// Game is created here, on the first connection attempt for the code,
// and lives until the lobby evicts the room.
func NewRoom(code string, cfg Config, hooks ...RaceEndHook) *Room {
	def := DefaultConfig()
	if cfg.CountdownDuration <= 0 {
		cfg.CountdownDuration = def.CountdownDuration
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}

	r := &Room{
		Code:   code,
		cfg:    cfg,
		game:   NewGame(),
		conns:  newRegistry(),
		hooks:  hooks,
		events: make(chan event, cfg.SendBuffer),
		done:   make(chan struct{}),
		alarm:  newStoppedTimer(),
	}
	r.emptySince.Store(time.Now().Unix())
	r.scheduleAlarm(r.cfg.HealthCheckInterval)

	go r.run()

	log.Printf("[Room %s] created", code)
	return r
}

func newStoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	if !t.Stop() {
		<-t.C
	}
	return t
}

// run is the actor loop. Every handler runs to completion before the
// next event is taken; this total ordering is the design's correctness
// mechanism.
func (r *Room) run() {
	defer r.alarm.Stop()
	for {
		select {
		case e := <-r.events:
			r.handleEvent(e)
		case now := <-r.alarm.C:
			r.alarmSet = false
			r.handleAlarm(now)
		case <-r.done:
			log.Printf("[Room %s] actor stopped", r.Code)
			return
		}
	}
}

func (r *Room) handleEvent(e event) {
	var resp response
	switch e.typ {
	case eventConnect:
		resp = r.handleConnect(e.join, e.now)
	case eventDisconnect:
		r.handleDisconnect(e.conn, e.now)
	case eventFrame:
		r.handleFrame(e.conn, e.raw, e.now)
	case eventStart:
		resp.err = r.handleStart(e.userID, e.now)
	case eventSetPassage:
		resp.err = r.handleSetPassage(e.userID, e.passage)
	case eventSnapshot:
		resp.snapshot = r.game.Snapshot()
	case eventIdentity:
		resp = r.handleIdentity(e.userID)
	case eventClose:
		r.stop()
	}
	if e.reply != nil {
		e.reply <- resp
	}
}

// submit queues an event and waits for the actor's reply.
func (r *Room) submit(e event) (response, error) {
	e.now = time.Now()
	e.reply = make(chan response, 1)

	select {
	case r.events <- e:
	case <-r.done:
		return response{}, ErrRoomClosed
	}
	select {
	case resp := <-e.reply:
		return resp, nil
	case <-r.done:
		return response{}, ErrRoomClosed
	}
}

// post queues a fire-and-forget event.
func (r *Room) post(e event) {
	e.now = time.Now()
	select {
	case r.events <- e:
	case <-r.done:
	}
}

// Connect admits a socket and returns the user it now represents.
func (r *Room) Connect(join JoinRequest) (SafeUser, error) {
	resp, err := r.submit(event{typ: eventConnect, join: join})
	if err != nil {
		return SafeUser{}, err
	}
	return resp.user, resp.err
}

// Disconnect detaches a socket after close or error. The owning user is
// retained with connected=false so the identity survives reconnection.
func (r *Room) Disconnect(conn Conn) {
	r.post(event{typ: eventDisconnect, conn: conn})
}

// HandleFrame feeds one raw inbound socket frame to the actor.
func (r *Room) HandleFrame(conn Conn, raw []byte) {
	r.post(event{typ: eventFrame, conn: conn, raw: raw})
}

// Start is the admin RPC that begins the countdown.
func (r *Room) Start(userID string) error {
	resp, err := r.submit(event{typ: eventStart, userID: userID})
	if err != nil {
		return err
	}
	return resp.err
}

// SetPassage is the admin RPC that fixes the passage, once.
func (r *Room) SetPassage(userID string, p Passage) error {
	resp, err := r.submit(event{typ: eventSetPassage, userID: userID, passage: p})
	if err != nil {
		return err
	}
	return resp.err
}

// Snapshot returns the sanitized game state for the polling fallback.
func (r *Room) Snapshot() (Snapshot, error) {
	resp, err := r.submit(event{typ: eventSnapshot})
	if err != nil {
		return Snapshot{}, err
	}
	return resp.snapshot, nil
}

// Identity resolves a previously issued identity to its user.
func (r *Room) Identity(userID string) (SafeUser, error) {
	resp, err := r.submit(event{typ: eventIdentity, userID: userID})
	if err != nil {
		return SafeUser{}, err
	}
	return resp.user, resp.err
}

// Close stops the actor. Idempotent.
func (r *Room) Close() {
	r.post(event{typ: eventClose})
}

// Closed reports whether the actor has stopped.
func (r *Room) Closed() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// IdleFor reports whether the room has had no connected user for at
// least ttl. Used by the lobby's eviction sweep.
func (r *Room) IdleFor(ttl time.Duration) bool {
	if r.Closed() {
		return true
	}
	since := r.emptySince.Load()
	if since == 0 {
		return false
	}
	return time.Since(time.Unix(since, 0)) >= ttl
}

// --- handlers (actor goroutine only) ---

func (r *Room) handleConnect(join JoinRequest, now time.Time) response {
	var user *User
	if join.Recovered {
		if existing, ok := r.game.Reconnect(join.UserID); ok {
			user = existing
			log.Printf("[Room %s] user %s reconnected", r.Code, user.ID)
		}
	}

	if user == nil {
		name := strings.TrimSpace(join.Name)
		if n := utf8.RuneCountInString(name); n < 1 || n > maxNameLength {
			return response{err: ErrNameLength}
		}
		joined, err := r.game.Join(join.UserID, name, join.Country, join.City)
		if err != nil {
			return response{err: err}
		}
		user = joined
		log.Printf("[Room %s] user %s (%q) joined, admin=%v", r.Code, user.ID, user.Name, user.Admin)
	}

	r.conns.attach(join.Conn, user.ID)
	r.updateIdleState(now)
	r.ensureAlarm()
	r.broadcast()
	return response{user: user.safe()}
}

func (r *Room) handleDisconnect(conn Conn, now time.Time) {
	userID, ok := r.conns.detach(conn)
	if !ok {
		return
	}
	r.game.MarkDisconnected(userID)
	log.Printf("[Room %s] user %s disconnected", r.Code, userID)

	// A mid-race disconnect can complete the race: everyone still
	// connected has already finished.
	over := r.game.CheckCompletion(now)

	r.updateIdleState(now)
	r.broadcast()
	if over {
		log.Printf("[Room %s] race finished (last racer disconnected)", r.Code)
		r.dispatchRaceEnd()
	}
}

func (r *Room) handleFrame(conn Conn, raw []byte, now time.Time) {
	userID, ok := r.conns.connUser(conn)
	if !ok {
		return
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		// Protocol errors are non-fatal: drop the frame, keep the socket.
		log.Printf("[Room %s] dropping frame from %s: %v", r.Code, userID, err)
		return
	}

	switch msg.Type {
	case protocol.TypePing:
		r.handlePing(conn, userID, msg.Ping, now)
	case protocol.TypePosition:
		rank, over := r.game.UpdatePosition(userID, msg.Position, now)
		if rank > 0 {
			log.Printf("[Room %s] user %s finished with rank %d", r.Code, userID, rank)
		}
		r.broadcast()
		if over {
			log.Printf("[Room %s] race finished", r.Code)
			r.dispatchRaceEnd()
		}
	case protocol.TypeStats:
		r.game.SetStatistics(userID, msg.Stats)
	}
}

func (r *Room) handlePing(conn Conn, userID string, ping *protocol.PingData, now time.Time) {
	if user, ok := r.game.Users[userID]; ok && ping.LastPingMs > 0 {
		user.Ping = ping.LastPingMs
	}

	// Exactly one pong to the sender, then the usual broadcast.
	reply, err := protocol.Pong(ping.ID, now)
	if err == nil {
		if err := conn.Send(reply); err != nil {
			log.Printf("[Room %s] pong to %s failed: %v", r.Code, userID, err)
			r.game.MarkDisconnected(userID)
			r.updateIdleState(now)
		}
	}
	r.broadcast()
}

func (r *Room) handleStart(userID string, now time.Time) error {
	user, ok := r.game.Users[userID]
	if !ok {
		return ErrForbidden
	}
	if err := r.game.Start(user, now); err != nil {
		return err
	}
	log.Printf("[Room %s] countdown started by %s", r.Code, userID)
	// The Countdown → Playing transition is alarm-driven, never direct.
	r.scheduleAlarm(r.cfg.CountdownDuration)
	r.broadcast()
	return nil
}

func (r *Room) handleSetPassage(userID string, p Passage) error {
	user, ok := r.game.Users[userID]
	if !ok {
		return ErrForbidden
	}
	if err := r.game.SetPassage(user, p); err != nil {
		return err
	}
	log.Printf("[Room %s] passage set to index %d (length %d)", r.Code, p.Index, p.Length)
	r.broadcast()
	return nil
}

func (r *Room) handleIdentity(userID string) response {
	user, ok := r.game.Users[userID]
	if !ok {
		return response{err: ErrUnknownUser}
	}
	return response{user: user.safe()}
}

// handleAlarm is the self-wake: timed Countdown → Playing transition,
// heartbeat broadcast, and conditional reschedule.
func (r *Room) handleAlarm(now time.Time) {
	if r.game.CountdownElapsed(now, r.cfg.CountdownDuration) {
		r.game.BeginPlaying(now)
		log.Printf("[Room %s] countdown elapsed, race is on", r.Code)
	}

	r.broadcast()

	if !r.game.AnyConnected() {
		// Room goes dormant; a new connection revives the alarm.
		log.Printf("[Room %s] no connected users, alarm lapsing", r.Code)
		return
	}

	next := r.cfg.HealthCheckInterval
	if r.game.State == StateCountdown && r.game.CountdownStartTime != nil {
		// Never let a heartbeat push the timed transition past its window.
		if remaining := r.game.CountdownStartTime.Add(r.cfg.CountdownDuration).Sub(now); remaining > 0 && remaining < next {
			next = remaining
		}
	}
	r.scheduleAlarm(next)
}

// scheduleAlarm arms the actor's single timer. Safe only on the actor
// goroutine (or before it starts).
func (r *Room) scheduleAlarm(d time.Duration) {
	if r.cfg.HealthCheckInterval <= 0 {
		// Degraded mode: no timer support requested. Health sweeps and
		// the timed Countdown transition will not occur.
		log.Printf("[Room %s] alarm scheduling disabled", r.Code)
		return
	}
	if !r.alarm.Stop() && r.alarmSet {
		select {
		case <-r.alarm.C:
		default:
		}
	}
	r.alarm.Reset(d)
	r.alarmSet = true
}

// ensureAlarm revives a lapsed alarm when a connection arrives.
func (r *Room) ensureAlarm() {
	if r.alarmSet {
		return
	}
	r.scheduleAlarm(r.cfg.HealthCheckInterval)
}

// broadcast fans the sanitized snapshot out to every connected user's
// socket. A per-socket send failure marks only that user disconnected;
// delivery to the rest always proceeds.
func (r *Room) broadcast() {
	payload, err := protocol.Encode(protocol.TypeGame, r.game.Snapshot())
	if err != nil {
		log.Printf("[Room %s] encode snapshot: %v", r.Code, err)
		return
	}

	var failed []string
	for userID, user := range r.game.Users {
		if !user.Connected {
			continue
		}
		conn, ok := r.conns.userConn(userID)
		if !ok {
			failed = append(failed, userID)
			continue
		}
		if err := conn.Send(payload); err != nil {
			log.Printf("[Room %s] send to %s failed: %v", r.Code, userID, err)
			failed = append(failed, userID)
		}
	}
	for _, userID := range failed {
		r.game.MarkDisconnected(userID)
	}
	if len(failed) > 0 {
		r.updateIdleState(time.Now())
	}
}

func (r *Room) updateIdleState(now time.Time) {
	if r.game.AnyConnected() {
		r.emptySince.Store(0)
		return
	}
	if r.emptySince.Load() == 0 {
		r.emptySince.Store(now.Unix())
	}
}

// dispatchRaceEnd fires the registered hooks once with a copied record.
func (r *Room) dispatchRaceEnd() {
	if len(r.hooks) == 0 {
		return
	}
	record := r.buildRaceRecord()
	for _, hook := range r.hooks {
		if hook == nil {
			continue
		}
		go func(cb RaceEndHook) {
			defer func() {
				if p := recover(); p != nil {
					log.Printf("[Room %s] race end hook panic: %v", r.Code, p)
				}
			}()
			cb(record)
		}(hook)
	}
}

func (r *Room) buildRaceRecord() RaceRecord {
	record := RaceRecord{Code: r.Code}
	if r.game.StartTime != nil {
		record.StartedAt = *r.game.StartTime
	}
	if r.game.EndTime != nil {
		record.EndedAt = *r.game.EndTime
	}
	for id, u := range r.game.Users {
		result := PlayerResult{
			UserID:   id,
			Name:     u.Name,
			Rank:     u.Finished,
			Position: u.Position,
		}
		if blob, ok := r.game.Statistics[id]; ok {
			result.Statistics = append(json.RawMessage(nil), blob...)
		}
		record.Players = append(record.Players, result)
	}
	sort.Slice(record.Players, func(i, j int) bool {
		a, b := record.Players[i], record.Players[j]
		if a.Rank != b.Rank {
			if a.Rank == 0 {
				return false
			}
			if b.Rank == 0 {
				return true
			}
			return a.Rank < b.Rank
		}
		return a.UserID < b.UserID
	})
	return record
}

func (r *Room) stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
}
