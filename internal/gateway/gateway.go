// Package gateway is the HTTP and WebSocket surface in front of the
// room actors: it upgrades sockets, verifies session cookies, and maps
// route calls onto room RPCs. It never touches game state directly.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"passage-race/internal/geo"
	"passage-race/internal/lobby"
	"passage-race/internal/passage"
	"passage-race/internal/race"
	"passage-race/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

const (
	sendBufferSize = 256
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameSize   = 65536
)

var errSendBufferFull = errors.New("send buffer full")
var errConnClosed = errors.New("connection closed")

// Connection is one upgraded client socket: a read pump feeding the
// room actor and a buffered write pump the actor broadcasts through.
type Connection struct {
	conn *websocket.Conn
	send chan []byte
	room *race.Room

	done      chan struct{}
	closeOnce sync.Once
}

func newConnection(conn *websocket.Conn, room *race.Room) *Connection {
	return &Connection{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		room: room,
		done: make(chan struct{}),
	}
}

// Send queues an outbound frame without blocking the room actor.
// Implements race.Conn.
func (c *Connection) Send(data []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	case c.send <- data:
		return nil
	default:
		return errSendBufferFull
	}
}

// Close tears the socket down. Implements race.Conn.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.conn.Close()
}

func (c *Connection) readPump() {
	defer func() {
		c.room.Disconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] read error: %v", err)
			}
			return
		}
		if messageType == websocket.TextMessage || messageType == websocket.BinaryMessage {
			c.room.HandleFrame(c, message)
		}
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

// Gateway routes HTTP traffic onto room actors.
type Gateway struct {
	lobby    *lobby.Lobby
	sessions *session.Signer
	passages passage.Service
	geo      *geo.Service
	baseURL  string // public URL used in QR join links
}

func New(lby *lobby.Lobby, signer *session.Signer, passages passage.Service, geoSvc *geo.Service, baseURL string) *Gateway {
	return &Gateway{
		lobby:    lby,
		sessions: signer,
		passages: passages,
		geo:      geoSvc,
		baseURL:  baseURL,
	}
}

func (g *Gateway) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/rooms", g.handleCreateRoom)
	mux.HandleFunc("GET /game/{code}", g.handleSnapshot)
	mux.HandleFunc("GET /game/{code}/me", g.handleMe)
	mux.HandleFunc("GET /game/{code}/connect", g.handleConnect)
	mux.HandleFunc("POST /game/{code}/start", g.handleStart)
	mux.HandleFunc("POST /game/{code}/passage", g.handleSetPassage)
	mux.HandleFunc("GET /game/{code}/qr", g.handleQR)
	mux.HandleFunc("GET /passages/{index}", g.handlePassage)
}

// room resolves the path code to its actor, writing a 404 on bad codes.
func (g *Gateway) room(w http.ResponseWriter, r *http.Request) (*race.Room, bool) {
	code := r.PathValue("code")
	if !lobby.ValidCode(code) {
		writeError(w, http.StatusNotFound, "unknown room code")
		return nil, false
	}
	return g.lobby.Get(code), true
}

// sessionID returns the verified identity on the request, requiring one
// when required is set. An invalid cookie is always a 401.
func (g *Gateway) sessionID(w http.ResponseWriter, r *http.Request, required bool) (string, bool) {
	id, err := g.sessions.FromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return "", false
	}
	if id == "" && required {
		writeError(w, http.StatusUnauthorized, "session required")
		return "", false
	}
	return id, true
}

func (g *Gateway) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	code := lobby.GenerateCode()
	for attempts := 0; g.lobby.Has(code) && attempts < 5; attempts++ {
		code = lobby.GenerateCode()
	}
	g.lobby.Get(code)
	writeJSON(w, http.StatusCreated, map[string]string{"code": code})
}

func (g *Gateway) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	room, ok := g.room(w, r)
	if !ok {
		return
	}
	snap, err := room.Snapshot()
	if err != nil {
		writeError(w, http.StatusGone, "room closed")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (g *Gateway) handleMe(w http.ResponseWriter, r *http.Request) {
	room, ok := g.room(w, r)
	if !ok {
		return
	}
	id, ok := g.sessionID(w, r, true)
	if !ok {
		return
	}
	user, err := room.Identity(id)
	if err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (g *Gateway) handleConnect(w http.ResponseWriter, r *http.Request) {
	room, ok := g.room(w, r)
	if !ok {
		return
	}

	// An invalid cookie is treated as anonymous here: the join either
	// creates a fresh identity or is rejected by the room's state guard.
	recoveredID, _ := g.sessions.FromRequest(r)
	name := r.URL.Query().Get("name")

	join := race.JoinRequest{
		UserID:    recoveredID,
		Recovered: recoveredID != "",
		Name:      name,
	}

	var handshake http.Header
	if recoveredID == "" {
		// Validate before upgrading so the client gets a plain 400.
		if n := utf8.RuneCountInString(name); n < 1 || n > 16 {
			http.Error(w, "Name length must be between 1 and 16 characters (inclusive)", http.StatusBadRequest)
			return
		}
		join.UserID = uuid.NewString()
		join.Recovered = false
		// The sealed identity rides on the 101 response.
		handshake = http.Header{}
		handshake.Add("Set-Cookie", g.sessions.Cookie(join.UserID).String())
	}

	loc := g.geo.Resolve(r.Context(), r.RemoteAddr, r.Header)
	join.Country = loc.Country
	join.City = loc.City

	wsConn, err := upgrader.Upgrade(w, r, handshake)
	if err != nil {
		log.Printf("[Gateway] upgrade error: %v", err)
		return
	}

	conn := newConnection(wsConn, room)
	join.Conn = conn

	if _, err := room.Connect(join); err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error())
		_ = wsConn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		conn.Close()
		return
	}

	go conn.readPump()
	go conn.writePump()
}

func (g *Gateway) handleStart(w http.ResponseWriter, r *http.Request) {
	room, ok := g.room(w, r)
	if !ok {
		return
	}
	id, ok := g.sessionID(w, r, true)
	if !ok {
		return
	}
	if err := room.Start(id); err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "success"})
}

type setPassageRequest struct {
	Index int `json:"index"`
}

func (g *Gateway) handleSetPassage(w http.ResponseWriter, r *http.Request) {
	room, ok := g.room(w, r)
	if !ok {
		return
	}
	id, ok := g.sessionID(w, r, true)
	if !ok {
		return
	}

	var req setPassageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := g.passages.Get(r.Context(), req.Index)
	if err != nil {
		if errors.Is(err, passage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown passage index")
			return
		}
		log.Printf("[Gateway] passage lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "passage lookup failed")
		return
	}

	if err := room.SetPassage(id, race.Passage{Index: p.Index, Length: p.Length()}); err != nil {
		writeRoomError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"result": "success"})
}

func (g *Gateway) handleQR(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if !lobby.ValidCode(code) {
		writeError(w, http.StatusNotFound, "unknown room code")
		return
	}
	png, err := qrcode.Encode(fmt.Sprintf("%s/game/%s", g.baseURL, code), qrcode.Medium, 256)
	if err != nil {
		log.Printf("[Gateway] qr encode failed: %v", err)
		writeError(w, http.StatusInternalServerError, "qr encoding failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (g *Gateway) handlePassage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid passage index")
		return
	}
	p, err := g.passages.Get(r.Context(), index)
	if err != nil {
		if errors.Is(err, passage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown passage index")
			return
		}
		log.Printf("[Gateway] passage lookup failed: %v", err)
		writeError(w, http.StatusInternalServerError, "passage lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// writeRoomError maps room RPC rejections onto HTTP statuses. Nothing
// past this boundary ever panics or leaks internals.
func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, race.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, race.ErrRaceStarted), errors.Is(err, race.ErrPassageSet), errors.Is(err, race.ErrRoomBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, race.ErrUnknownUser):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, race.ErrRoomClosed):
		writeError(w, http.StatusGone, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
