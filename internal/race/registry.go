package race

// Conn is the transport handle the room writes to. The gateway's
// websocket connection implements it; tests substitute fakes.
type Conn interface {
	Send(data []byte) error
	Close() error
}

// registry maps each live socket to the user it represents within one
// room, with reverse lookup. One socket maps to exactly one user; a
// user has at most one live socket.
type registry struct {
	users map[Conn]string
	conns map[string]Conn
}

func newRegistry() *registry {
	return &registry{
		users: make(map[Conn]string),
		conns: make(map[string]Conn),
	}
}

// attach binds conn to userID. An existing socket for the same user is
// superseded: dropped from the registry without being closed, so it is
// simply excluded from future sends.
func (r *registry) attach(conn Conn, userID string) {
	if old, ok := r.conns[userID]; ok && old != conn {
		delete(r.users, old)
	}
	r.users[conn] = userID
	r.conns[userID] = conn
}

// detach removes conn on every exit path, returning the user it
// represented.
func (r *registry) detach(conn Conn) (string, bool) {
	userID, ok := r.users[conn]
	if !ok {
		return "", false
	}
	delete(r.users, conn)
	if r.conns[userID] == conn {
		delete(r.conns, userID)
	}
	return userID, true
}

func (r *registry) userConn(userID string) (Conn, bool) {
	conn, ok := r.conns[userID]
	return conn, ok
}

func (r *registry) connUser(conn Conn) (string, bool) {
	userID, ok := r.users[conn]
	return userID, ok
}
