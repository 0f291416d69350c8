// Package session tracks the live binding between authenticated usernames
// and their connections, and enforces the single-active-session-per-user
// rule.
package session

import (
	"errors"

	"github.com/google/uuid"
)

// ErrConnClosed is returned by Conn implementations once their outbound
// queue is gone.
var ErrConnClosed = errors.New("connection closed")

// Conn is the write side of a live connection. Implementations own a single
// writer goroutine, so frames enqueued by different goroutines never tear
// on the socket.
type Conn interface {
	// Enqueue hands one encoded frame to the connection's writer.
	Enqueue(frame []byte) error
	// Close shuts the writer down and closes the underlying connection.
	// It is safe to call more than once.
	Close() error
}

// Session binds a username to its current connection. The ID distinguishes
// a session from its replacement after an eviction: a stale connection
// cleaning up must not unmap the session that took its place.
type Session struct {
	ID       uuid.UUID
	Username string
	Encoding string

	conn Conn
}

func New(username, encoding string, conn Conn) *Session {
	return &Session{
		ID:       uuid.New(),
		Username: username,
		Encoding: encoding,
		conn:     conn,
	}
}

// Push enqueues an encoded frame for delivery on this session's connection.
func (s *Session) Push(frame []byte) error {
	return s.conn.Enqueue(frame)
}

// CloseConn closes the underlying connection.
func (s *Session) CloseConn() error {
	return s.conn.Close()
}
