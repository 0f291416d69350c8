package dispatch

import (
	"io"
	"sync"

	"github.com/dmitrijs2005/chatline/internal/server/session"
)

const outboundQueueSize = 256

// connWriter serializes all writes to one connection through a single
// goroutine. Responses from the connection's own dispatcher and pushes from
// other users' sends both go through Enqueue, so frames never interleave on
// the socket.
type connWriter struct {
	rwc   io.ReadWriteCloser
	queue chan []byte

	closeOnce sync.Once
	done      chan struct{}
}

func newConnWriter(rwc io.ReadWriteCloser) *connWriter {
	return &connWriter{
		rwc:   rwc,
		queue: make(chan []byte, outboundQueueSize),
		done:  make(chan struct{}),
	}
}

// Enqueue hands a frame to the writer goroutine. A full queue means the
// peer stopped draining; the connection is torn down rather than blocking
// the caller, which may be another user's dispatcher.
func (c *connWriter) Enqueue(frame []byte) error {
	select {
	case <-c.done:
		return session.ErrConnClosed
	default:
	}

	select {
	case c.queue <- frame:
		return nil
	case <-c.done:
		return session.ErrConnClosed
	default:
		_ = c.Close()
		return session.ErrConnClosed
	}
}

// run is the writer goroutine. It owns the underlying connection: frames
// queued before Close are still flushed, and the socket is closed only
// after the final drain, so a farewell frame enqueued right before Close
// reaches the peer.
func (c *connWriter) run() {
	defer c.rwc.Close()

	for {
		select {
		case frame := <-c.queue:
			if _, err := c.rwc.Write(frame); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			c.drain()
			return
		}
	}
}

func (c *connWriter) drain() {
	for {
		select {
		case frame := <-c.queue:
			if _, err := c.rwc.Write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// Close signals the writer goroutine to flush and shut the connection
// down. It is safe to call from any goroutine, any number of times.
func (c *connWriter) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}
