// Package client implements the chatline wire client: a single connection
// speaking either the JSON or the binary encoding, with synchronous
// request/response calls and asynchronous delivery of pushed messages.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/dmitrijs2005/chatline/internal/protocol"
)

// ErrClosed is returned by calls made after the connection is gone.
var ErrClosed = errors.New("connection closed")

const pushBuffer = 64

// Client is one live server connection. At most one request is in flight at
// a time; pushed messages and server notices arrive on their own channels
// regardless of request activity. All methods are safe for concurrent use.
type Client struct {
	conn  net.Conn
	codec protocol.Codec

	reqMu sync.Mutex // one request/response exchange at a time

	mu       sync.Mutex
	inFlight bool
	readErr  error

	responses chan *protocol.Response
	pushes    chan protocol.Message
	notices   chan string

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to addr and starts the read loop. The encoding must match
// the listener behind addr; it is never negotiated.
func Dial(ctx context.Context, addr, encoding string) (*Client, error) {
	codec, ok := protocol.CodecByName(encoding)
	if !ok {
		return nil, fmt.Errorf("unknown encoding %q", encoding)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return New(conn, codec), nil
}

// New wraps an established connection. Used by Dial and by tests that
// supply a pipe instead of a TCP conn.
func New(conn net.Conn, codec protocol.Codec) *Client {
	c := &Client{
		conn:      conn,
		codec:     codec,
		responses: make(chan *protocol.Response, 1),
		pushes:    make(chan protocol.Message, pushBuffer),
		notices:   make(chan string, 1),
		closed:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Pushes yields messages delivered while this client's user is online. The
// channel is closed when the connection goes down.
func (c *Client) Pushes() <-chan protocol.Message {
	return c.pushes
}

// Notices yields out-of-band server errors, such as the farewell sent when
// the same user logs in elsewhere. The channel is closed with the connection.
func (c *Client) Notices() <-chan string {
	return c.notices
}

// Closed is closed once the connection is torn down.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.readErr = err
		c.mu.Unlock()

		_ = c.conn.Close()
		close(c.closed)
	})
}

// readLoop is the sole reader. Solicited responses go to the waiting call;
// new_message frames and unsolicited errors are routed to their channels.
// As the only sender, it also owns closing the push and notice channels.
func (c *Client) readLoop() {
	defer close(c.pushes)
	defer close(c.notices)

	r := bufio.NewReader(c.conn)
	for {
		resp, err := c.codec.DecodeResponse(r)
		if err != nil {
			c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}

		switch {
		case resp.Kind == protocol.KindNewMessage:
			if len(resp.Messages) == 1 {
				select {
				case c.pushes <- resp.Messages[0]:
				default: // consumer not draining, drop
				}
			}

		case c.takeInFlight():
			c.responses <- resp

		case resp.Kind == protocol.KindError:
			select {
			case c.notices <- resp.Error:
			default:
			}
		}
	}
}

func (c *Client) takeInFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.inFlight {
		return false
	}
	c.inFlight = false
	return true
}

// do performs one request/response exchange.
func (c *Client) do(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	select {
	case <-c.closed:
		return nil, c.closeErr()
	default:
	}

	frame, err := c.codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.inFlight = true
	c.mu.Unlock()

	if _, err := c.conn.Write(frame); err != nil {
		c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
		return nil, c.closeErr()
	}

	select {
	case resp := <-c.responses:
		return resp, nil
	case <-c.closed:
		return nil, c.closeErr()
	case <-ctx.Done():
		// The connection is now desynchronized, a late response could be
		// mistaken for the next call's reply. Tear it down.
		c.shutdown(ctx.Err())
		return nil, ctx.Err()
	}
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	return ErrClosed
}

// call performs an exchange and converts error responses to Go errors.
func (c *Client) call(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp.Kind == protocol.KindError {
		return nil, errors.New(resp.Error)
	}
	return resp, nil
}

// CreateAccount registers a new user. It does not log in.
func (c *Client) CreateAccount(ctx context.Context, username, password string) error {
	_, err := c.call(ctx, &protocol.Request{Op: protocol.OpCreateAccount, Username: username, Password: password})
	return err
}

// Login authenticates this connection and returns the unread message count.
func (c *Client) Login(ctx context.Context, username, password string) (uint64, error) {
	resp, err := c.call(ctx, &protocol.Request{Op: protocol.OpLogin, Username: username, Password: password})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ListAccounts returns all usernames, sorted. Works without login.
func (c *Client) ListAccounts(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, &protocol.Request{Op: protocol.OpListAccounts})
	if err != nil {
		return nil, err
	}
	return resp.Accounts, nil
}

// Send delivers a message to recipient and returns its server-assigned id.
func (c *Client) Send(ctx context.Context, recipient, body string) (uint64, error) {
	resp, err := c.call(ctx, &protocol.Request{Op: protocol.OpSendMessage, Recipient: recipient, Body: body})
	if err != nil {
		return 0, err
	}
	return resp.MessageID, nil
}

// UnreadCount returns the number of unread messages in the user's mailbox.
func (c *Client) UnreadCount(ctx context.Context) (uint64, error) {
	resp, err := c.call(ctx, &protocol.Request{Op: protocol.OpListUnreadCount})
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// ListMessages returns the full mailbox in id order and marks it read.
func (c *Client) ListMessages(ctx context.Context) ([]protocol.Message, error) {
	resp, err := c.call(ctx, &protocol.Request{Op: protocol.OpListMessages})
	if err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteMessage removes one message from the user's own mailbox.
func (c *Client) DeleteMessage(ctx context.Context, id uint64) error {
	_, err := c.call(ctx, &protocol.Request{Op: protocol.OpDeleteMessage, MessageID: id})
	return err
}

// DeleteAccount removes the logged-in user's account and mailbox. The
// server closes the connection afterwards.
func (c *Client) DeleteAccount(ctx context.Context) error {
	_, err := c.call(ctx, &protocol.Request{Op: protocol.OpDeleteAccount})
	return err
}

// Logout ends the session. The server closes the connection afterwards.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.call(ctx, &protocol.Request{Op: protocol.OpLogout})
	return err
}
