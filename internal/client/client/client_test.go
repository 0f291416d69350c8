package client

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatline/internal/protocol"
)

// script plays the server side of a connection in tests.
type script struct {
	t     *testing.T
	conn  net.Conn
	codec protocol.Codec
	r     *bufio.Reader
}

func newPair(t *testing.T, codec protocol.Codec) (*Client, *script) {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	c := New(clientSide, codec)
	t.Cleanup(func() { _ = c.Close(); _ = serverSide.Close() })
	return c, &script{t: t, conn: serverSide, codec: codec, r: bufio.NewReader(serverSide)}
}

func (s *script) expect(op protocol.Op) *protocol.Request {
	s.t.Helper()
	require.NoError(s.t, s.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	req, err := s.codec.DecodeRequest(s.r)
	require.NoError(s.t, err)
	require.Equal(s.t, op, req.Op)
	return req
}

func (s *script) reply(resp *protocol.Response) {
	s.t.Helper()
	frame, err := s.codec.EncodeResponse(resp)
	require.NoError(s.t, err)
	require.NoError(s.t, s.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = s.conn.Write(frame)
	require.NoError(s.t, err)
}

func TestLoginReturnsUnreadCount(t *testing.T) {
	c, srv := newPair(t, protocol.JSONCodec{})

	go func() {
		req := srv.expect(protocol.OpLogin)
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, "hunter22", req.Password)
		srv.reply(&protocol.Response{Kind: protocol.KindOK, Count: 3})
	}()

	n, err := c.Login(context.Background(), "alice", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)
}

func TestErrorResponseBecomesError(t *testing.T) {
	c, srv := newPair(t, protocol.JSONCodec{})

	go func() {
		srv.expect(protocol.OpCreateAccount)
		srv.reply(&protocol.Response{Kind: protocol.KindError, Error: "username already taken"})
	}()

	err := c.CreateAccount(context.Background(), "alice", "hunter22")
	require.Error(t, err)
	assert.EqualError(t, err, "username already taken")
}

func TestSendOverBinaryCodec(t *testing.T) {
	c, srv := newPair(t, protocol.BinaryCodec{})

	go func() {
		req := srv.expect(protocol.OpSendMessage)
		assert.Equal(t, "bob", req.Recipient)
		assert.Equal(t, "hi there", req.Body)
		srv.reply(&protocol.Response{Kind: protocol.KindOK, MessageID: 42})
	}()

	id, err := c.Send(context.Background(), "bob", "hi there")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
}

func TestPushArrivesOnChannel(t *testing.T) {
	c, srv := newPair(t, protocol.JSONCodec{})

	msg := protocol.Message{
		ID:        7,
		Sender:    "alice",
		Recipient: "bob",
		Body:      "ping",
		CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	srv.reply(&protocol.Response{Kind: protocol.KindNewMessage, Messages: []protocol.Message{msg}})

	select {
	case got := <-c.Pushes():
		assert.Equal(t, msg, got)
	case <-time.After(2 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestUnsolicitedErrorIsANotice(t *testing.T) {
	c, srv := newPair(t, protocol.JSONCodec{})

	srv.reply(&protocol.Response{Kind: protocol.KindError, Error: "logged in from another connection"})

	select {
	case notice := <-c.Notices():
		assert.Equal(t, "logged in from another connection", notice)
	case <-time.After(2 * time.Second):
		t.Fatal("notice not delivered")
	}
}

func TestPushDuringPendingCall(t *testing.T) {
	c, srv := newPair(t, protocol.JSONCodec{})

	go func() {
		srv.expect(protocol.OpListMessages)
		// A delivery sneaks in ahead of the solicited response.
		srv.reply(&protocol.Response{
			Kind:     protocol.KindNewMessage,
			Messages: []protocol.Message{{ID: 9, Sender: "alice", Recipient: "bob", Body: "late"}},
		})
		srv.reply(&protocol.Response{Kind: protocol.KindOK, Messages: []protocol.Message{}})
	}()

	msgs, err := c.ListMessages(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)

	select {
	case got := <-c.Pushes():
		assert.Equal(t, uint64(9), got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestServerCloseFailsPendingAndLaterCalls(t *testing.T) {
	c, srv := newPair(t, protocol.JSONCodec{})

	go func() {
		srv.expect(protocol.OpListAccounts)
		_ = srv.conn.Close()
	}()

	_, err := c.ListAccounts(context.Background())
	require.Error(t, err)

	_, err = c.ListAccounts(context.Background())
	require.ErrorIs(t, err, ErrClosed)

	select {
	case <-c.Closed():
	case <-time.After(2 * time.Second):
		t.Fatal("Closed channel never closed")
	}
}

func TestDialUnknownEncoding(t *testing.T) {
	_, err := Dial(context.Background(), "127.0.0.1:0", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown encoding")
}
