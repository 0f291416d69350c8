package cli

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/chatline/internal/client/client"
	"github.com/dmitrijs2005/chatline/internal/client/config"
	"github.com/dmitrijs2005/chatline/internal/protocol"
)

// scriptedServer answers requests on the server side of a pipe.
type scriptedServer struct {
	t     *testing.T
	conn  net.Conn
	codec protocol.Codec
	r     *bufio.Reader
}

func newTestApp(t *testing.T, input string) (*App, *scriptedServer) {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	codec := protocol.JSONCodec{}

	origDial := dialFn
	dialFn = func(ctx context.Context, addr, encoding string) (*client.Client, error) {
		return client.New(clientSide, codec), nil
	}
	t.Cleanup(func() {
		dialFn = origDial
		_ = serverSide.Close()
		_ = clientSide.Close()
	})

	cfg := &config.Config{}
	cfg.LoadDefaults()

	app := &App{
		config: cfg,
		reader: bufio.NewReader(strings.NewReader(input)),
		out:    &syncBuffer{},
	}
	return app, &scriptedServer{t: t, conn: serverSide, codec: codec, r: bufio.NewReader(serverSide)}
}

// syncBuffer guards a bytes.Buffer; the watch goroutine and command
// handlers both write to App.out.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (s *scriptedServer) expect(op protocol.Op) *protocol.Request {
	s.t.Helper()
	require.NoError(s.t, s.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	req, err := s.codec.DecodeRequest(s.r)
	require.NoError(s.t, err)
	require.Equal(s.t, op, req.Op)
	return req
}

func (s *scriptedServer) reply(resp *protocol.Response) {
	s.t.Helper()
	frame, err := s.codec.EncodeResponse(resp)
	require.NoError(s.t, err)
	require.NoError(s.t, s.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	_, err = s.conn.Write(frame)
	require.NoError(s.t, err)
}

func TestAppLogin(t *testing.T) {
	old := readPassword
	readPassword = func(int) ([]byte, error) { return []byte("hunter22"), nil }
	t.Cleanup(func() { readPassword = old })

	app, srv := newTestApp(t, "alice\n")

	go func() {
		req := srv.expect(protocol.OpLogin)
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, "hunter22", req.Password)
		srv.reply(&protocol.Response{Kind: protocol.KindOK, Count: 2})
	}()

	require.NoError(t, app.Login(context.Background()))
	assert.True(t, app.isLoggedIn())
	assert.Equal(t, "(alice)", app.getStatus())
	assert.Contains(t, app.out.(*syncBuffer).String(), "2 unread message(s)")
}

func TestAppAccountsWithoutLogin(t *testing.T) {
	app, srv := newTestApp(t, "")

	go func() {
		srv.expect(protocol.OpListAccounts)
		srv.reply(&protocol.Response{Kind: protocol.KindOK, Accounts: []string{"alice", "bob"}})
	}()

	require.NoError(t, app.Accounts(context.Background()))
	out := app.out.(*syncBuffer).String()
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "bob")
}

func TestAppPushIsPrinted(t *testing.T) {
	app, srv := newTestApp(t, "")

	// Establish the connection with a harmless request first.
	go func() {
		srv.expect(protocol.OpListAccounts)
		srv.reply(&protocol.Response{Kind: protocol.KindOK})
	}()
	require.NoError(t, app.Accounts(context.Background()))

	srv.reply(&protocol.Response{
		Kind: protocol.KindNewMessage,
		Messages: []protocol.Message{{
			ID: 5, Sender: "bob", Recipient: "alice", Body: "hi!",
			CreatedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}},
	})

	require.Eventually(t, func() bool {
		return strings.Contains(app.out.(*syncBuffer).String(), "bob: hi!")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestAppDeleteInvalidID(t *testing.T) {
	app, srv := newTestApp(t, "notanumber\n")
	_ = srv

	err := app.Delete(context.Background())
	require.Error(t, err)
	assert.Contains(t, app.out.(*syncBuffer).String(), "Invalid id")
}
