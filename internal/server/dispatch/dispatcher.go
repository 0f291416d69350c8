package dispatch

import (
	"bufio"
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/chatline/internal/common"
	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/protocol"
	"github.com/dmitrijs2005/chatline/internal/server/accounts"
	"github.com/dmitrijs2005/chatline/internal/server/messages"
	"github.com/dmitrijs2005/chatline/internal/server/session"
)

// Dispatcher runs the per-connection request loop: decode a frame, check
// authentication, invoke the matching service and enqueue the reply on the
// connection's writer.
type Dispatcher struct {
	accounts *accounts.Service
	messages *messages.Service
	sessions *session.Manager
	logger   logging.Logger
}

func NewDispatcher(a *accounts.Service, m *messages.Service, s *session.Manager, logger logging.Logger) *Dispatcher {
	return &Dispatcher{accounts: a, messages: m, sessions: s, logger: logger}
}

// HandleConn serves one connection until the peer disconnects, a fatal
// decode error occurs, or ctx is cancelled. The codec is fixed for the
// lifetime of the connection.
func (d *Dispatcher) HandleConn(ctx context.Context, rwc io.ReadWriteCloser, codec protocol.Codec) {
	cw := newConnWriter(rwc)
	go cw.run()

	stop := context.AfterFunc(ctx, func() { _ = cw.Close() })
	defer stop()

	var sess *session.Session
	defer func() {
		d.sessions.Close(sess)
		_ = cw.Close()
	}()

	r := bufio.NewReader(rwc)
	for {
		req, err := codec.DecodeRequest(r)
		if err != nil {
			var de *protocol.DecodeError
			if errors.As(err, &de) && !de.Fatal {
				d.logger.Warn(ctx, "dropping malformed request", "encoding", codec.Name(), "reason", de.Reason)
				d.reply(ctx, cw, codec, &protocol.Response{Kind: protocol.KindError, Error: "malformed request: " + de.Reason})
				continue
			}
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				d.logger.Debug(ctx, "connection read failed", "error", err)
			}
			return
		}

		resp, next, closeAfter := d.handle(ctx, sess, codec, cw, req)
		sess = next
		d.reply(ctx, cw, codec, resp)
		if closeAfter {
			return
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, sess *session.Session, codec protocol.Codec, cw *connWriter, req *protocol.Request) (resp *protocol.Response, next *session.Session, closeAfter bool) {
	next = sess

	if requiresAuth(req.Op) && sess == nil {
		return errResponse(common.ErrNotAuthenticated), next, false
	}

	switch req.Op {
	case protocol.OpCreateAccount:
		if err := d.accounts.Create(ctx, req.Username, req.Password); err != nil {
			return errResponse(err), next, false
		}
		return okResponse(), next, false

	case protocol.OpLogin:
		if sess != nil {
			return &protocol.Response{Kind: protocol.KindError, Error: "already logged in"}, next, false
		}
		if err := d.accounts.Authenticate(ctx, req.Username, req.Password); err != nil {
			return errResponse(err), next, false
		}
		newSess := session.New(req.Username, codec.Name(), cw)
		if evicted := d.sessions.Open(newSess); evicted != nil {
			d.notifyEvicted(ctx, evicted)
		}
		n, err := d.messages.UnreadCount(ctx, req.Username)
		if err != nil {
			d.sessions.Close(newSess)
			return errResponse(err), nil, false
		}
		return &protocol.Response{Kind: protocol.KindOK, Count: n}, newSess, false

	case protocol.OpListAccounts:
		names, err := d.accounts.List(ctx)
		if err != nil {
			return errResponse(err), next, false
		}
		return &protocol.Response{Kind: protocol.KindOK, Accounts: names}, next, false

	case protocol.OpSendMessage:
		msg, err := d.messages.Send(ctx, sess.Username, req.Recipient, req.Body)
		if err != nil {
			return errResponse(err), next, false
		}
		return &protocol.Response{Kind: protocol.KindOK, MessageID: msg.ID}, next, false

	case protocol.OpListUnreadCount:
		n, err := d.messages.UnreadCount(ctx, sess.Username)
		if err != nil {
			return errResponse(err), next, false
		}
		return &protocol.Response{Kind: protocol.KindOK, Count: n}, next, false

	case protocol.OpListMessages:
		msgs, err := d.messages.ListMessages(ctx, sess.Username)
		if err != nil {
			return errResponse(err), next, false
		}
		return &protocol.Response{Kind: protocol.KindOK, Messages: msgs}, next, false

	case protocol.OpDeleteMessage:
		if err := d.messages.Delete(ctx, sess.Username, req.MessageID); err != nil {
			return errResponse(err), next, false
		}
		return okResponse(), next, false

	case protocol.OpDeleteAccount:
		if err := d.accounts.Delete(ctx, sess.Username); err != nil {
			return errResponse(err), next, false
		}
		if err := d.messages.DeleteMailbox(ctx, sess.Username); err != nil {
			d.logger.Error(ctx, "mailbox cleanup failed", "username", sess.Username, "error", err)
		}
		d.sessions.Close(sess)
		return okResponse(), nil, true

	case protocol.OpLogout:
		d.sessions.Close(sess)
		return okResponse(), nil, true

	default:
		return &protocol.Response{Kind: protocol.KindError, Error: "unknown operation"}, next, false
	}
}

// notifyEvicted tells the replaced session it lost its slot, then closes
// its connection. The notice uses the evicted connection's own encoding,
// which may differ from the one that triggered the eviction.
func (d *Dispatcher) notifyEvicted(ctx context.Context, old *session.Session) {
	if codec, ok := protocol.CodecByName(old.Encoding); ok {
		frame, err := codec.EncodeResponse(&protocol.Response{
			Kind:  protocol.KindError,
			Error: "logged in from another connection",
		})
		if err == nil {
			_ = old.Push(frame)
		}
	}
	_ = old.CloseConn()
}

func (d *Dispatcher) reply(ctx context.Context, cw *connWriter, codec protocol.Codec, resp *protocol.Response) {
	frame, err := codec.EncodeResponse(resp)
	if err != nil {
		d.logger.Error(ctx, "response encoding failed", "encoding", codec.Name(), "error", err)
		return
	}
	_ = cw.Enqueue(frame)
}

func requiresAuth(op protocol.Op) bool {
	switch op {
	case protocol.OpCreateAccount, protocol.OpLogin, protocol.OpListAccounts:
		return false
	}
	return true
}

func okResponse() *protocol.Response {
	return &protocol.Response{Kind: protocol.KindOK}
}

// errResponse maps service errors to wire error texts. Sentinel errors keep
// their message; anything unexpected is reported as a generic failure so
// internals never leak to the peer.
func errResponse(err error) *protocol.Response {
	for _, sentinel := range []error{
		common.ErrUsernameTaken,
		common.ErrNoSuchAccount,
		common.ErrWrongPassword,
		common.ErrNotAuthenticated,
		common.ErrNoSuchRecipient,
		common.ErrMessageNotFound,
		common.ErrNotAuthorized,
	} {
		if errors.Is(err, sentinel) {
			return &protocol.Response{Kind: protocol.KindError, Error: sentinel.Error()}
		}
	}
	if errors.Is(err, common.ErrValidation) {
		return &protocol.Response{Kind: protocol.KindError, Error: err.Error()}
	}
	return &protocol.Response{Kind: protocol.KindError, Error: "internal server error"}
}
