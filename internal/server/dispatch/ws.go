package dispatch

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/protocol"
)

const wsShutdownTimeout = 5 * time.Second

// WSListener serves the dispatcher over WebSocket at /ws. Each WebSocket
// message carries exactly one JSON frame, so browser clients get the same
// request/response loop as raw TCP peers.
type WSListener struct {
	addr     string
	disp     *Dispatcher
	logger   logging.Logger
	upgrader websocket.Upgrader
}

func NewWSListener(addr string, disp *Dispatcher, logger logging.Logger) *WSListener {
	return &WSListener{
		addr:   addr,
		disp:   disp,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run serves HTTP until ctx is cancelled, then shuts the server down
// gracefully.
func (l *WSListener) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", l.serveWS)

	srv := &http.Server{
		Addr:    l.addr,
		Handler: mux,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	l.logger.Info(ctx, "listener started", "addr", l.addr, "encoding", "json/ws")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), wsShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	<-errCh

	l.logger.Info(ctx, "listener stopped", "addr", l.addr)
	return nil
}

func (l *WSListener) serveWS(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	l.disp.HandleConn(r.Context(), newWSStream(c), protocol.JSONCodec{})
}

// wsStream adapts a WebSocket connection to io.ReadWriteCloser so the
// dispatcher can treat it like a TCP socket. Read drains message readers in
// order; Write sends one frame per WebSocket message. Read is only called
// from the dispatcher loop and Write only from the connection writer, which
// matches gorilla's one-reader one-writer rule.
type wsStream struct {
	conn   *websocket.Conn
	reader io.Reader
}

func newWSStream(conn *websocket.Conn) *wsStream {
	return &wsStream{conn: conn}
}

func (s *wsStream) Read(p []byte) (int, error) {
	for {
		if s.reader == nil {
			_, r, err := s.conn.NextReader()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return 0, io.EOF
				}
				return 0, err
			}
			s.reader = r
		}

		n, err := s.reader.Read(p)
		if errors.Is(err, io.EOF) {
			s.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (s *wsStream) Write(p []byte) (int, error) {
	if err := s.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *wsStream) Close() error {
	deadline := time.Now().Add(time.Second)
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return s.conn.Close()
}
