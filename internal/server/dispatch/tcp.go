package dispatch

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/protocol"
)

// TCPListener accepts raw TCP connections and serves each one with a fixed
// codec. The encoding is a property of the listening port, never negotiated.
type TCPListener struct {
	addr   string
	codec  protocol.Codec
	disp   *Dispatcher
	logger logging.Logger
}

func NewTCPListener(addr string, codec protocol.Codec, disp *Dispatcher, logger logging.Logger) *TCPListener {
	return &TCPListener{addr: addr, codec: codec, disp: disp, logger: logger}
}

// Run accepts connections until ctx is cancelled, then waits for in-flight
// connection handlers to finish.
func (l *TCPListener) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	l.logger.Info(ctx, "listener started", "addr", l.addr, "encoding", l.codec.Name())

	var wg sync.WaitGroup
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}
			l.logger.Warn(ctx, "accept failed", "addr", l.addr, "error", err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.disp.HandleConn(ctx, conn, l.codec)
		}()
	}

	wg.Wait()
	l.logger.Info(ctx, "listener stopped", "addr", l.addr)
	return nil
}
