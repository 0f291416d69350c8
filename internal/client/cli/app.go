// Package cli implements the interactive chatline client: a line-based
// REPL over one server connection, with pushed messages printed as they
// arrive.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	"github.com/dmitrijs2005/chatline/internal/client/client"
	"github.com/dmitrijs2005/chatline/internal/client/config"
)

// dialFn is a test seam for client.Dial.
var dialFn = client.Dial

type App struct {
	config *config.Config
	reader *bufio.Reader
	out    io.Writer

	mu       sync.Mutex
	conn     *client.Client
	userName string
}

func NewApp(c *config.Config) *App {
	return &App{
		config: c,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}
}

func (a *App) Run(ctx context.Context) {
	log.Println("Welcome to chatline (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
	a.dropConn(nil)
}

func (a *App) isLoggedIn() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.userName != ""
}

func (a *App) getStatus() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.userName == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", a.userName)
}

// ensureConn returns the live connection, dialing a fresh one if the
// previous connection is gone (the server closes it on logout, account
// deletion and eviction).
func (a *App) ensureConn(ctx context.Context) (*client.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn != nil {
		select {
		case <-a.conn.Closed():
			a.conn = nil
			a.userName = ""
		default:
			return a.conn, nil
		}
	}

	conn, err := dialFn(ctx, a.config.ServerAddr, a.config.Encoding)
	if err != nil {
		log.Printf("cannot connect to %s: %v", a.config.ServerAddr, err)
		return nil, err
	}
	a.conn = conn
	go a.watch(conn)
	return conn, nil
}

// watch prints pushed messages and server notices for one connection. It
// runs until the connection's channels are closed.
func (a *App) watch(conn *client.Client) {
	notices := conn.Notices()
	pushes := conn.Pushes()

	for pushes != nil || notices != nil {
		select {
		case msg, ok := <-pushes:
			if !ok {
				pushes = nil
				continue
			}
			fmt.Fprintf(a.out, "\n[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), msg.Sender, msg.Body)

		case notice, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			fmt.Fprintf(a.out, "\nserver: %s\n", notice)
		}
	}

	a.dropConn(conn)
}

// dropConn forgets the given connection (or any connection when conn is
// nil) and closes it.
func (a *App) dropConn(conn *client.Client) {
	a.mu.Lock()
	if conn == nil || a.conn == conn {
		conn = a.conn
		a.conn = nil
		a.userName = ""
	} else {
		conn = nil
	}
	a.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (a *App) setUser(name string) {
	a.mu.Lock()
	a.userName = name
	a.mu.Unlock()
}
