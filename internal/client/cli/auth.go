package cli

import (
	"context"
	"fmt"
	"log"

	"github.com/dmitrijs2005/chatline/internal/common"
)

// Register creates a new account. It does not log the user in; a fresh
// login is still required afterwards.
func (a *App) Register(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	username, password, err := a.promptCredentials("Choose a username")
	if err != nil {
		return err
	}

	err = conn.CreateAccount(ctx, username, string(password))
	common.WipeByteArray(password)
	if err != nil {
		log.Printf("registration failed: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "Account %q created, you can now log in\n", username)
	return nil
}

// Login authenticates the connection and reports the unread count.
func (a *App) Login(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	username, password, err := a.promptCredentials("Username")
	if err != nil {
		return err
	}

	unread, err := conn.Login(ctx, username, string(password))
	common.WipeByteArray(password)
	if err != nil {
		log.Printf("login failed: %v", err)
		return err
	}

	a.setUser(username)
	fmt.Fprintf(a.out, "Logged in as %s, %d unread message(s)\n", username, unread)
	return nil
}

// Logout ends the session. The server closes the connection, so the next
// command dials a fresh one.
func (a *App) Logout(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	loggedIn := a.userName != ""
	a.mu.Unlock()

	if conn == nil || !loggedIn {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	if err := conn.Logout(ctx); err != nil {
		log.Printf("logout failed: %v", err)
	}
	a.dropConn(conn)
	fmt.Fprintln(a.out, "Logged out")
	return nil
}

// DeleteAccount removes the logged-in user's account together with the
// mailbox. Asks for confirmation first.
func (a *App) DeleteAccount(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	userName := a.userName
	a.mu.Unlock()

	if conn == nil || userName == "" {
		fmt.Fprintln(a.out, "Not logged in")
		return nil
	}

	answer, err := a.promptLine(
		fmt.Sprintf("Delete account %q and all its messages? (yes/no)", userName))
	if err != nil {
		return err
	}
	if answer != "yes" {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}

	if err := conn.DeleteAccount(ctx); err != nil {
		log.Printf("account deletion failed: %v", err)
		return err
	}
	a.dropConn(conn)
	fmt.Fprintln(a.out, "Account deleted")
	return nil
}
