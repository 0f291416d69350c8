package cli

import (
	"context"
	"fmt"
	"log"
	"strconv"
)

// Send prompts for a recipient and a body and delivers the message.
func (a *App) Send(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	recipient, err := a.promptLine("Recipient")
	if err != nil {
		return err
	}
	body, err := a.promptBody("Message")
	if err != nil {
		return err
	}

	id, err := conn.Send(ctx, recipient, body)
	if err != nil {
		log.Printf("send failed: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "Sent, message id %d\n", id)
	return nil
}

// Inbox prints the whole mailbox in id order. Reading marks everything as
// read on the server.
func (a *App) Inbox(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	msgs, err := conn.ListMessages(ctx)
	if err != nil {
		log.Printf("inbox failed: %v", err)
		return err
	}

	if len(msgs) == 0 {
		fmt.Fprintln(a.out, "Inbox is empty")
		return nil
	}

	for _, m := range msgs {
		marker := " "
		if !m.Read {
			marker = "*"
		}
		fmt.Fprintf(a.out, "%s %6d  %s  %s: %s\n",
			marker, m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04"), m.Sender, m.Body)
	}
	return nil
}

// Unread prints the unread message count without marking anything read.
func (a *App) Unread(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	n, err := conn.UnreadCount(ctx)
	if err != nil {
		log.Printf("unread failed: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "%d unread message(s)\n", n)
	return nil
}

// Delete removes one message from the user's own mailbox by id.
func (a *App) Delete(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	raw, err := a.promptLine("Message id to delete")
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		fmt.Fprintf(a.out, "Invalid id %q\n", raw)
		return err
	}

	if err := conn.DeleteMessage(ctx, id); err != nil {
		log.Printf("delete failed: %v", err)
		return err
	}

	fmt.Fprintf(a.out, "Message %d deleted\n", id)
	return nil
}

// Accounts lists every registered username. Available before login.
func (a *App) Accounts(ctx context.Context) error {
	conn, err := a.ensureConn(ctx)
	if err != nil {
		return err
	}

	names, err := conn.ListAccounts(ctx)
	if err != nil {
		log.Printf("accounts failed: %v", err)
		return err
	}

	if len(names) == 0 {
		fmt.Fprintln(a.out, "No accounts yet")
		return nil
	}
	for _, name := range names {
		fmt.Fprintln(a.out, name)
	}
	return nil
}
