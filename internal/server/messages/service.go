// Package messages is the message store and delivery engine: it appends
// messages, tracks read state, lists and deletes, and decides between
// pushing to a live recipient and leaving the message queued in the store.
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatline/internal/common"
	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/protocol"
	"github.com/dmitrijs2005/chatline/internal/server/accounts"
	"github.com/dmitrijs2005/chatline/internal/server/session"
	"github.com/dmitrijs2005/chatline/internal/server/store"
)

const (
	mailboxPrefix = "msg/"
	seqKey        = "meta/message_seq"

	maxBodyLen = 4096
)

type Service struct {
	store    store.Store
	accounts *accounts.Service
	sessions *session.Manager
	logger   logging.Logger

	// mu serializes id allocation and every mailbox read-modify cycle, so
	// one unread_count or list_messages call always observes a consistent
	// snapshot of a mailbox.
	mu sync.Mutex
}

func NewService(st store.Store, accts *accounts.Service, sessions *session.Manager, logger logging.Logger) *Service {
	return &Service{
		store:    st,
		accounts: accts,
		sessions: sessions,
		logger:   logger.With("module", "messages"),
	}
}

// Messages are keyed under their recipient's mailbox with the id padded to a
// fixed width, so a prefix scan returns them in send order.
func messageKey(recipient string, id uint64) string {
	return fmt.Sprintf("%s%s/%020d", mailboxPrefix, recipient, id)
}

func mailboxKeyPrefix(recipient string) string {
	return mailboxPrefix + recipient + "/"
}

// Send persists a message for recipient and, when the recipient is online,
// pushes it to their live connection. Delivery does not imply read: the
// flag flips only when the recipient lists their messages.
func (s *Service) Send(ctx context.Context, sender, recipient, body string) (*protocol.Message, error) {
	if body == "" || len(body) > maxBodyLen {
		return nil, common.ErrValidation
	}

	exists, err := s.accounts.Exists(ctx, recipient)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, common.ErrNoSuchRecipient
	}

	msg, err := s.persist(ctx, sender, recipient, body)
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, msg)
	return msg, nil
}

// persist allocates the next id and writes the message under the single
// service mutex. The sequence is durably advanced before the message is
// written: a crash in between burns an id but never reuses one.
func (s *Service) persist(ctx context.Context, sender, recipient, body string) (*protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, err
	}

	msg := &protocol.Message{
		ID:        id,
		Sender:    sender,
		Recipient: recipient,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}

	value, err := json.Marshal(msg)
	if err != nil {
		return nil, common.ErrInternal
	}

	if err := store.Try(ctx, func(ctx context.Context) error {
		return s.store.Put(ctx, messageKey(recipient, id), value)
	}); err != nil {
		s.logger.Error(ctx, "storing message failed", "recipient", recipient, "id", id, "error", err)
		return nil, common.ErrStore
	}

	return msg, nil
}

func (s *Service) nextID(ctx context.Context) (uint64, error) {
	var last uint64

	var value []byte
	err := store.Try(ctx, func(ctx context.Context) error {
		var err error
		value, err = s.store.Get(ctx, seqKey)
		return err
	})
	switch {
	case err == nil:
		last, err = strconv.ParseUint(string(value), 10, 64)
		if err != nil {
			s.logger.Error(ctx, "corrupt message sequence", "value", string(value))
			return 0, common.ErrStore
		}
	case errors.Is(err, common.ErrNotFound):
		last = 0
	default:
		s.logger.Error(ctx, "reading message sequence failed", "error", err)
		return 0, common.ErrStore
	}

	next := last + 1
	if err := store.Try(ctx, func(ctx context.Context) error {
		return s.store.Put(ctx, seqKey, []byte(strconv.FormatUint(next, 10)))
	}); err != nil {
		s.logger.Error(ctx, "advancing message sequence failed", "error", err)
		return 0, common.ErrStore
	}

	return next, nil
}

// deliver pushes msg to the recipient's session when one is routable. A
// failed push is not an error: the message is already durable and unread,
// so the recipient picks it up on the next list.
func (s *Service) deliver(ctx context.Context, msg *protocol.Message) {
	sess, ok := s.sessions.Route(msg.Recipient)
	if !ok {
		return
	}

	codec, ok := protocol.CodecByName(sess.Encoding)
	if !ok {
		s.logger.Error(ctx, "session has unknown encoding", "encoding", sess.Encoding)
		return
	}

	frame, err := codec.EncodeResponse(&protocol.Response{
		Kind:     protocol.KindNewMessage,
		Messages: []protocol.Message{*msg},
	})
	if err != nil {
		s.logger.Error(ctx, "encoding push failed", "error", err)
		return
	}

	if err := sess.Push(frame); err != nil {
		s.logger.Warn(ctx, "push failed, message stays queued",
			"recipient", msg.Recipient, "id", msg.ID, "error", err)
		return
	}

	s.logger.Debug(ctx, "message pushed", "recipient", msg.Recipient, "id", msg.ID)
}

// UnreadCount returns how many of the user's messages are unread.
func (s *Service) UnreadCount(ctx context.Context, username string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, _, err := s.loadMailbox(ctx, username)
	if err != nil {
		return 0, err
	}

	var count uint64
	for _, m := range msgs {
		if !m.Read {
			count++
		}
	}
	return count, nil
}

// ListMessages returns the user's mailbox in id order and marks every
// returned unread message as read. The returned records carry the
// pre-transition flag, so a first listing shows read=false and any later
// one shows read=true.
func (s *Service) ListMessages(ctx context.Context, username string) ([]protocol.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs, _, err := s.loadMailbox(ctx, username)
	if err != nil {
		return nil, err
	}

	for _, m := range msgs {
		if m.Read {
			continue
		}

		read := m
		read.Read = true
		value, err := json.Marshal(&read)
		if err != nil {
			return nil, common.ErrInternal
		}
		if err := store.Try(ctx, func(ctx context.Context) error {
			return s.store.Put(ctx, messageKey(username, m.ID), value)
		}); err != nil {
			s.logger.Error(ctx, "marking message read failed", "id", m.ID, "error", err)
			return nil, common.ErrStore
		}
	}

	return msgs, nil
}

// Delete permanently removes one message from the caller's mailbox. Only
// the recipient owns its mailbox entries; unknown and foreign ids are both
// reported as not found.
func (s *Service) Delete(ctx context.Context, username string, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := messageKey(username, id)

	err := store.Try(ctx, func(ctx context.Context) error {
		_, err := s.store.Get(ctx, key)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrMessageNotFound
		}
		s.logger.Error(ctx, "loading message failed", "id", id, "error", err)
		return common.ErrStore
	}

	if err := store.Try(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	}); err != nil {
		s.logger.Error(ctx, "deleting message failed", "id", id, "error", err)
		return common.ErrStore
	}

	return nil
}

// DeleteMailbox removes every message addressed to username. Used when the
// account itself is deleted.
func (s *Service) DeleteMailbox(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, keys, err := s.loadMailbox(ctx, username)
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := store.Try(ctx, func(ctx context.Context) error {
			return s.store.Delete(ctx, key)
		}); err != nil {
			s.logger.Error(ctx, "deleting mailbox entry failed", "key", key, "error", err)
			return common.ErrStore
		}
	}
	return nil
}

// loadMailbox reads the user's messages in key order, which is id order by
// construction. Callers must hold s.mu.
func (s *Service) loadMailbox(ctx context.Context, username string) ([]protocol.Message, []string, error) {
	var keys []string
	if err := store.Try(ctx, func(ctx context.Context) error {
		var err error
		keys, err = s.store.KeysWithPrefix(ctx, mailboxKeyPrefix(username))
		return err
	}); err != nil {
		s.logger.Error(ctx, "scanning mailbox failed", "username", username, "error", err)
		return nil, nil, common.ErrStore
	}

	msgs := make([]protocol.Message, 0, len(keys))
	for _, key := range keys {
		var value []byte
		if err := store.Try(ctx, func(ctx context.Context) error {
			var err error
			value, err = s.store.Get(ctx, key)
			return err
		}); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				// Deleted between scan and read; skip.
				continue
			}
			s.logger.Error(ctx, "loading mailbox entry failed", "key", key, "error", err)
			return nil, nil, common.ErrStore
		}

		var m protocol.Message
		if err := json.Unmarshal(value, &m); err != nil {
			s.logger.Error(ctx, "corrupt message record", "key", key, "error", err)
			return nil, nil, common.ErrStore
		}
		msgs = append(msgs, m)
	}

	return msgs, keys, nil
}
