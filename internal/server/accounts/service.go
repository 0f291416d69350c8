// Package accounts owns the account namespace: creation, credential
// verification, listing and deletion.
package accounts

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/chatline/internal/common"
	"github.com/dmitrijs2005/chatline/internal/cryptox"
	"github.com/dmitrijs2005/chatline/internal/logging"
	"github.com/dmitrijs2005/chatline/internal/server/store"
)

const keyPrefix = "account/"

// usernameRegexp also keeps usernames out of the key schema's delimiter
// space, so "account/<username>" stays unambiguous.
var usernameRegexp = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,32}$`)

type Service struct {
	store  store.Store
	logger logging.Logger

	// mu serializes create and delete. The KV store is atomic per key
	// only, so the uniqueness check and the write must not interleave
	// with a concurrent create for the same username.
	mu sync.Mutex
}

func NewService(st store.Store, logger logging.Logger) *Service {
	return &Service{
		store:  st,
		logger: logger.With("module", "accounts"),
	}
}

func accountKey(username string) string { return keyPrefix + username }

// Create registers a new account. It fails with common.ErrUsernameTaken if
// the username exists (case-sensitive exact match) and guarantees that two
// concurrent creates for the same username cannot both succeed.
func (s *Service) Create(ctx context.Context, username, password string) error {
	if !usernameRegexp.MatchString(username) {
		return common.ErrValidation
	}
	if password == "" || len(password) > cryptox.MaxPasswordLen {
		return common.ErrValidation
	}

	hash, err := cryptox.HashPassword([]byte(password))
	if err != nil {
		return common.ErrInternal
	}

	account := &Account{
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	value, err := json.Marshal(account)
	if err != nil {
		return common.ErrInternal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.get(ctx, username)
	switch {
	case err == nil:
		return common.ErrUsernameTaken
	case !errors.Is(err, common.ErrNotFound):
		return err
	}

	if err := store.Try(ctx, func(ctx context.Context) error {
		return s.store.Put(ctx, accountKey(username), value)
	}); err != nil {
		s.logger.Error(ctx, "storing account failed", "username", username, "error", err)
		return common.ErrStore
	}

	s.logger.Info(ctx, "account created", "username", username)
	return nil
}

// Authenticate verifies a credential pair against the stored hash.
func (s *Service) Authenticate(ctx context.Context, username, password string) error {
	account, err := s.get(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNoSuchAccount
		}
		return err
	}

	if !cryptox.VerifyPassword(account.PasswordHash, []byte(password)) {
		return common.ErrWrongPassword
	}
	return nil
}

// Exists reports whether the username has an account.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	_, err := s.get(ctx, username)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Delete removes the account record. The caller is responsible for the
// user's mailbox and any live session.
func (s *Service) Delete(ctx context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.get(ctx, username); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNoSuchAccount
		}
		return err
	}

	if err := store.Try(ctx, func(ctx context.Context) error {
		return s.store.Delete(ctx, accountKey(username))
	}); err != nil {
		s.logger.Error(ctx, "deleting account failed", "username", username, "error", err)
		return common.ErrStore
	}

	s.logger.Info(ctx, "account deleted", "username", username)
	return nil
}

// List returns every username, sorted.
func (s *Service) List(ctx context.Context) ([]string, error) {
	var keys []string
	if err := store.Try(ctx, func(ctx context.Context) error {
		var err error
		keys, err = s.store.KeysWithPrefix(ctx, keyPrefix)
		return err
	}); err != nil {
		s.logger.Error(ctx, "listing accounts failed", "error", err)
		return nil, common.ErrStore
	}

	usernames := make([]string, 0, len(keys))
	for _, k := range keys {
		usernames = append(usernames, strings.TrimPrefix(k, keyPrefix))
	}
	sort.Strings(usernames)
	return usernames, nil
}

func (s *Service) get(ctx context.Context, username string) (*Account, error) {
	var value []byte
	err := store.Try(ctx, func(ctx context.Context) error {
		var err error
		value, err = s.store.Get(ctx, accountKey(username))
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.logger.Error(ctx, "loading account failed", "username", username, "error", err)
		return nil, common.ErrStore
	}

	account := &Account{}
	if err := json.Unmarshal(value, account); err != nil {
		s.logger.Error(ctx, "corrupt account record", "username", username, "error", err)
		return nil, common.ErrStore
	}
	return account, nil
}
