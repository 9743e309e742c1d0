// Package auth holds the username whitelist and the chats registered by
// authorised users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"cgm-alerts/internal/logging"
	"cgm-alerts/internal/storage"
)

// ErrNotAuthorized is returned when a username is not whitelisted.
var ErrNotAuthorized = errors.New("auth: username not whitelisted")

// Directory maps whitelisted usernames to their chat ids.
type Directory struct {
	mu        sync.RWMutex
	whitelist map[string]struct{}
	chats     map[string]int64
	store     storage.SubscriberStore
	logger    zerolog.Logger
}

// NewDirectory builds a directory over whitelist. store may be nil, in which
// case registrations live only in memory.
func NewDirectory(whitelist []string, store storage.SubscriberStore, logger zerolog.Logger) *Directory {
	allowed := make(map[string]struct{}, len(whitelist))
	for _, name := range whitelist {
		name = Normalize(name)
		if name == "" {
			continue
		}
		allowed[name] = struct{}{}
	}
	return &Directory{
		whitelist: allowed,
		chats:     make(map[string]int64),
		store:     store,
		logger:    logging.Component(logger, "auth_directory"),
	}
}

// Load reads persisted subscribers, dropping those no longer whitelisted.
func (d *Directory) Load(ctx context.Context) error {
	if d.store == nil {
		return nil
	}
	subs, err := d.store.ListSubscribers(ctx)
	if err != nil {
		return fmt.Errorf("load subscribers: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sub := range subs {
		name := Normalize(sub.Username)
		if _, ok := d.whitelist[name]; !ok {
			d.logger.Info().Str("username", sub.Username).Msg("ignoring subscriber no longer whitelisted")
			continue
		}
		d.chats[name] = sub.ChatID
	}
	d.logger.Info().Int("subscribers", len(d.chats)).Msg("directory loaded")
	return nil
}

// IsAuthorized reports whether username is whitelisted.
func (d *Directory) IsAuthorized(username string) bool {
	name := Normalize(username)
	if name == "" {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.whitelist[name]
	return ok
}

// Register binds username to chatID and persists it.
func (d *Directory) Register(ctx context.Context, username string, chatID int64) error {
	if !d.IsAuthorized(username) {
		d.logger.Warn().Str("username", username).Int64("chat_id", chatID).Msg("unauthorized registration attempt")
		return ErrNotAuthorized
	}
	name := Normalize(username)

	if d.store != nil {
		if err := d.store.UpsertSubscriber(ctx, storage.Subscriber{Username: name, ChatID: chatID}); err != nil {
			return fmt.Errorf("register %s: %w", name, err)
		}
	}

	d.mu.Lock()
	d.chats[name] = chatID
	d.mu.Unlock()
	return nil
}

// ChatID returns the chat registered for username.
func (d *Directory) ChatID(username string) (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.chats[Normalize(username)]
	return id, ok
}

// Subscribers lists registered users ordered by username.
func (d *Directory) Subscribers() []storage.Subscriber {
	d.mu.RLock()
	subs := make([]storage.Subscriber, 0, len(d.chats))
	for name, id := range d.chats {
		subs = append(subs, storage.Subscriber{Username: name, ChatID: id})
	}
	d.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].Username < subs[j].Username })
	return subs
}

// Normalize trims whitespace and a leading "@" from a Telegram username.
func Normalize(username string) string {
	return strings.TrimPrefix(strings.TrimSpace(username), "@")
}
