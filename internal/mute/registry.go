// Package mute tracks per-identity alert suppression windows.
package mute

import (
	"strings"
	"sync"
	"time"
)

// Registry maps an identity to the instant its mute expires.
// Identities must be initialised before they can be muted.
type Registry struct {
	mu    sync.RWMutex
	until map[string]time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{until: make(map[string]time.Time)}
}

// Init registers id as unmuted. Existing state is kept.
func (r *Registry) Init(id string) {
	if !valid(id) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.until[id]; !ok {
		r.until[id] = time.Time{}
	}
}

// Contains reports whether id has been initialised.
func (r *Registry) Contains(id string) bool {
	if !valid(id) {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.until[id]
	return ok
}

// MuteFor silences id for minutes from now, replacing any current mute.
// It returns false for unknown identities.
func (r *Registry) MuteFor(id string, minutes int, now time.Time) bool {
	return r.muteUntil(id, now.Add(time.Duration(minutes)*time.Minute))
}

func (r *Registry) muteUntil(id string, until time.Time) bool {
	if !valid(id) {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.until[id]; !ok {
		return false
	}
	r.until[id] = until
	return true
}

// Unmute clears the mute of id. It returns false for unknown identities.
func (r *Registry) Unmute(id string) bool {
	return r.muteUntil(id, time.Time{})
}

// IsMuted reports whether id is muted at now.
func (r *Registry) IsMuted(id string, now time.Time) bool {
	if !valid(id) {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	until, ok := r.until[id]
	return ok && until.After(now)
}

// MutedUntil returns the expiry for id, zero when unmuted or unknown.
func (r *Registry) MutedUntil(id string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.until[id]
}

func valid(id string) bool {
	return strings.TrimSpace(id) != ""
}
