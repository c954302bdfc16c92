package services

import (
	"strings"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog/log"
)

// Presences is online when any member is
type Presences []Presence

// IsOnline reports whether any member sees the identity online
func (p Presences) IsOnline(userID string) bool {
	for _, presence := range p {
		if presence != nil && presence.IsOnline(userID) {
			return true
		}
	}
	return false
}

// FormatPresence encodes a presence change of userID on instance
func FormatPresence(instance, userID string, online bool) string {
	state := "-"
	if online {
		state = "+"
	}
	return instance + " " + state + " " + userID
}

// ParsePresence decodes a payload written by FormatPresence
func ParsePresence(payload string) (instance, userID string, online bool, ok bool) {
	parts := strings.SplitN(payload, " ", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", false, false
	}
	switch parts[1] {
	case "+":
		online = true
	case "-":
	default:
		return "", "", false, false
	}
	return parts[0], parts[2], online, true
}

// RemotePresence tracks identities with sessions on other instances. An
// entry lapses after ttl unless a heartbeat renews it, so a crashed instance
// never pins its users online.
type RemotePresence struct {
	self  string
	cache *ttlcache.Cache[string, struct{}]

	mu        sync.RWMutex
	instances map[string]struct{}
}

// NewRemotePresence creates a tracker ignoring announcements from self
func NewRemotePresence(self string, ttl time.Duration) *RemotePresence {
	cache := ttlcache.New[string, struct{}](
		ttlcache.WithTTL[string, struct{}](ttl),
		ttlcache.WithDisableTouchOnHit[string, struct{}](),
	)
	go cache.Start()

	return &RemotePresence{
		self:      self,
		cache:     cache,
		instances: make(map[string]struct{}),
	}
}

// Observe applies one announcement
func (p *RemotePresence) Observe(payload string) {
	instance, userID, online, ok := ParsePresence(payload)
	if !ok {
		log.Debug().Str("payload", payload).Msg("Ignored malformed presence announcement")
		return
	}
	if instance == p.self {
		return
	}

	key := instance + "\x00" + userID
	if !online {
		p.cache.Delete(key)
		return
	}

	p.mu.Lock()
	p.instances[instance] = struct{}{}
	p.mu.Unlock()
	p.cache.Set(key, struct{}{}, ttlcache.DefaultTTL)
}

// IsOnline reports whether another instance recently announced the identity
func (p *RemotePresence) IsOnline(userID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for instance := range p.instances {
		if p.cache.Get(instance+"\x00"+userID) != nil {
			return true
		}
	}
	return false
}

// Stop halts the expiry janitor
func (p *RemotePresence) Stop() {
	p.cache.Stop()
}
