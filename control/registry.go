package control

import (
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Registry owns the set of live connection handlers and the set of known
// channel names. It is the only component allowed to mutate either; handlers
// call in, never the other way around.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]*Handler // canonical username -> handler
	channels map[string]struct{}

	defaultChannel string
}

// NewRegistry creates a registry seeded with the given channels. The first
// channel is the one new connections land in.
func NewRegistry(channels []string) *Registry {
	if len(channels) == 0 {
		channels = []string{"general"}
	}

	r := &Registry{
		conns:          make(map[string]*Handler),
		channels:       make(map[string]struct{}),
		defaultChannel: strings.ToLower(channels[0]),
	}
	for _, ch := range channels {
		r.channels[strings.ToLower(ch)] = struct{}{}
	}
	return r
}

// DefaultChannel is the channel new connections are placed in.
func (r *Registry) DefaultChannel() string {
	return r.defaultChannel
}

// TryClaim atomically checks that username is free across all live
// connections (case-insensitive) and reserves it for h. Exactly one of two
// concurrent claims for the same name succeeds.
func (r *Registry) TryClaim(username string, h *Handler) bool {
	user := strings.ToLower(username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.conns[user]; taken {
		return false
	}
	r.conns[user] = h

	logrus.WithFields(logrus.Fields{
		"function": "TryClaim",
		"username": user,
	}).Info("Username claimed")

	return true
}

// Unregister removes username's connection record. No-op for unknown names.
func (r *Registry) Unregister(username string) {
	user := strings.ToLower(username)

	r.mu.Lock()
	_, ok := r.conns[user]
	delete(r.conns, user)
	r.mu.Unlock()

	if ok {
		logrus.WithFields(logrus.Fields{
			"function": "Unregister",
			"username": user,
		}).Info("Connection deregistered")
	}
}

// Lookup returns the live handler for username.
func (r *Registry) Lookup(username string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.conns[strings.ToLower(username)]
	return h, ok
}

// ConnectedUsers returns the usernames of all live connections, sorted.
func (r *Registry) ConnectedUsers() []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.conns))
	for user := range r.conns {
		users = append(users, user)
	}
	r.mu.RUnlock()

	sort.Strings(users)
	return users
}

// snapshot copies the live handler set so broadcast iteration is unaffected
// by concurrent registration and removal.
func (r *Registry) snapshot() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handlers := make([]*Handler, 0, len(r.conns))
	for _, h := range r.conns {
		handlers = append(handlers, h)
	}
	return handlers
}

// BroadcastGlobal delivers line to every live connection except the sender.
// Delivery is fire-and-forget per recipient; a full outbound queue on one
// connection never affects the others.
func (r *Registry) BroadcastGlobal(line string, except *Handler) {
	for _, h := range r.snapshot() {
		if h == except {
			continue
		}
		h.Send(line)
	}
	logrus.WithFields(logrus.Fields{
		"function": "BroadcastGlobal",
		"line":     line,
	}).Debug("Broadcast line")
}

// BroadcastToChannel delivers a channel-tagged message to every live
// connection, members or not, so clients can archive channels they are not
// viewing. The recipient decides whether to display it.
func (r *Registry) BroadcastToChannel(channel, content string, except *Handler) {
	r.BroadcastGlobal(chanMsgLine(channel, content), except)
}

// EnsureChannel adds channel to the known set, reporting whether it was new.
// The first reference to a new channel makes it visible to everyone.
func (r *Registry) EnsureChannel(channel string) bool {
	ch := strings.ToLower(channel)

	r.mu.Lock()
	_, exists := r.channels[ch]
	if !exists {
		r.channels[ch] = struct{}{}
	}
	r.mu.Unlock()

	if !exists {
		logrus.WithFields(logrus.Fields{
			"function": "EnsureChannel",
			"channel":  ch,
		}).Info("New channel referenced")
	}
	return !exists
}

// Channels returns the known channel names, sorted.
func (r *Registry) Channels() []string {
	r.mu.RLock()
	channels := make([]string, 0, len(r.channels))
	for ch := range r.channels {
		channels = append(channels, ch)
	}
	r.mu.RUnlock()

	sort.Strings(channels)
	return channels
}

// AnnounceUserList broadcasts the usernames currently in channel, tagged with
// the channel name.
func (r *Registry) AnnounceUserList(channel string) {
	ch := strings.ToLower(channel)

	users := make([]string, 0)
	for _, h := range r.snapshot() {
		if h.Channel() == ch {
			users = append(users, h.Username())
		}
	}
	sort.Strings(users)

	r.BroadcastGlobal(userListLine(ch, users), nil)
}

// AnnounceChannelList broadcasts the full known-channel set to everyone.
func (r *Registry) AnnounceChannelList() {
	r.BroadcastGlobal(channelListLine(r.Channels()), nil)
}
