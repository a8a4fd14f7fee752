package registry

import (
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// AddressRegistry maps usernames to their most recently observed UDP
// addresses and back. Both directions are updated atomically so an inbound
// datagram can always be attributed to the user who last registered from its
// source address.
type AddressRegistry struct {
	mu         sync.RWMutex
	userToAddr map[string]*net.UDPAddr
	addrToUser map[string]string // addr.String() -> canonical username
}

// NewAddressRegistry creates an empty address registry.
func NewAddressRegistry() *AddressRegistry {
	return &AddressRegistry{
		userToAddr: make(map[string]*net.UDPAddr),
		addrToUser: make(map[string]string),
	}
}

// canonical lowercases a username. All registry lookups are case-insensitive.
func canonical(username string) string {
	return strings.ToLower(username)
}

// Register records addr as the current address for username, overwriting any
// previous mapping unconditionally. The reverse entry for the user's previous
// address is removed so stale addresses can no longer be attributed to them.
func (r *AddressRegistry) Register(username string, addr *net.UDPAddr) {
	user := canonical(username)

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.userToAddr[user]; ok && prev.String() != addr.String() {
		delete(r.addrToUser, prev.String())
	}
	r.userToAddr[user] = addr
	r.addrToUser[addr.String()] = user

	logrus.WithFields(logrus.Fields{
		"function": "Register",
		"username": user,
		"addr":     addr.String(),
	}).Debug("Registered media address")
}

// ResolveSender returns the username that last registered from addr.
func (r *AddressRegistry) ResolveSender(addr *net.UDPAddr) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.addrToUser[addr.String()]
	return user, ok
}

// ResolveAddress returns the most recently registered address for username.
func (r *AddressRegistry) ResolveAddress(username string) (*net.UDPAddr, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.userToAddr[canonical(username)]
	return addr, ok
}
