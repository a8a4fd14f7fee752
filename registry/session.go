package registry

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// CallTable tracks which two users are currently in a call with each other.
// The pairing is symmetric: both directions are inserted and removed together.
//
// RegisterCall is last-writer-wins. Pairing a user who already has a partner
// overwrites only that user's entry, leaving the abandoned partner's reverse
// entry dangling until it is ended or overwritten in turn. Callers are
// expected to EndCall both parties before registering a new pairing.
type CallTable struct {
	mu       sync.RWMutex
	partners map[string]string
}

// NewCallTable creates an empty call table.
func NewCallTable() *CallTable {
	return &CallTable{
		partners: make(map[string]string),
	}
}

// RegisterCall pairs userA with userB in both directions.
func (t *CallTable) RegisterCall(userA, userB string) {
	a, b := canonical(userA), canonical(userB)

	t.mu.Lock()
	t.partners[a] = b
	t.partners[b] = a
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "RegisterCall",
		"user_a":   a,
		"user_b":   b,
	}).Info("Call session registered")
}

// EndCall removes user's pairing and, if the partner still points back at
// user, the partner's entry as well. No-op when user has no active call.
func (t *CallTable) EndCall(user string) {
	u := canonical(user)

	t.mu.Lock()
	partner, ok := t.partners[u]
	if ok {
		delete(t.partners, u)
		if t.partners[partner] == u {
			delete(t.partners, partner)
		}
	}
	t.mu.Unlock()

	if ok {
		logrus.WithFields(logrus.Fields{
			"function": "EndCall",
			"user":     u,
			"partner":  partner,
		}).Info("Call session ended")
	}
}

// LookupPartner returns the user's current call partner.
func (t *CallTable) LookupPartner(user string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	partner, ok := t.partners[canonical(user)]
	return partner, ok
}
