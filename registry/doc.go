// Package registry provides the shared bookkeeping used by the media relays
// and the control plane: the address registry mapping usernames to their most
// recently observed UDP addresses, and the call table pairing two users in an
// active call.
//
// # Address Registry
//
// The AddressRegistry keeps two maps in lockstep under one mutex:
//
//	username -> *net.UDPAddr  (where to forward)
//	address  -> username      (who sent an inbound datagram)
//
// Registration is last-writer-wins with no staleness check. Entries are never
// explicitly deleted; a stale address simply stops matching once the user
// registers again from somewhere else.
//
// # Call Table
//
// The CallTable is a symmetric pairing: after RegisterCall(a, b), looking up
// either side yields the other. RegisterCall overwrites any prior pairing for
// either user without tearing the old one down, so callers must EndCall stale
// sessions first. Each media relay owns its own CallTable instance; the
// control plane fans call updates out to every relay.
//
// # Thread Safety
//
// Both types are safe for concurrent use from many goroutines and use
// sync.RWMutex internally.
package registry
