package media

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatrelay/registry"
)

// Kind selects the media type a relay carries, which fixes its receive
// buffer size.
type Kind uint8

const (
	// Audio relays small PCM voice frames.
	Audio Kind = iota
	// Video relays compressed still images up to the maximum UDP payload.
	Video
)

const (
	// registrationTag prefixes every registration datagram.
	registrationTag = "LINK:"

	// registrationMaxLen is the classification length threshold: only
	// datagrams shorter than this are considered as registrations.
	registrationMaxLen = 100

	// audioBufferSize fits low-latency voice frames (~1 KB typical).
	audioBufferSize = 2048

	// videoBufferSize is the maximum UDP payload size.
	videoBufferSize = 65535
)

// String returns the kind's name for logging.
func (k Kind) String() string {
	if k == Video {
		return "video"
	}
	return "audio"
}

func (k Kind) bufferSize() int {
	if k == Video {
		return videoBufferSize
	}
	return audioBufferSize
}

// Stats counts relay activity. Per-packet drops are counted, never logged:
// at media rates logging them would flood the output.
type Stats struct {
	Registered uint64
	Forwarded  uint64
	Dropped    uint64
}

// Relay forwards media datagrams between the two parties of a call. It keeps
// its own address registry and call table; the control plane mirrors call
// setup and teardown into every relay it manages.
type Relay struct {
	kind  Kind
	conn  *net.UDPConn
	addrs *registry.AddressRegistry
	calls *registry.CallTable

	registered atomic.Uint64
	forwarded  atomic.Uint64
	dropped    atomic.Uint64

	done chan struct{}
}

// NewRelay binds a UDP socket on port and starts the receive loop. A bind
// failure is fatal for the relay: the error is returned and nothing runs.
func NewRelay(kind Kind, port int) (*Relay, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("bind %s relay on port %d: %w", kind, port, err)
	}

	r := &Relay{
		kind:  kind,
		conn:  conn,
		addrs: registry.NewAddressRegistry(),
		calls: registry.NewCallTable(),
		done:  make(chan struct{}),
	}

	go r.receiveLoop()

	logrus.WithFields(logrus.Fields{
		"function": "NewRelay",
		"kind":     kind.String(),
		"addr":     conn.LocalAddr().String(),
	}).Info("Media relay started")

	return r, nil
}

// RegisterCall mirrors a call pairing into this relay's call table.
func (r *Relay) RegisterCall(userA, userB string) {
	r.calls.RegisterCall(userA, userB)
}

// EndCall mirrors a call teardown into this relay's call table.
func (r *Relay) EndCall(user string) {
	r.calls.EndCall(user)
}

// LookupPartner reports user's current partner in this relay's call table.
func (r *Relay) LookupPartner(user string) (string, bool) {
	return r.calls.LookupPartner(user)
}

// LocalAddr returns the relay's bound UDP address.
func (r *Relay) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Stats returns a snapshot of the relay's counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Registered: r.registered.Load(),
		Forwarded:  r.forwarded.Load(),
		Dropped:    r.dropped.Load(),
	}
}

// Close shuts the relay down. The receive loop exits once the socket read
// fails with net.ErrClosed.
func (r *Relay) Close() error {
	err := r.conn.Close()
	<-r.done
	return err
}

// receiveLoop reads one datagram at a time and never blocks on anything but
// the socket. A read error on a live socket is logged and the loop continues;
// a closed socket ends the loop.
func (r *Relay) receiveLoop() {
	defer close(r.done)

	buf := make([]byte, r.kind.bufferSize())
	for {
		n, addr, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logrus.WithFields(logrus.Fields{
					"function": "receiveLoop",
					"kind":     r.kind.String(),
				}).Info("Media relay stopped")
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "receiveLoop",
				"kind":     r.kind.String(),
				"error":    err,
			}).Error("Media relay read failed")
			continue
		}

		r.handleDatagram(buf[:n], addr)
	}
}

// handleDatagram classifies one inbound datagram and either records a
// registration or forwards a payload.
func (r *Relay) handleDatagram(data []byte, addr *net.UDPAddr) {
	if username, ok := parseRegistration(data); ok {
		r.addrs.Register(username, addr)
		r.registered.Add(1)
		return
	}
	r.forwardPayload(data, addr)
}

// parseRegistration reports whether data is a registration datagram and, if
// so, the username it announces. The check is the wire heuristic: short and
// prefixed with the registration tag.
func parseRegistration(data []byte) (string, bool) {
	if len(data) >= registrationMaxLen {
		return "", false
	}
	if !bytes.HasPrefix(data, []byte(registrationTag)) {
		return "", false
	}
	return strings.TrimSpace(string(data[len(registrationTag):])), true
}

// forwardPayload routes a payload datagram to the sender's call partner.
// Unknown sender, no partner, or an unregistered partner address all drop the
// packet without logging.
func (r *Relay) forwardPayload(data []byte, from *net.UDPAddr) {
	sender, ok := r.addrs.ResolveSender(from)
	if !ok {
		r.dropped.Add(1)
		return
	}

	partner, ok := r.calls.LookupPartner(sender)
	if !ok {
		r.dropped.Add(1)
		return
	}

	dest, ok := r.addrs.ResolveAddress(partner)
	if !ok {
		r.dropped.Add(1)
		return
	}

	if _, err := r.conn.WriteToUDP(data, dest); err != nil {
		r.dropped.Add(1)
		return
	}
	r.forwarded.Add(1)
}
