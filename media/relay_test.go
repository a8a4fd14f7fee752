package media

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseRegistration tests the registration classification heuristic.
func TestParseRegistration(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantUser string
		wantOK   bool
	}{
		{
			name:     "plain registration",
			data:     []byte("LINK:alice"),
			wantUser: "alice",
			wantOK:   true,
		},
		{
			name:     "trailing whitespace trimmed",
			data:     []byte("LINK:bob \n"),
			wantUser: "bob",
			wantOK:   true,
		},
		{
			name:   "payload bytes",
			data:   []byte{0x01, 0x02, 0x03, 0x04},
			wantOK: false,
		},
		{
			name:   "tag but at threshold length",
			data:   append([]byte("LINK:"), bytes.Repeat([]byte{'x'}, registrationMaxLen)...),
			wantOK: false,
		},
		{
			name:     "tag just under threshold",
			data:     append([]byte("LINK:"), bytes.Repeat([]byte{'x'}, registrationMaxLen-6)...),
			wantUser: string(bytes.Repeat([]byte{'x'}, registrationMaxLen-6)),
			wantOK:   true,
		},
		{
			name:   "short payload without tag",
			data:   []byte("hello"),
			wantOK: false,
		},
		{
			name:     "empty username",
			data:     []byte("LINK:"),
			wantUser: "",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, ok := parseRegistration(tt.data)
			if ok != tt.wantOK {
				t.Fatalf("parseRegistration() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && user != tt.wantUser {
				t.Errorf("parseRegistration() user = %q, want %q", user, tt.wantUser)
			}
		})
	}
}

func TestKindBufferSizes(t *testing.T) {
	if got := Audio.bufferSize(); got != audioBufferSize {
		t.Errorf("Audio buffer = %d, want %d", got, audioBufferSize)
	}
	if got := Video.bufferSize(); got != videoBufferSize {
		t.Errorf("Video buffer = %d, want %d", got, videoBufferSize)
	}
}

// mediaClient is a test UDP endpoint that registers with a relay and
// exchanges payloads with it.
type mediaClient struct {
	t    *testing.T
	conn *net.UDPConn
}

func newMediaClient(t *testing.T) *mediaClient {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &mediaClient{t: t, conn: conn}
}

func (c *mediaClient) send(relay *Relay, data []byte) {
	c.t.Helper()
	_, err := c.conn.WriteToUDP(data, relay.LocalAddr())
	require.NoError(c.t, err)
}

func (c *mediaClient) register(relay *Relay, username string) {
	c.send(relay, []byte(registrationTag+username))
}

func (c *mediaClient) receive(timeout time.Duration) ([]byte, error) {
	c.t.Helper()
	buf := make([]byte, videoBufferSize)
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(timeout)))
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func newTestRelay(t *testing.T, kind Kind) *Relay {
	t.Helper()
	relay, err := NewRelay(kind, 0)
	require.NoError(t, err)
	t.Cleanup(func() { relay.Close() })
	return relay
}

func waitRegistered(t *testing.T, relay *Relay, count uint64) {
	t.Helper()
	require.Eventually(t, func() bool {
		return relay.Stats().Registered >= count
	}, time.Second, 5*time.Millisecond)
}

// Two registered users in a call: a payload from one arrives at the other
// byte-for-byte at the address it last registered from.
func TestRelayForwardsBetweenCallPartners(t *testing.T) {
	relay := newTestRelay(t, Audio)
	alice := newMediaClient(t)
	bob := newMediaClient(t)

	alice.register(relay, "alice")
	bob.register(relay, "bob")
	waitRegistered(t, relay, 2)

	relay.RegisterCall("alice", "bob")

	frame := bytes.Repeat([]byte{0xAB}, 960)
	alice.send(relay, frame)

	got, err := bob.receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, frame, got, "payload must be forwarded verbatim")
	assert.Len(t, got, 960)
}

func TestRelayDropsFromUnknownSender(t *testing.T) {
	relay := newTestRelay(t, Audio)
	stranger := newMediaClient(t)

	stranger.send(relay, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD})

	require.Eventually(t, func() bool {
		return relay.Stats().Dropped == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, relay.Stats().Forwarded)
}

func TestRelayDropsWithoutCallSession(t *testing.T) {
	relay := newTestRelay(t, Audio)
	alice := newMediaClient(t)

	alice.register(relay, "alice")
	waitRegistered(t, relay, 1)

	alice.send(relay, bytes.Repeat([]byte{0x01}, 320))

	require.Eventually(t, func() bool {
		return relay.Stats().Dropped == 1
	}, time.Second, 5*time.Millisecond)
}

// After EndCall a previously paired sender's payloads have no forward target.
func TestRelayDropsAfterEndCall(t *testing.T) {
	relay := newTestRelay(t, Audio)
	alice := newMediaClient(t)
	bob := newMediaClient(t)

	alice.register(relay, "alice")
	bob.register(relay, "bob")
	waitRegistered(t, relay, 2)

	relay.RegisterCall("alice", "bob")
	relay.EndCall("alice")

	alice.send(relay, bytes.Repeat([]byte{0x02}, 320))

	require.Eventually(t, func() bool {
		return relay.Stats().Dropped == 1
	}, time.Second, 5*time.Millisecond)

	_, err := bob.receive(100 * time.Millisecond)
	assert.Error(t, err, "bob must not receive anything after the call ended")
}

// A payload is dropped when the partner is paired but never registered an
// address with this relay.
func TestRelayDropsWhenPartnerUnregistered(t *testing.T) {
	relay := newTestRelay(t, Audio)
	alice := newMediaClient(t)

	alice.register(relay, "alice")
	waitRegistered(t, relay, 1)

	relay.RegisterCall("alice", "bob")
	alice.send(relay, bytes.Repeat([]byte{0x03}, 128))

	require.Eventually(t, func() bool {
		return relay.Stats().Dropped == 1
	}, time.Second, 5*time.Millisecond)
}

// Re-registering from a new socket redirects forwarding to the new address.
func TestRelayFollowsReRegistration(t *testing.T) {
	relay := newTestRelay(t, Audio)
	alice := newMediaClient(t)
	bobOld := newMediaClient(t)
	bobNew := newMediaClient(t)

	alice.register(relay, "alice")
	bobOld.register(relay, "bob")
	waitRegistered(t, relay, 2)

	relay.RegisterCall("alice", "bob")

	bobNew.register(relay, "bob")
	waitRegistered(t, relay, 3)

	frame := []byte("voice frame payload")
	alice.send(relay, frame)

	got, err := bobNew.receive(time.Second)
	require.NoError(t, err)
	assert.Equal(t, frame, got)

	_, err = bobOld.receive(100 * time.Millisecond)
	assert.Error(t, err, "stale address must not receive forwards")
}

// The video relay must carry datagrams far beyond the audio buffer size.
func TestVideoRelayLargePayload(t *testing.T) {
	relay := newTestRelay(t, Video)
	alice := newMediaClient(t)
	bob := newMediaClient(t)

	alice.register(relay, "alice")
	bob.register(relay, "bob")
	waitRegistered(t, relay, 2)

	relay.RegisterCall("alice", "bob")

	frame := bytes.Repeat([]byte{0x7F}, 48*1024)
	alice.send(relay, frame)

	got, err := bob.receive(time.Second)
	require.NoError(t, err)
	require.Len(t, got, len(frame))
	assert.True(t, bytes.Equal(frame, got))
}

func TestRelayCloseStopsLoop(t *testing.T) {
	relay, err := NewRelay(Audio, 0)
	require.NoError(t, err)
	require.NoError(t, relay.Close())

	// Close waits for the receive loop to exit; a second close errors but
	// must not panic or hang.
	assert.Error(t, relay.Close())
}
