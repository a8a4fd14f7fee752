package control

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatrelay/auth"
	"github.com/opd-ai/chatrelay/history"
)

// CallController mirrors call setup and teardown into every media relay. The
// control plane never touches relay state directly; it issues these two calls
// and the implementation fans them out.
type CallController interface {
	// RegisterCall pairs two users in every relay.
	RegisterCall(userA, userB string)

	// EndCall tears down user's pairing in every relay, returning the
	// partner that was paired, if any.
	EndCall(user string) (partner string, ended bool)
}

// State is a connection handler's lifecycle phase.
type State uint8

const (
	StateConnecting State = iota
	StateAuthenticating
	StateActive
	StateClosed
)

const (
	// outboundQueueLen bounds the per-connection outbound queue. A
	// recipient that falls this far behind starts losing lines.
	outboundQueueLen = 64

	// writeTimeout bounds one line write to a recipient.
	writeTimeout = 5 * time.Second

	// maxLineLen bounds one inbound line. Avatar uploads are base64 text
	// on a single line, so this is generous.
	maxLineLen = 512 * 1024

	// historyReplayCount is how many archived messages a client receives
	// when entering a channel.
	historyReplayCount = 50
)

// Deps are the collaborators a handler delegates to.
type Deps struct {
	Registry    *Registry
	Credentials auth.CredentialStore
	History     history.Store
	Calls       CallController
}

// Handler runs one client's TCP session: the blocking line-read loop, command
// parsing, and delegation to the broadcaster and collaborators. One goroutine
// reads, a second drains the outbound queue.
type Handler struct {
	conn net.Conn
	deps Deps

	// username is set once, just before the registry claim, and never
	// changes while the handler is registered.
	username string
	claimed  bool

	mu        sync.Mutex
	state     State
	channel   string
	avatar    string
	statusMsg string
	status    string

	// dropped counts lines lost to a full outbound queue.
	dropped atomic.Uint64

	out     chan string
	closing chan struct{}
	once    sync.Once
}

func newHandler(conn net.Conn, deps Deps) *Handler {
	return &Handler{
		conn:    conn,
		deps:    deps,
		state:   StateConnecting,
		channel: deps.Registry.DefaultChannel(),
		out:     make(chan string, outboundQueueLen),
		closing: make(chan struct{}),
	}
}

// Username returns the claimed username (empty before the handshake wins).
func (h *Handler) Username() string {
	return h.username
}

// Channel returns the client's current channel.
func (h *Handler) Channel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channel
}

func (h *Handler) setChannel(channel string) {
	h.mu.Lock()
	h.channel = channel
	h.mu.Unlock()
}

// State returns the handler's current lifecycle phase.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) setState(s State) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

// Dropped reports how many lines this connection has lost to a full
// outbound queue.
func (h *Handler) Dropped() uint64 {
	return h.dropped.Load()
}

// profileLines renders the user's stored profile as the same lines its
// updates broadcast, for catch-up delivery to late joiners.
func (h *Handler) profileLines() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var lines []string
	if h.status != "" {
		lines = append(lines, statusLine(h.username, h.status))
	}
	if h.statusMsg != "" {
		lines = append(lines, userMsgLine(h.username, h.statusMsg))
	}
	if h.avatar != "" {
		lines = append(lines, avatarLine(h.username, h.avatar))
	}
	return lines
}

// Send queues one line for delivery. It never blocks: when the recipient's
// queue is full the line is dropped for that recipient only.
func (h *Handler) Send(line string) {
	select {
	case h.out <- line:
	case <-h.closing:
	default:
		h.dropped.Add(1)
		logrus.WithFields(logrus.Fields{
			"function": "Send",
			"username": h.username,
		}).Warn("Outbound queue full, dropping line")
	}
}

// run drives the session to completion. It blocks until the connection
// closes and always leaves the registry clean.
func (h *Handler) run() {
	defer h.teardown()

	go h.writeLoop()

	scanner := bufio.NewScanner(h.conn)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLen)

	if !h.authenticate(scanner) {
		return
	}
	h.activeLoop(scanner)
}

// writeLoop drains the outbound queue onto the socket. A write fault closes
// the connection, which surfaces as a read error in the session goroutine.
func (h *Handler) writeLoop() {
	for {
		select {
		case line := <-h.out:
			_ = h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if _, err := fmt.Fprintln(h.conn, line); err != nil {
				h.conn.Close()
				return
			}
		case <-h.closing:
			return
		}
	}
}

// authenticate prompts for a username until the claim wins, then runs the
// post-handshake announcements. Returns false when the connection ends first.
func (h *Handler) authenticate(scanner *bufio.Scanner) bool {
	h.setState(StateAuthenticating)

	for {
		h.Send(promptUsername)
		if !scanner.Scan() {
			return false
		}

		name := strings.TrimSpace(scanner.Text())
		if name == "" || strings.ContainsAny(name, " \t") {
			h.Send(logLine("invalid username"))
			continue
		}

		h.username = strings.ToLower(name)
		if h.deps.Registry.TryClaim(name, h) {
			break
		}
		h.Send(logLine("username already taken"))
	}
	h.claimed = true
	h.setState(StateActive)

	reg := h.deps.Registry
	h.Send(welcomeLine(h.username))
	h.Send(connectedUsersLine(reg.ConnectedUsers()))
	h.Send(channelListLine(reg.Channels()))
	h.Send(lineAuthRequired)

	reg.BroadcastGlobal(logLine(h.username+" connected"), h)
	reg.AnnounceUserList(reg.DefaultChannel())
	h.replayHistory(reg.DefaultChannel())

	// Late joiners missed everyone's profile broadcasts; replay the
	// current profiles to this connection only.
	for _, other := range reg.snapshot() {
		if other == h {
			continue
		}
		for _, line := range other.profileLines() {
			h.Send(line)
		}
	}

	return true
}

// activeLoop reads one line at a time: commands start with the sentinel,
// everything else is chat for the current channel.
func (h *Handler) activeLoop(scanner *bufio.Scanner) {
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, commandPrefix) {
			if quit := h.handleCommand(line); quit {
				return
			}
			continue
		}

		channel := h.Channel()
		h.deps.History.Append(channel, h.username, line)
		h.deps.Registry.BroadcastToChannel(channel, h.username+": "+line, h)
	}
}

// handleCommand dispatches one slash command. Protocol violations answer
// with an error line and keep the connection open. The return value reports
// an explicit quit.
func (h *Handler) handleCommand(line string) bool {
	verb, rest := parseCommand(line)

	switch verb {
	case "quit":
		return true
	case "join":
		h.cmdJoin(rest)
	case "login":
		h.cmdLogin(rest)
	case "register":
		h.cmdRegister(rest)
	case "setavatar":
		h.cmdSetAvatar(rest)
	case "setmsg":
		h.cmdSetMsg(rest)
	case "status":
		h.cmdStatus(rest)
	case "msg":
		h.cmdPrivateMsg(rest)
	case "call":
		h.cmdCall(rest)
	case "hangup":
		h.cmdHangup()
	default:
		h.Send(logLine("unknown command: /" + verb))
	}
	return false
}

func (h *Handler) cmdJoin(rest string) {
	channel := strings.ToLower(rest)
	if channel == "" || strings.ContainsAny(channel, " \t") {
		h.Send(logLine("usage: /join <channel>"))
		return
	}

	reg := h.deps.Registry
	if reg.EnsureChannel(channel) {
		reg.AnnounceChannelList()
	}

	previous := h.Channel()
	if previous == channel {
		return
	}
	h.setChannel(channel)

	reg.AnnounceUserList(previous)
	reg.AnnounceUserList(channel)
	h.replayHistory(channel)
}

func (h *Handler) cmdLogin(rest string) {
	user, pass, ok := strings.Cut(rest, " ")
	if !ok {
		h.Send(lineLoginFail)
		return
	}
	if err := h.deps.Credentials.Verify(user, pass); err != nil {
		h.Send(lineLoginFail)
		return
	}
	h.Send(lineLoginSuccess)
}

func (h *Handler) cmdRegister(rest string) {
	user, pass, ok := strings.Cut(rest, " ")
	if !ok || pass == "" {
		h.Send(lineRegisterFail)
		return
	}
	if err := h.deps.Credentials.Register(user, pass); err != nil {
		h.Send(lineRegisterFail)
		return
	}
	h.Send(lineRegisterSuccess)
}

func (h *Handler) cmdSetAvatar(rest string) {
	if rest == "" {
		h.Send(logLine("usage: /setavatar <base64>"))
		return
	}
	h.mu.Lock()
	h.avatar = rest
	h.mu.Unlock()
	h.deps.Registry.BroadcastGlobal(avatarLine(h.username, rest), nil)
}

func (h *Handler) cmdSetMsg(rest string) {
	h.mu.Lock()
	h.statusMsg = rest
	h.mu.Unlock()
	h.deps.Registry.BroadcastGlobal(userMsgLine(h.username, rest), nil)
}

func (h *Handler) cmdStatus(rest string) {
	if rest == "" {
		h.Send(logLine("usage: /status <code>"))
		return
	}
	h.mu.Lock()
	h.status = rest
	h.mu.Unlock()
	h.deps.Registry.BroadcastGlobal(statusLine(h.username, rest), nil)
}

func (h *Handler) cmdPrivateMsg(rest string) {
	target, text, ok := strings.Cut(rest, " ")
	if !ok || strings.TrimSpace(text) == "" {
		h.Send(logLine("usage: /msg <user> <text>"))
		return
	}

	peer, found := h.deps.Registry.Lookup(target)
	if !found {
		h.Send(logLine("no such user: " + target))
		return
	}

	line := privMsgLine(h.username, strings.TrimSpace(text))
	peer.Send(line)
	if peer != h {
		h.Send(line)
	}
}

// cmdCall establishes a call with another connected user. Stale sessions for
// both parties are torn down first, the new pairing is registered in every
// relay, and only then is the call announced to either side.
func (h *Handler) cmdCall(rest string) {
	target := strings.ToLower(rest)
	if target == "" {
		h.Send(logLine("usage: /call <user>"))
		return
	}
	if target == h.username {
		h.Send(logLine("cannot call yourself"))
		return
	}

	peer, found := h.deps.Registry.Lookup(target)
	if !found {
		h.Send(logLine("no such user: " + target))
		return
	}

	h.endCallAndNotify()
	if partner, ended := h.deps.Calls.EndCall(target); ended {
		h.notifyCallEnd(partner, target)
	}

	h.deps.Calls.RegisterCall(h.username, target)
	peer.Send(callStartLine(h.username))
	h.Send(callStartLine(target))
}

func (h *Handler) cmdHangup() {
	if !h.endCallAndNotify() {
		h.Send(logLine("no active call"))
	}
}

// endCallAndNotify tears down this user's session in every relay and tells
// both sides, returning whether a call existed.
func (h *Handler) endCallAndNotify() bool {
	partner, ended := h.deps.Calls.EndCall(h.username)
	if !ended {
		return false
	}
	h.Send(callEndLine(partner))
	h.notifyCallEnd(partner, h.username)
	return true
}

// notifyCallEnd tells partner that its call with user is over.
func (h *Handler) notifyCallEnd(partner, user string) {
	if peer, found := h.deps.Registry.Lookup(partner); found {
		peer.Send(callEndLine(user))
	}
}

// replayHistory sends the channel's recent archive to this client only,
// injected as ordinary channel messages.
func (h *Handler) replayHistory(channel string) {
	for _, rec := range h.deps.History.Recent(channel, historyReplayCount) {
		h.Send(chanMsgLine(channel, rec.ReplayLine()))
	}
}

// teardown runs exactly once: ends any active call, deregisters, announces
// the departure, and releases the socket. Terminal; there is no recovery.
func (h *Handler) teardown() {
	h.once.Do(func() {
		h.setState(StateClosed)

		if h.claimed {
			if partner, ended := h.deps.Calls.EndCall(h.username); ended {
				h.notifyCallEnd(partner, h.username)
			}
			h.deps.Registry.Unregister(h.username)
			h.deps.Registry.BroadcastGlobal(logLine(h.username+" disconnected"), h)
			h.deps.Registry.AnnounceUserList(h.Channel())
		}

		close(h.closing)
		h.conn.Close()

		logrus.WithFields(logrus.Fields{
			"function": "teardown",
			"username": h.username,
			"remote":   h.conn.RemoteAddr().String(),
		}).Info("Connection closed")
	})
}
