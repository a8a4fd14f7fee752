package chatrelay

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/chatrelay/auth"
	"github.com/opd-ai/chatrelay/control"
	"github.com/opd-ai/chatrelay/history"
	"github.com/opd-ai/chatrelay/media"
)

// Options contains configuration options for creating a Relay.
type Options struct {
	// TCPPort is the control-plane listen port. 0 picks a free port.
	TCPPort int

	// AudioPort and VideoPort are the UDP media relay ports. 0 picks a
	// free port.
	AudioPort int
	VideoPort int

	// Channels seeds the known channel set; the first entry is where new
	// connections land. Empty means a single "general" channel.
	Channels []string

	// HistoryLimit bounds the per-channel message archive when the
	// default in-memory history store is used.
	HistoryLimit int

	// Credentials overrides the account collaborator. Nil means an empty
	// in-memory store.
	Credentials auth.CredentialStore

	// History overrides the message-history collaborator. Nil means a
	// bounded in-memory store.
	History history.Store
}

// NewOptions creates an Options with default ports.
func NewOptions() *Options {
	return &Options{
		TCPPort:      5555,
		AudioPort:    5556,
		VideoPort:    5557,
		HistoryLimit: 100,
	}
}

// Relay is the facade wiring the control plane to both media relays. It is
// the control plane's CallController: every call setup and teardown fans out
// to the audio and the video relay so all three session tables converge.
type Relay struct {
	control *control.Server
	audio   *media.Relay
	video   *media.Relay
}

// New starts the three relay services. Any bind failure is fatal: services
// already started are shut down again and the error is returned.
func New(opts *Options) (*Relay, error) {
	if opts == nil {
		opts = NewOptions()
	}

	audio, err := media.NewRelay(media.Audio, opts.AudioPort)
	if err != nil {
		return nil, err
	}

	video, err := media.NewRelay(media.Video, opts.VideoPort)
	if err != nil {
		audio.Close()
		return nil, err
	}

	r := &Relay{audio: audio, video: video}

	creds := opts.Credentials
	if creds == nil {
		creds = auth.NewMemoryStore()
	}
	hist := opts.History
	if hist == nil {
		hist = history.NewMemoryStore(opts.HistoryLimit)
	}

	server, err := control.NewServer(opts.TCPPort, control.Deps{
		Registry:    control.NewRegistry(opts.Channels),
		Credentials: creds,
		History:     hist,
		Calls:       r,
	})
	if err != nil {
		video.Close()
		audio.Close()
		return nil, err
	}
	r.control = server

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"control":  server.Addr().String(),
		"audio":    audio.LocalAddr().String(),
		"video":    video.LocalAddr().String(),
	}).Info("Relay running")

	return r, nil
}

// RegisterCall pairs two users in the audio relay, then the video relay.
// The update is not atomic across relays; callers announce the call only
// after this returns.
func (r *Relay) RegisterCall(userA, userB string) {
	r.audio.RegisterCall(userA, userB)
	r.video.RegisterCall(userA, userB)
}

// EndCall tears down user's pairing in both relays, returning the partner
// recorded before teardown.
func (r *Relay) EndCall(user string) (string, bool) {
	partner, ok := r.audio.LookupPartner(user)
	r.audio.EndCall(user)
	r.video.EndCall(user)
	return partner, ok
}

// Audio returns the audio media relay.
func (r *Relay) Audio() *media.Relay {
	return r.audio
}

// Video returns the video media relay.
func (r *Relay) Video() *media.Relay {
	return r.video
}

// ControlAddr returns the control plane's listen address as a string.
func (r *Relay) ControlAddr() string {
	return r.control.Addr().String()
}

// Run blocks until ctx is cancelled, then shuts the relay down. It returns
// the context's error so callers can distinguish cancellation causes.
func (r *Relay) Run(ctx context.Context) error {
	<-ctx.Done()
	r.Kill()
	return ctx.Err()
}

// Kill shuts all three services down and releases their sockets.
func (r *Relay) Kill() {
	r.control.Close()
	r.audio.Close()
	r.video.Close()

	logrus.WithFields(logrus.Fields{
		"function": "Kill",
	}).Info("Relay stopped")
}
