// Package chatrelay implements a multi-user communication relay: a TCP
// control plane that authenticates clients and broadcasts text across named
// channels, plus two UDP media relays that forward real-time audio and video
// between the two parties of a call.
//
// # Getting Started
//
// Create a relay with options and run it until shutdown:
//
//	opts := chatrelay.NewOptions()
//	opts.TCPPort = 5555
//
//	relay, err := chatrelay.New(opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer relay.Kill()
//
// # Architecture
//
// Three cooperating services run under one Relay:
//
//   - The control plane (package control): one persistent TCP connection
//     per client carrying newline-delimited text, with channel broadcast,
//     private messages, authentication, and call signaling.
//   - The audio relay and the video relay (package media): one UDP socket
//     each, forwarding payload datagrams verbatim between paired users.
//
// The control plane and the relays share no object identity; usernames are
// the only correlation key. Clients announce their UDP addresses to each
// relay with "LINK:<username>" registration datagrams, and the control plane
// mirrors call setup and teardown into every relay.
//
// # Call Consistency
//
// Each relay keeps its own copy of the call pairing. The Relay fans every
// setup and teardown out to all relays in a fixed order and only then
// announces the change on the control plane, bounding the window in which
// the copies disagree. The fan-out is not atomic across relays.
//
// # Core Types
//
//   - [Relay]: facade wiring the control plane and both media relays
//   - [Options]: configuration for creating a Relay
package chatrelay
