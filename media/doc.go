// Package media implements the UDP forwarding services that carry real-time
// audio and video between two users in a call.
//
// Each Relay owns one UDP socket for its lifetime and runs a single receive
// goroutine: read one datagram, classify it, act, repeat. Two packet shapes
// share the socket:
//
//	Registration: ASCII "LINK:<username>", shorter than 100 bytes. Records
//	the sender's source address in the relay's address registry. Never
//	acknowledged.
//
//	Payload: anything else. Attributed to a username by source address,
//	routed to that user's current call partner, and forwarded verbatim to
//	the partner's last registered address. Any resolution miss drops the
//	datagram silently.
//
// Classification is a byte-content heuristic, not a framed protocol field: a
// tiny media payload that happens to begin with "LINK:" would be treated as a
// registration. An explicit one-byte type tag on every datagram would remove
// the ambiguity; the heuristic is kept as-is for wire compatibility with
// existing clients.
//
// The audio relay reads into a 2 KiB buffer sized for voice frames; the video
// relay accepts datagrams up to the maximum UDP payload (~64 KiB). This
// asymmetry is deliberate: oversized audio datagrams are truncated by the
// smaller buffer rather than buffered at video cost.
//
// Forwarding is best-effort. Packets are never retried, reordered, or
// sequenced; loss shows up to users as momentary silence or a frozen frame.
package media
