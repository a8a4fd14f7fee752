// Package control implements the relay's control plane: the TCP text
// protocol, the live-connection registry, and message broadcast across named
// channels.
//
// Every client holds one persistent TCP connection carrying newline-delimited
// UTF-8 text. A dedicated goroutine per connection runs the blocking read
// loop; a second goroutine drains that connection's bounded outbound queue so
// a slow or dead reader never stalls broadcast to anyone else. When the queue
// is full, further lines to that recipient are dropped.
//
// The Registry is the single owner of connection records. Username claims are
// case-insensitive and atomic: of two simultaneous connections asking for the
// same name, exactly one wins and the other is re-prompted.
//
// Channel-tagged messages are delivered to every live connection, not just
// the channel's members, so clients can archive history for channels they are
// not currently viewing. The receiving client decides what to display.
//
// Call setup and teardown commands are forwarded to a CallController, which
// fans the update out to every media relay. The control plane and the relays
// share no object identity; usernames are the only correlation key.
package control
