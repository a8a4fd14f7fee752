// Package history defines the message-history collaborator the control plane
// appends to and replays from, plus a bounded in-memory implementation.
//
// History replay is injected into the ordinary channel-message stream with
// the HISTORY: tag so clients need no separate replay protocol.
package history
