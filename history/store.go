package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one archived channel message.
type Record struct {
	ID       string
	Channel  string
	Username string
	Text     string
	SentAt   time.Time
}

// ReplayLine formats the record as it is injected into CHANMSG content
// during history replay: HISTORY:[HH:MM:SS] [<user>]: <text>
func (r Record) ReplayLine() string {
	return fmt.Sprintf("HISTORY:[%s] [%s]: %s", r.SentAt.Format("15:04:05"), r.Username, r.Text)
}

// Store is the message-history collaborator.
type Store interface {
	// Append archives one channel message.
	Append(channel, username, text string)

	// Recent returns up to n most recent records for channel, oldest first.
	Recent(channel string, n int) []Record
}

// MemoryStore keeps a bounded ring of records per channel.
type MemoryStore struct {
	mu    sync.RWMutex
	limit int
	lines map[string][]Record
}

// NewMemoryStore creates a store keeping at most limit records per channel.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 100
	}
	return &MemoryStore{
		limit: limit,
		lines: make(map[string][]Record),
	}
}

// Append archives one message, evicting the oldest once the channel is full.
func (s *MemoryStore) Append(channel, username, text string) {
	rec := Record{
		ID:       uuid.NewString(),
		Channel:  channel,
		Username: username,
		Text:     text,
		SentAt:   time.Now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records := append(s.lines[channel], rec)
	if len(records) > s.limit {
		records = records[len(records)-s.limit:]
	}
	s.lines[channel] = records
}

// Recent returns up to n most recent records for channel, oldest first.
func (s *MemoryStore) Recent(channel string, n int) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := s.lines[channel]
	if n > 0 && len(records) > n {
		records = records[len(records)-n:]
	}

	out := make([]Record, len(records))
	copy(out, records)
	return out
}
