package transport

import (
	"sync"

	"github.com/goshawkdb/parliament/paxos"
)

// mailbox is a FIFO queue guarded by its own mutex, per spec.md §5's
// recommended locking discipline ("one mutex per mailbox"). Both
// Reliable and Unreliable key a map of these by AgentId; Register
// replaces the map entry wholesale rather than clearing the existing
// mailbox in place, so that any delivery already in flight against the
// old mailbox instance lands nowhere observable — the mechanism behind
// "a crash-restart clears queues" (spec.md §4.1).
type mailbox struct {
	mu       sync.Mutex
	messages []paxos.Message
}

func (m *mailbox) push(msg paxos.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

func (m *mailbox) pop() (paxos.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.messages) == 0 {
		return paxos.Message{}, false
	}
	msg := m.messages[0]
	m.messages = m.messages[1:]
	return msg, true
}
