package transport

import (
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament"
	"github.com/goshawkdb/parliament/paxos"
)

// Reliable is the C2 reliable transport: FIFO, instant, no loss. Sends
// to an unregistered destination are dropped silently.
type Reliable struct {
	mu        sync.RWMutex
	mailboxes map[paxos.AgentId]*mailbox
	logger    log.Logger
}

func NewReliable(logger log.Logger) *Reliable {
	return &Reliable{
		mailboxes: make(map[paxos.AgentId]*mailbox),
		logger:    logger,
	}
}

func (r *Reliable) Register(id paxos.AgentId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mailboxes[id] = &mailbox{}
}

func (r *Reliable) Send(dest paxos.AgentId, msg paxos.Message) {
	r.mu.RLock()
	mb := r.mailboxes[dest]
	r.mu.RUnlock()
	if mb == nil {
		parliament.DebugLog(r.logger, "msg", "dropped: unregistered destination", "dest", dest, "type", msg.Type)
		return
	}
	mb.push(msg)
}

func (r *Reliable) Poll(id paxos.AgentId) (paxos.Message, bool) {
	r.mu.RLock()
	mb := r.mailboxes[id]
	r.mu.RUnlock()
	if mb == nil {
		return paxos.Message{}, false
	}
	return mb.pop()
}

// Reliable has no background pump.
func (r *Reliable) HasPump() bool             { return false }
func (r *Reliable) Pump(stop <-chan struct{}) {}

var _ paxos.Transport = (*Reliable)(nil)
var _ paxos.Pumper = (*Reliable)(nil)
