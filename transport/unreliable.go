package transport

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament"
	"github.com/goshawkdb/parliament/paxos"
	tw "github.com/msackman/gotimerwheel"
)

// wheelGranularity is the tick of the delivery timer wheel (the timer
// wheel plus beater pairing follows the teacher's varmanager.go); the
// beater goroutine below advances the wheel at this cadence.
const wheelGranularity = 10 * time.Millisecond

// Unreliable is the C2 unreliable transport: every send independently
// rolls a loss chance, and surviving messages are delivered after a
// random delay via a msackman/gotimerwheel scheduled event, so that
// deliveries to one recipient can complete out of send order (spec.md
// §4.1).
type Unreliable struct {
	failureRate float64
	maxDelay    time.Duration

	mu        sync.RWMutex
	mailboxes map[paxos.AgentId]*mailbox

	wheelMu sync.Mutex
	wheel   *tw.TimerWheel

	logger log.Logger

	metricsMu sync.RWMutex
	metrics   MessageMetrics
}

// MessageMetrics is the narrow slice of *metrics.Registry this
// transport needs, kept as an interface to avoid importing the metrics
// package for the sake of one counter. It's declared as an alias, not a
// defined type, so that callers (assembly.metricsSetter) can satisfy
// SetMetrics with a structurally-identical unnamed interface without
// importing this package.
type MessageMetrics = interface {
	IncMessagesDropped()
}

func NewUnreliable(failureRate float64, maxDelay time.Duration, logger log.Logger) (*Unreliable, error) {
	if failureRate < 0 || failureRate > 1 {
		return nil, fmt.Errorf("transport: failure_rate must be in [0,1], got %v", failureRate)
	}
	if maxDelay < 0 {
		return nil, fmt.Errorf("transport: max_delay must be >= 0, got %v", maxDelay)
	}
	return &Unreliable{
		failureRate: failureRate,
		maxDelay:    maxDelay,
		mailboxes:   make(map[paxos.AgentId]*mailbox),
		wheel:       tw.NewTimerWheel(time.Now(), wheelGranularity),
		logger:      logger,
	}, nil
}

// SetMetrics wires m into the transport so every simulated loss counts
// against messages_dropped_total; nil turns counting back off. This is
// a setter rather than a constructor argument because the caller that
// builds the transport (main, a test) rarely owns the metrics registry
// that should observe it — the teacher's own
// ConnectionManager.SetMetrics (network/connectionmanager.go) is the
// same late-binding idiom.
func (u *Unreliable) SetMetrics(m MessageMetrics) {
	u.metricsMu.Lock()
	u.metrics = m
	u.metricsMu.Unlock()
}

func (u *Unreliable) Register(id paxos.AgentId) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.mailboxes[id] = &mailbox{}
}

func (u *Unreliable) Send(dest paxos.AgentId, msg paxos.Message) {
	if rand.Float64() < u.failureRate {
		parliament.DebugLog(u.logger, "msg", "dropped: simulated loss", "dest", dest, "type", msg.Type)
		u.metricsMu.RLock()
		m := u.metrics
		u.metricsMu.RUnlock()
		if m != nil {
			m.IncMessagesDropped()
		}
		return
	}

	u.mu.RLock()
	mb := u.mailboxes[dest]
	u.mu.RUnlock()
	if mb == nil {
		parliament.DebugLog(u.logger, "msg", "dropped: unregistered destination", "dest", dest, "type", msg.Type)
		return
	}

	delay := u.drawDelay()
	if delay <= 0 {
		mb.push(msg)
		return
	}

	u.wheelMu.Lock()
	err := u.wheel.ScheduleEventIn(delay, func(time.Time) { mb.push(msg) })
	u.wheelMu.Unlock()
	if err != nil {
		// The wheel only ever rejects a negative duration, which
		// drawDelay never produces; deliver immediately rather than
		// silently drop, since the message did "survive" the loss
		// roll above.
		mb.push(msg)
	}
}

func (u *Unreliable) Poll(id paxos.AgentId) (paxos.Message, bool) {
	u.mu.RLock()
	mb := u.mailboxes[id]
	u.mu.RUnlock()
	if mb == nil {
		return paxos.Message{}, false
	}
	return mb.pop()
}

// drawDelay implements spec.md §4.1's min(max_delay, max_delay *
// Exp(1) / 2).
func (u *Unreliable) drawDelay() time.Duration {
	if u.maxDelay <= 0 {
		return 0
	}
	d := time.Duration(float64(u.maxDelay) * rand.ExpFloat64() / 2)
	if d > u.maxDelay {
		d = u.maxDelay
	}
	return d
}

func (u *Unreliable) HasPump() bool { return true }

// Pump advances the timer wheel at wheelGranularity until stop is
// closed, following the teacher's beater() pattern in
// txnengine/varmanager.go.
func (u *Unreliable) Pump(stop <-chan struct{}) {
	ticker := time.NewTicker(wheelGranularity)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			u.wheelMu.Lock()
			u.wheel.AdvanceTo(now, 1024)
			u.wheelMu.Unlock()
		}
	}
}

var _ paxos.Transport = (*Unreliable)(nil)
var _ paxos.Pumper = (*Unreliable)(nil)
