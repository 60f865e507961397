package paxos

import (
	"math/rand"
	"sync"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament"
)

// Role is the per-kind (Acceptor or Proposer) behavior an Agent drives.
// Splitting it out of Agent keeps the message loop, crash/restart
// driver, and ledger bookkeeping (all common, C3) separate from the
// protocol-specific handlers (C4/C5).
type Role interface {
	// HandleMessage dispatches one polled message. Handlers never
	// error; unrecognized or stale messages are dropped silently
	// (spec.md §7).
	HandleMessage(msg Message)

	// Tick runs once per loop iteration after message handling.
	// Acceptors are purely reactive and no-op here; a Proposer checks
	// whether it's time to spontaneously initiate a new ballot.
	Tick()

	// Reset reinitializes whatever in-RAM protocol state belongs to
	// this Role after a simulated crash. The Agent's ledger is not
	// part of Role state and is never reset (spec.md §4.2: "ledger is
	// preserved across restarts").
	Reset()
}

// Agent is the common machinery (C3) shared by every acceptor and
// proposer: the message loop, registration with the transport, the
// crash-restart driver, and the per-instance ledger. Protocol-specific
// behavior is supplied by Role.
type Agent struct {
	Id        AgentId
	Transport Transport
	Role      Role
	Logger    log.Logger

	// FailRate is the probability, checked once per loop iteration,
	// that this agent simulates a crash.
	FailRate           float64
	AvgFailureDuration time.Duration

	mu     sync.Mutex
	ledger []*Proposal
}

// NewAgent constructs an Agent with an empty ledger of length
// nbInstances. Role must be assigned by the caller once it exists,
// since most Roles hold a back-reference to their Agent.
func NewAgent(id AgentId, transport Transport, failRate float64, avgFailureDuration time.Duration, nbInstances int, logger log.Logger) *Agent {
	return &Agent{
		Id:                 id,
		Transport:          transport,
		Logger:             logger,
		FailRate:           failRate,
		AvgFailureDuration: avgFailureDuration,
		ledger:             make([]*Proposal, nbInstances),
	}
}

// Send is a thin wrapper so Roles don't need to hold the Transport
// themselves; it also gives a single point to attach debug logging.
func (a *Agent) Send(dest AgentId, msg Message) {
	parliament.DebugLog(a.Logger, "msg", "send", "to", dest, "type", msg.Type)
	a.Transport.Send(dest, msg)
}

// SetLedger records the decree learned for instance i. It is called
// from both Acceptor (on Success) and Proposer (on its own ballot
// succeeding, or on learning Success from a competing proposer).
func (a *Agent) SetLedger(i int, decree Proposal) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing := a.ledger[i]; existing != nil {
		if *existing != decree {
			a.Logger.Log("msg", "SAFETY VIOLATION: distinct decrees observed for instance", "instance", i, "have", *existing, "got", decree)
		}
		return
	}
	d := decree
	a.ledger[i] = &d
	parliament.DebugLog(a.Logger, "msg", "decree accepted", "instance", i, "decree", decree)
}

// Ledger returns a snapshot of the agent's learned decrees; a nil entry
// means that instance has not yet been learned.
func (a *Agent) Ledger() []*Proposal {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*Proposal, len(a.ledger))
	copy(out, a.ledger)
	return out
}

// Run is the main loop (spec.md §4.2): poll, dispatch, tick, maybe
// crash — until stop is closed. The poll is a busy-poll with a small
// yield when the mailbox is empty, which spec.md §5 explicitly
// sanctions ("an implementation may insert a small yield for
// efficiency without altering correctness").
func (a *Agent) Run(stop <-chan struct{}) {
	parliament.DebugLog(a.Logger, "msg", "started")
	for {
		select {
		case <-stop:
			return
		default:
		}

		if msg, ok := a.Transport.Poll(a.Id); ok {
			parliament.DebugLog(a.Logger, "msg", "received", "from", msg.AuthorId, "type", msg.Type)
			a.Role.HandleMessage(msg)
		} else {
			time.Sleep(time.Millisecond)
		}

		a.Role.Tick()

		if a.FailRate > 0 && rand.Float64() < a.FailRate {
			if !a.crash(stop) {
				return
			}
		}
	}
}

// crash simulates spec.md §4.2 point 3: sleep for Exp(1)*avgFailureDuration,
// then re-register with the transport (which clears this agent's
// mailbox) and reset the Role's in-RAM state. Returns false if stop was
// raised while sleeping.
func (a *Agent) crash(stop <-chan struct{}) bool {
	parliament.DebugLog(a.Logger, "msg", "crashed")
	sleep := time.Duration(float64(a.AvgFailureDuration) * rand.ExpFloat64())
	select {
	case <-time.After(sleep):
	case <-stop:
		return false
	}
	a.Transport.Register(a.Id)
	a.Role.Reset()
	parliament.DebugLog(a.Logger, "msg", "restarted")
	return true
}
