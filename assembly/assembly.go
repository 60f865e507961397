// Package assembly wires a transport and a cohort of agents together
// (C6): it allocates agent ids, constructs each agent's Role, spawns
// one worker goroutine per agent (and one for the transport's pump, if
// it has one), busy-polls a termination predicate, and returns the
// single agreed decree vector — or panics on the protocol-safety
// violation of observing more than one.
package assembly

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament/metrics"
	"github.com/goshawkdb/parliament/paxos"
	"golang.org/x/sync/errgroup"
)

// pollInterval is how often Start's termination predicate is
// re-checked; spec.md §9 explicitly sanctions a busy-wait here
// ("acceptable in a simulator").
const pollInterval = 5 * time.Millisecond

type Assembly struct {
	cfg       Config
	transport paxos.Transport
	metrics   *metrics.Registry

	nextId      int64
	roster      []paxos.AgentId
	acceptorIds []paxos.AgentId
	agents      map[paxos.AgentId]*paxos.Agent
}

// metricsSetter is implemented by transports that can count their own
// drops (transport.Unreliable's SetMetrics); matched structurally so
// this package doesn't need to import transport just for the hook.
type metricsSetter interface {
	SetMetrics(interface{ IncMessagesDropped() })
}

// New constructs an Assembly: it allocates ids for NAcceptors acceptors
// followed by NProposers proposers, registers every agent with
// transport, and builds their Roles. No workers are running yet; call
// Start to run the protocol to termination. If transport supports
// metricsSetter (transport.Unreliable does), New wires in its own
// metrics registry so dropped messages are counted.
func New(cfg Config, transport paxos.Transport) *Assembly {
	cfg = cfg.withDefaults()
	asm := &Assembly{
		cfg:       cfg,
		transport: transport,
		metrics:   metrics.NewRegistry(),
		agents:    make(map[paxos.AgentId]*paxos.Agent),
	}
	if setter, ok := transport.(metricsSetter); ok {
		setter.SetMetrics(asm.metrics)
	}

	for i := 0; i < cfg.NAcceptors; i++ {
		id := asm.allocId()
		asm.acceptorIds = append(asm.acceptorIds, id)
		asm.roster = append(asm.roster, id)
	}
	for i := 0; i < cfg.NProposers; i++ {
		asm.roster = append(asm.roster, asm.allocId())
	}

	for _, id := range asm.acceptorIds {
		agent := asm.newAgent(id, cfg.AcceptorFailRate)
		agent.Role = paxos.NewAcceptor(agent, cfg.NbInstances)
		asm.register(agent)
	}
	for _, id := range asm.roster[cfg.NAcceptors:] {
		agent := asm.newAgent(id, cfg.ProposerFailRate)
		agent.Role = paxos.NewProposer(agent, cfg.NbInstances, cfg.Period, asm.acceptorIds, asm.roster, asm.metrics)
		asm.register(agent)
	}

	return asm
}

func (asm *Assembly) allocId() paxos.AgentId {
	id := paxos.AgentId(asm.nextId)
	asm.nextId++
	return id
}

func (asm *Assembly) newAgent(id paxos.AgentId, failRate float64) *paxos.Agent {
	logger := log.With(asm.cfg.Logger, "agent", id)
	return paxos.NewAgent(id, asm.transport, failRate, asm.cfg.AvgFailureDuration, asm.cfg.NbInstances, logger)
}

func (asm *Assembly) register(agent *paxos.Agent) {
	asm.transport.Register(agent.Id)
	asm.agents[agent.Id] = agent
}

// Metrics exposes the private prometheus registry this run populates,
// for wiring into an HTTP /metrics handler.
func (asm *Assembly) Metrics() *metrics.Registry { return asm.metrics }

// Start runs every agent (and the transport's pump, if any) until every
// agent has learned every instance's decree, then stops all workers and
// returns the agreed decree vector. ctx cancellation stops the run
// early and returns ctx.Err().
func (asm *Assembly) Start(ctx context.Context) ([]paxos.Proposal, error) {
	stop := make(chan struct{})
	g, _ := errgroup.WithContext(ctx)

	if pumper, ok := asm.transport.(paxos.Pumper); ok && pumper.HasPump() {
		g.Go(func() error {
			pumper.Pump(stop)
			return nil
		})
	}

	asm.metrics.SetLiveAgents(len(asm.agents))
	for _, agent := range asm.agents {
		agent := agent
		g.Go(func() error {
			agent.Run(stop)
			return nil
		})
	}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if asm.allLearned() {
			break
		}
		select {
		case <-ctx.Done():
			close(stop)
			_ = g.Wait()
			asm.metrics.SetLiveAgents(0)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	close(stop)
	_ = g.Wait()
	asm.metrics.SetLiveAgents(0)
	return asm.agreedLedger()
}

func (asm *Assembly) allLearned() bool {
	for _, agent := range asm.agents {
		for _, decree := range agent.Ledger() {
			if decree == nil {
				return false
			}
		}
	}
	return true
}

// agreedLedger is spec.md §4.5 step 6: collect the set of distinct
// ledger vectors observed across agents, assert it has size 1, and
// return the unique ledger. The panic here is the protocol's sole
// safety-violation signal (spec.md §7).
func (asm *Assembly) agreedLedger() ([]paxos.Proposal, error) {
	seen := make(map[string][]paxos.Proposal)
	for _, agent := range asm.agents {
		ledger := agent.Ledger()
		vec := make([]paxos.Proposal, len(ledger))
		for i, d := range ledger {
			vec[i] = *d
		}
		seen[fmt.Sprint(vec)] = vec
	}
	if len(seen) != 1 {
		panic(fmt.Sprintf("safety violation: %d distinct ledger vectors observed across agents: %v", len(seen), seen))
	}
	for _, vec := range seen {
		return vec, nil
	}
	panic("unreachable: agreedLedger found no ledger vectors")
}
