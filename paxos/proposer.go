package paxos

import (
	"math/rand"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/goshawkdb/parliament"
)

// Proposer is the C5 Role: the two-phase ballot initiator. State is
// vectorized to NbInstances exactly as Acceptor's is; one
// initiateNewBallot call fans out NextBallot for every instance in a
// single pass, sharing one randomly-drawn quorum (spec.md §4.6, and the
// Open Question decision in SPEC_FULL.md: reuse, don't resample).
type Proposer struct {
	agent *Agent
	n     int

	period time.Duration
	t0     time.Time

	acceptors []AgentId // the fixed roster of acceptors to draw quorums from
	roster    []AgentId // every agent in the assembly, for Success broadcast

	lastTried []*Ballot
	responses [][]*Vote
	birth     []time.Time

	metrics ballotMetrics
}

// ballotMetrics is the narrow slice of *metrics.Registry a Proposer
// needs; kept as an interface here so this package doesn't import the
// metrics package (which would be a pointless dependency edge for a
// handful of counters).
type ballotMetrics interface {
	IncBallotsInitiated()
	IncDecreesLearned()
	ObserveBallotLifespan(time.Duration)
}

func NewProposer(agent *Agent, nbInstances int, period time.Duration, acceptors, roster []AgentId, metrics ballotMetrics) *Proposer {
	p := &Proposer{
		agent:     agent,
		n:         nbInstances,
		period:    period,
		acceptors: acceptors,
		roster:    roster,
		lastTried: make([]*Ballot, nbInstances),
		responses: make([][]*Vote, nbInstances),
		birth:     make([]time.Time, nbInstances),
		metrics:   metrics,
	}
	p.t0 = time.Now().Add(-period + firstBallotLeadTime(period))
	return p
}

// firstBallotLeadTime yields the warm-up before a proposer's first
// spontaneous ballot: NewProposer backdates t0 so that the first Tick
// fires this long after construction. It is
// parliament.FirstBallotLeadTime, or half the period when the period is
// not longer than that.
func firstBallotLeadTime(period time.Duration) time.Duration {
	if parliament.FirstBallotLeadTime >= period {
		return period / 2
	}
	return parliament.FirstBallotLeadTime
}

func (p *Proposer) HandleMessage(msg Message) {
	switch msg.Type {
	case MsgLastVote:
		p.onLastVote(msg)
	case MsgVoted:
		p.onVoted(msg)
	case MsgSuccess:
		i := instanceIndex(msg.BallotNumber.BallotId, p.n)
		p.agent.SetLedger(i, msg.Decree)
	default:
		// NextBallot and BeginBallot are acceptor-only.
	}
}

func (p *Proposer) Tick() {
	if time.Since(p.t0) >= p.period {
		p.t0 = time.Now()
		p.initiateNewBallot()
	}
}

func (p *Proposer) Reset() {
	for i := 0; i < p.n; i++ {
		p.lastTried[i] = nil
		p.responses[i] = nil
		p.birth[i] = time.Time{}
	}
}

// initiateNewBallot is phase 1 (spec.md §4.4), run once per instance
// per call, sharing a single randomly-drawn quorum across all
// instances.
func (p *Proposer) initiateNewBallot() {
	quorum := p.selectQuorum()
	for i := 0; i < p.n; i++ {
		var number BallotNumber
		if p.lastTried[i] == nil {
			number = BallotNumber{BallotId: int64(i), AgentId: p.agent.Id}
		} else {
			number = BallotNumber{BallotId: p.lastTried[i].Number.BallotId + int64(p.n), AgentId: p.agent.Id}
		}
		p.lastTried[i] = &Ballot{
			Number: number,
			Decree: nil,
			Quorum: quorum.Clone(),
			Voters: mapset.NewSet(),
		}
		p.responses[i] = nil
		p.birth[i] = time.Now()

		if p.metrics != nil {
			p.metrics.IncBallotsInitiated()
		}
		for _, acc := range agentSlice(quorum) {
			p.agent.Send(acc, NewNextBallot(p.agent.Id, number))
		}
	}
}

// selectQuorum draws a uniformly random majority subset of p.acceptors.
func (p *Proposer) selectQuorum() mapset.Set {
	need := len(p.acceptors)/2 + 1
	perm := rand.Perm(len(p.acceptors))
	s := mapset.NewSet()
	for _, idx := range perm[:need] {
		s.Add(p.acceptors[idx])
	}
	return s
}

// matchInstance locates the instance a ballot number belongs to and
// verifies it's still the one this proposer is currently organizing;
// it returns ok == false for a stale/abandoned ballot, per spec.md
// §4.4's tie-breaking rule.
func (p *Proposer) matchInstance(number BallotNumber) (int, bool) {
	i := instanceIndex(number.BallotId, p.n)
	if p.lastTried[i] == nil || p.lastTried[i].Number != number {
		return 0, false
	}
	return i, true
}

func (p *Proposer) onLastVote(msg Message) {
	i, ok := p.matchInstance(msg.BallotNumber)
	if !ok {
		return
	}
	p.responses[i] = append(p.responses[i], msg.LastVote)
	if len(p.responses[i]) != p.lastTried[i].Quorum.Cardinality() {
		return
	}

	var best *Vote
	for _, v := range p.responses[i] {
		if v == nil {
			continue
		}
		if best == nil || best.Ballot.Number.Less(v.Ballot.Number) {
			best = v
		}
	}
	if best != nil {
		p.lastTried[i].Decree = best.Ballot.Decree
	} else {
		d := Proposal{ProposerId: p.agent.Id}
		p.lastTried[i].Decree = &d
	}

	ballot := p.lastTried[i]
	snap := ballot.Snapshot()
	for _, acc := range agentSlice(ballot.Quorum) {
		p.agent.Send(acc, NewBeginBallot(p.agent.Id, snap))
	}
}

func (p *Proposer) onVoted(msg Message) {
	i, ok := p.matchInstance(msg.Vote.Ballot.Number)
	if !ok {
		return
	}
	ballot := p.lastTried[i]
	ballot.Voters.Add(msg.Vote.Acceptor)
	if !ballot.Successful() {
		return
	}

	decree := *ballot.Decree
	number := ballot.Number
	p.agent.SetLedger(i, decree)
	if p.metrics != nil {
		p.metrics.IncDecreesLearned()
		if !p.birth[i].IsZero() {
			p.metrics.ObserveBallotLifespan(time.Since(p.birth[i]))
		}
	}
	for _, dest := range p.roster {
		p.agent.Send(dest, NewSuccess(p.agent.Id, decree, number))
	}
}

func agentSlice(s mapset.Set) []AgentId {
	items := s.ToSlice()
	out := make([]AgentId, len(items))
	for i, v := range items {
		out[i] = v.(AgentId)
	}
	return out
}
