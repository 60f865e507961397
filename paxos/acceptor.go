package paxos

// Acceptor is the C4 Role: purely reactive, it never spontaneously
// sends. State is vectorized to NbInstances for the Multi-Paxos case;
// NbInstances == 1 recovers basic Paxos.
type Acceptor struct {
	agent *Agent
	n     int

	nextBallot []*BallotNumber
	lastVote   []*Vote
}

func NewAcceptor(agent *Agent, nbInstances int) *Acceptor {
	return &Acceptor{
		agent:      agent,
		n:          nbInstances,
		nextBallot: make([]*BallotNumber, nbInstances),
		lastVote:   make([]*Vote, nbInstances),
	}
}

func (a *Acceptor) HandleMessage(msg Message) {
	switch msg.Type {
	case MsgNextBallot:
		a.onNextBallot(msg)
	case MsgBeginBallot:
		a.onBeginBallot(msg)
	case MsgSuccess:
		i := instanceIndex(msg.BallotNumber.BallotId, a.n)
		a.agent.SetLedger(i, msg.Decree)
	default:
		// LastVote and Voted are proposer-only messages; an acceptor
		// never originates a ballot so it never expects them.
	}
}

// Tick is a no-op: acceptors never spontaneously act (spec.md §4.3).
func (a *Acceptor) Tick() {}

func (a *Acceptor) Reset() {
	for i := 0; i < a.n; i++ {
		a.nextBallot[i] = nil
		a.lastVote[i] = nil
	}
}

func (a *Acceptor) onNextBallot(msg Message) {
	i := instanceIndex(msg.BallotNumber.BallotId, a.n)
	cur := a.nextBallot[i]
	if cur != nil && !cur.Less(msg.BallotNumber) {
		return // absent-or-greater check failed: ignore
	}
	b := msg.BallotNumber
	a.nextBallot[i] = &b
	a.agent.Send(msg.AuthorId, NewLastVote(a.agent.Id, b, a.lastVote[i]))
}

func (a *Acceptor) onBeginBallot(msg Message) {
	i := instanceIndex(msg.Ballot.Number.BallotId, a.n)
	if a.nextBallot[i] == nil || *a.nextBallot[i] != msg.Ballot.Number {
		return
	}
	v := Vote{Ballot: msg.Ballot, Acceptor: a.agent.Id}
	a.lastVote[i] = &v
	a.agent.Send(msg.AuthorId, NewVoted(a.agent.Id, v))
}
