package paxos_test

import (
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament/paxos"
	"github.com/stretchr/testify/require"
)

func newTestProposer(id paxos.AgentId, t *fakeTransport, acceptors, roster []paxos.AgentId) (*paxos.Agent, *paxos.Proposer) {
	agent := newTestAgent(id, t)
	proposer := paxos.NewProposer(agent, 1, 0, acceptors, roster, nil)
	agent.Role = proposer
	return agent, proposer
}

func TestProposer_InitiateNewBallot_FirstBallotIdEqualsInstanceIndex(t *testing.T) {
	transport := newFakeTransport()
	a1, a2, a3 := paxos.AgentId(1), paxos.AgentId(2), paxos.AgentId(3)
	acceptors := []paxos.AgentId{a1, a2, a3}
	for _, id := range acceptors {
		transport.Register(id)
	}
	proposerId := paxos.AgentId(0)
	_, proposer := newTestProposer(proposerId, transport, acceptors, append([]paxos.AgentId{proposerId}, acceptors...))

	proposer.Tick() // period is 0, so Tick fires immediately

	sent := 0
	for _, id := range acceptors {
		if msg, ok := transport.Poll(id); ok {
			require.Equal(t, paxos.MsgNextBallot, msg.Type)
			require.Equal(t, int64(0), msg.BallotNumber.BallotId)
			require.Equal(t, proposerId, msg.BallotNumber.AgentId)
			sent++
		}
	}
	require.Equal(t, 2, sent, "quorum for 3 acceptors is majority (2)")
}

func TestProposer_OnLastVote_ExtendsHighestNumberedPriorVote(t *testing.T) {
	transport := newFakeTransport()
	a1, a2 := paxos.AgentId(1), paxos.AgentId(2)
	acceptors := []paxos.AgentId{a1, a2}
	for _, id := range acceptors {
		transport.Register(id)
	}
	proposerId := paxos.AgentId(0)
	agent, proposer := newTestProposer(proposerId, transport, acceptors, append([]paxos.AgentId{proposerId}, acceptors...))
	agent.Logger = log.NewNopLogger()

	proposer.Tick()
	var number paxos.BallotNumber
	for _, id := range acceptors {
		if msg, ok := transport.Poll(id); ok {
			number = msg.BallotNumber
		}
	}

	priorDecree := paxos.Proposal{ProposerId: a1}
	priorVote := paxos.Vote{
		Ballot:   paxos.BallotSnapshot{Number: paxos.BallotNumber{BallotId: -5, AgentId: a1}, Decree: &priorDecree},
		Acceptor: a1,
	}
	proposer.HandleMessage(paxos.NewLastVote(a1, number, &priorVote))
	proposer.HandleMessage(paxos.NewLastVote(a2, number, nil))

	var beginBallot paxos.Message
	found := false
	for _, id := range acceptors {
		if msg, ok := transport.Poll(id); ok {
			beginBallot = msg
			found = true
		}
	}
	require.True(t, found)
	require.Equal(t, paxos.MsgBeginBallot, beginBallot.Type)
	require.Equal(t, priorDecree, *beginBallot.Ballot.Decree, "must extend the highest-numbered non-null response (B3)")
}

func TestProposer_OnVoted_SuccessBroadcastsToEntireRoster(t *testing.T) {
	transport := newFakeTransport()
	a1, a2 := paxos.AgentId(1), paxos.AgentId(2)
	acceptors := []paxos.AgentId{a1, a2}
	proposerId, otherProposerId := paxos.AgentId(0), paxos.AgentId(3)
	roster := []paxos.AgentId{proposerId, otherProposerId, a1, a2}
	for _, id := range roster {
		transport.Register(id)
	}

	agent, proposer := newTestProposer(proposerId, transport, acceptors, roster)
	proposer.Tick()
	var number paxos.BallotNumber
	for _, id := range acceptors {
		if msg, ok := transport.Poll(id); ok {
			number = msg.BallotNumber
		}
	}
	proposer.HandleMessage(paxos.NewLastVote(a1, number, nil))
	proposer.HandleMessage(paxos.NewLastVote(a2, number, nil))
	for _, id := range acceptors {
		transport.Poll(id) // drain BeginBallot
	}

	snapshot := paxos.BallotSnapshot{Number: number, Decree: &paxos.Proposal{ProposerId: proposerId}}
	proposer.HandleMessage(paxos.NewVoted(a1, paxos.Vote{Ballot: snapshot, Acceptor: a1}))
	require.Nil(t, agent.Ledger()[0], "quorum needs both of the 2 acceptors; one Voted is not yet success")

	proposer.HandleMessage(paxos.NewVoted(a2, paxos.Vote{Ballot: snapshot, Acceptor: a2}))

	for _, id := range roster {
		if id == proposerId {
			continue
		}
		msg, ok := transport.Poll(id)
		require.True(t, ok, "Success must be broadcast to every roster member, id=%v", id)
		require.Equal(t, paxos.MsgSuccess, msg.Type)
	}
	require.NotNil(t, agent.Ledger()[0])
}

func TestProposer_StaleLastVoteForAbandonedBallotIsDropped(t *testing.T) {
	transport := newFakeTransport()
	a1, a2 := paxos.AgentId(1), paxos.AgentId(2)
	acceptors := []paxos.AgentId{a1, a2}
	for _, id := range acceptors {
		transport.Register(id)
	}
	proposerId := paxos.AgentId(0)
	_, proposer := newTestProposer(proposerId, transport, acceptors, append([]paxos.AgentId{proposerId}, acceptors...))

	proposer.Tick()
	var stale paxos.BallotNumber
	for _, id := range acceptors {
		if msg, ok := transport.Poll(id); ok {
			stale = msg.BallotNumber
		}
	}

	proposer.Tick() // period is 0, advances again, superseding the first ballot
	for _, id := range acceptors {
		transport.Poll(id) // drain the new round's NextBallot
	}

	proposer.HandleMessage(paxos.NewLastVote(a1, stale, nil))
	for _, id := range acceptors {
		_, ok := transport.Poll(id)
		require.False(t, ok, "a LastVote for a superseded ballot must not trigger a BeginBallot")
	}
}
