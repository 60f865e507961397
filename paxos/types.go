// Package paxos implements the consensus engine: message and ballot
// types, the acceptor and proposer state machines, the agent base that
// drives them, and the ballot-numbering and quorum/voting algebra from
// Lamport's Part-Time Parliament paper.
package paxos

import (
	"fmt"

	mapset "github.com/deckarep/golang-set"
)

// AgentId identifies an agent uniquely within an Assembly. Ids are
// handed out by the Assembly's allocator at construction time; nothing
// in this package allocates one itself, and there is no process-global
// counter.
type AgentId int64

func (id AgentId) String() string { return fmt.Sprintf("#%d", int64(id)) }

// Proposal is the opaque value being agreed upon. The simulator's
// convention is to make the payload the proposing agent's identity, so
// that a learned decree can be checked against "a valid Proposal(some
// proposer's id)" without a registry of real application values.
type Proposal struct {
	ProposerId AgentId
}

func (p Proposal) String() string { return fmt.Sprintf("Proposal(%s)", p.ProposerId) }

// BallotNumber is the lexicographic pair (BallotId, AgentId). Two
// ballot numbers from distinct proposers never compare equal because
// AgentId disambiguates the low half.
type BallotNumber struct {
	BallotId int64
	AgentId  AgentId
}

func (b BallotNumber) String() string {
	return fmt.Sprintf("Ballot(%d,%s)", b.BallotId, b.AgentId)
}

// Less reports whether b sorts strictly before o.
func (b BallotNumber) Less(o BallotNumber) bool {
	if b.BallotId != o.BallotId {
		return b.BallotId < o.BallotId
	}
	return b.AgentId < o.AgentId
}

// instanceIndex recovers a Multi-Paxos instance index from a ballot id;
// n == 1 recovers basic (single-decree) Paxos, for which the index is
// always 0.
func instanceIndex(ballotId int64, n int) int {
	return int(((ballotId % int64(n)) + int64(n)) % int64(n))
}

// BallotSnapshot is the wire-safe projection of a Ballot: just enough
// for a recipient to identify the ballot and, if applicable, learn the
// decree it carries. It deliberately omits Quorum and Voters — those
// live only in the proposer's own in-memory Ballot (see Ballot) so that
// no mutable set is ever shared between a proposer goroutine and an
// acceptor goroutine.
type BallotSnapshot struct {
	Number BallotNumber
	Decree *Proposal
}

// Ballot is the proposer-owned record of one ballot in progress. Decree
// is filled once, at the end of phase 1; Voters grows monotonically
// during phase 2. Neither field is ever read by an acceptor — acceptors
// only ever see a BallotSnapshot, copied out by Snapshot().
type Ballot struct {
	Number BallotNumber
	Decree *Proposal
	Quorum mapset.Set // set of AgentId
	Voters mapset.Set // set of AgentId, proposer-owned only
}

// Successful reports whether every member of Quorum has voted, per the
// paper's definition: a ballot succeeds iff quorum ⊆ voters.
func (b *Ballot) Successful() bool {
	return b.Quorum.IsSubset(b.Voters)
}

// Snapshot projects b onto the wire-safe type sent to acceptors.
func (b *Ballot) Snapshot() BallotSnapshot {
	return BallotSnapshot{Number: b.Number, Decree: b.Decree}
}

// Vote is (ballot, acceptor): the fact that a specific acceptor cast a
// vote in a specific ballot. It is totally ordered by its embedded
// ballot number.
type Vote struct {
	Ballot   BallotSnapshot
	Acceptor AgentId
}
