package parliament

import "time"

const (
	// DefaultPeriod is the interval, per spec.md §4.4, at which a
	// proposer spontaneously initiates a new ballot, whether or not it
	// has already learned a decree.
	DefaultPeriod = 60 * time.Second

	// FirstBallotLeadTime is how long after start a proposer's very
	// first spontaneous ballot fires (when the period is longer than
	// this), so that a freshly-started assembly doesn't sit idle for a
	// full period.
	FirstBallotLeadTime = 5 * time.Second

	// DefaultNbInstances is the Multi-Paxos instance count used when a
	// Config leaves NbInstances unset; 1 recovers basic (single-decree)
	// Paxos exactly.
	DefaultNbInstances = 1

	HttpMetricsPort = 9090
)
