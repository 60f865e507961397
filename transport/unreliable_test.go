package transport_test

import (
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament/paxos"
	"github.com/goshawkdb/parliament/transport"
	"github.com/stretchr/testify/require"
)

func TestUnreliable_RejectsInvalidParameters(t *testing.T) {
	_, err := transport.NewUnreliable(-0.1, 0, log.NewNopLogger())
	require.Error(t, err)

	_, err = transport.NewUnreliable(0.5, -time.Second, log.NewNopLogger())
	require.Error(t, err)

	_, err = transport.NewUnreliable(0.5, time.Second, log.NewNopLogger())
	require.NoError(t, err)
}

func TestUnreliable_ZeroFailureRateAndDelayDeliversImmediately(t *testing.T) {
	u, err := transport.NewUnreliable(0, 0, log.NewNopLogger())
	require.NoError(t, err)

	dest := paxos.AgentId(1)
	u.Register(dest)
	u.Send(dest, paxos.NewNextBallot(paxos.AgentId(0), paxos.BallotNumber{BallotId: 1}))

	msg, ok := u.Poll(dest)
	require.True(t, ok)
	require.Equal(t, int64(1), msg.BallotNumber.BallotId)
}

func TestUnreliable_AlwaysFailDropsEveryMessage(t *testing.T) {
	u, err := transport.NewUnreliable(1, 0, log.NewNopLogger())
	require.NoError(t, err)

	dest := paxos.AgentId(1)
	u.Register(dest)
	u.Send(dest, paxos.NewNextBallot(paxos.AgentId(0), paxos.BallotNumber{}))

	_, ok := u.Poll(dest)
	require.False(t, ok)
}

func TestUnreliable_DelayedDeliveryArrivesOnlyAfterPumping(t *testing.T) {
	u, err := transport.NewUnreliable(0, 50*time.Millisecond, log.NewNopLogger())
	require.NoError(t, err)

	dest := paxos.AgentId(1)
	u.Register(dest)
	u.Send(dest, paxos.NewNextBallot(paxos.AgentId(0), paxos.BallotNumber{BallotId: 1}))

	_, ok := u.Poll(dest)
	require.False(t, ok, "a delayed delivery must not arrive before the pump runs")

	stop := make(chan struct{})
	defer close(stop)
	go u.Pump(stop)

	require.Eventually(t, func() bool {
		_, ok := u.Poll(dest)
		return ok
	}, time.Second, 5*time.Millisecond)
}

type countingMetrics struct{ dropped int }

func (c *countingMetrics) IncMessagesDropped() { c.dropped++ }

func TestUnreliable_SetMetricsCountsSimulatedLoss(t *testing.T) {
	u, err := transport.NewUnreliable(1, 0, log.NewNopLogger())
	require.NoError(t, err)

	m := &countingMetrics{}
	u.SetMetrics(m)

	dest := paxos.AgentId(1)
	u.Register(dest)
	u.Send(dest, paxos.NewNextBallot(paxos.AgentId(0), paxos.BallotNumber{}))
	u.Send(dest, paxos.NewNextBallot(paxos.AgentId(0), paxos.BallotNumber{}))

	require.Equal(t, 2, m.dropped)
}

func TestUnreliable_RegisterDuringFlightIsTolerated(t *testing.T) {
	u, err := transport.NewUnreliable(0, 50*time.Millisecond, log.NewNopLogger())
	require.NoError(t, err)

	dest := paxos.AgentId(1)
	u.Register(dest)
	u.Send(dest, paxos.NewNextBallot(paxos.AgentId(0), paxos.BallotNumber{BallotId: 1}))

	stop := make(chan struct{})
	defer close(stop)
	go u.Pump(stop)

	u.Register(dest) // simulated crash-restart: new mailbox, stale delivery must not surface

	time.Sleep(200 * time.Millisecond)
	_, ok := u.Poll(dest)
	require.False(t, ok, "a delivery scheduled before a restart must not land in the post-restart mailbox")
}
