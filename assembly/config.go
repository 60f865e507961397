package assembly

import (
	"time"

	"github.com/go-kit/kit/log"
	"github.com/goshawkdb/parliament"
)

// Config is the Assembly's construction parameters (spec.md §4.5 /
// §6's Assembly::new). Zero-valued fields are completed with the
// paper's own defaults in withDefaults.
type Config struct {
	NProposers int
	NAcceptors int

	ProposerFailRate float64
	AcceptorFailRate float64

	// Period is how often an idle proposer spontaneously initiates a
	// new ballot (spec.md §4.2); defaults to parliament.DefaultPeriod.
	Period time.Duration

	// AvgFailureDuration scales the crash-sleep's Exp(1) draw.
	AvgFailureDuration time.Duration

	// NbInstances is the Multi-Paxos instance count; 1 recovers basic
	// Paxos.
	NbInstances int

	Logger log.Logger
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = parliament.DefaultPeriod
	}
	if c.NbInstances <= 0 {
		c.NbInstances = parliament.DefaultNbInstances
	}
	if c.AvgFailureDuration <= 0 {
		c.AvgFailureDuration = time.Second
	}
	if c.Logger == nil {
		c.Logger = log.NewNopLogger()
	}
	return c
}
