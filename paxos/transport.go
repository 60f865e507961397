package paxos

// Transport is the contract an Agent polls and sends through. The
// concrete Reliable and Unreliable implementations live in package
// transport; this interface is defined here, beside Message, because
// the contract is expressed purely in terms of C1's value types.
type Transport interface {
	// Register (re-)registers id, creating a fresh empty mailbox. Per
	// spec.md §4.1/§4.2, re-registering an id that already has a
	// mailbox replaces it — this is the mechanism that clears a
	// crash-restarted agent's queued messages.
	Register(id AgentId)

	// Send has no delivery guarantee: it may drop, delay, or reorder
	// depending on the implementation, but it never blocks.
	Send(dest AgentId, msg Message)

	// Poll is non-blocking and returns the oldest unread message for
	// id in FIFO order, or ok == false if the mailbox is empty or id
	// was never registered.
	Poll(id AgentId) (msg Message, ok bool)
}

// Pumper is implemented by transports that need a background worker —
// the Unreliable transport's delayed-delivery pump. Assembly checks for
// this via a type assertion (spec.md §6's "optional start/stop").
type Pumper interface {
	HasPump() bool
	Pump(stop <-chan struct{})
}
