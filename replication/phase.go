package replication

import "bundlesync/internal/check"

// Phase is the registration lifecycle of a Replica.
type Phase uint8

const (
	PhaseUnregistered Phase = iota + 1
	PhaseRegistering
	PhaseRegistered
	PhaseUpdated
	PhaseDeregistering
	PhaseGone
)

func (p Phase) String() string {
	switch p {
	case PhaseUnregistered:
		return "unregistered"
	case PhaseRegistering:
		return "registering"
	case PhaseRegistered:
		return "registered"
	case PhaseUpdated:
		return "updated"
	case PhaseDeregistering:
		return "deregistering"
	case PhaseGone:
		return "gone"
	default:
		return "unknown_phase"
	}
}

// Transition returns to if p may move there, and p otherwise.
// A push can land before the registration acknowledgement, so Registering
// may go straight to Updated.
func (p Phase) Transition(to Phase) Phase {
	ok := false
	switch p {
	case PhaseUnregistered:
		ok = to == PhaseRegistering || to == PhaseDeregistering
	case PhaseRegistering:
		ok = to == PhaseRegistered || to == PhaseUpdated || to == PhaseDeregistering
	case PhaseRegistered, PhaseUpdated:
		ok = to == PhaseUpdated || to == PhaseDeregistering
	case PhaseDeregistering:
		ok = to == PhaseGone
	}
	check.Assertf(ok, "replica transition: %s -> %s", p, to)
	if !ok {
		return p
	}
	return to
}

// Live reports whether a replica in this phase still serves lookups.
func (p Phase) Live() bool {
	return p != PhaseDeregistering && p != PhaseGone
}
