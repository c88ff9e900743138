package domain

// Status is a member's lifecycle status.
type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
	StatusExpired   Status = "expired"
	StatusPending   Status = "pending"
)

// Statuses lists every lifecycle status in display order.
var Statuses = []Status{
	StatusActive,
	StatusInactive,
	StatusSuspended,
	StatusExpired,
	StatusPending,
}

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusExpired, StatusPending:
		return true
	}
	return false
}

// transitionTable is the full set of legal status transitions. A pair absent
// from the table (including every self-transition) is illegal.
var transitionTable = map[Status][]Status{
	StatusActive:    {StatusInactive, StatusSuspended, StatusPending},
	StatusInactive:  {StatusActive, StatusSuspended, StatusPending},
	StatusSuspended: {StatusActive, StatusInactive, StatusPending},
	StatusExpired:   {StatusActive, StatusPending},
	StatusPending:   {StatusActive, StatusInactive, StatusSuspended},
}

// AllowedTransitions returns the set of statuses a member in the given status
// may move to. The returned map is a fresh copy; callers may mutate it.
func AllowedTransitions(from Status) map[Status]bool {
	out := make(map[Status]bool, len(transitionTable[from]))
	for _, to := range transitionTable[from] {
		out[to] = true
	}
	return out
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to Status) bool {
	for _, t := range transitionTable[from] {
		if t == to {
			return true
		}
	}
	return false
}

// RequiresConfirmation reports whether a legal from -> to transition must be
// explicitly confirmed by the operator before it is applied. Suspension blocks
// facility access, so every transition into suspended is gated.
func RequiresConfirmation(from, to Status) bool {
	return CanTransition(from, to) && to == StatusSuspended
}
