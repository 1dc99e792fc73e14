package order

// TransitionPolicy decides which moves between non-cancelled states are
// allowed. Leaving CANCELLED is rejected regardless of policy.
type TransitionPolicy interface {
	Allows(from, to Status) bool
}

type permissive struct{}

func (permissive) Allows(from, to Status) bool { return from != StatusCancelled }

type strict struct{}

var forward = map[Status][]Status{
	StatusPending:        {StatusReadyForPickup, StatusCancelled},
	StatusReadyForPickup: {StatusCompleted, StatusCancelled},
}

func (strict) Allows(from, to Status) bool {
	for _, next := range forward[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// Permissive allows any move among PENDING, READY_FOR_PICKUP, COMPLETED
	// and into CANCELLED.
	Permissive TransitionPolicy = permissive{}
	// Strict allows PENDING -> READY_FOR_PICKUP -> COMPLETED and cancelling
	// from either of the first two.
	Strict TransitionPolicy = strict{}
)
