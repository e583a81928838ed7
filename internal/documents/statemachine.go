package documents

import "github.com/google/uuid"

var transitions = map[Status][]Status{
	StatusPending:          {StatusAwaitingApproval, StatusAutoGenerating},
	StatusAwaitingApproval: {StatusApproved, StatusRejected, StatusChangesRequested},
	StatusChangesRequested: {StatusAwaitingApproval},
	StatusApproved:         {StatusInProgress},
	StatusInProgress:       {StatusCompleted},
	StatusAutoGenerating:   {StatusCompleted},
}

// CanTransition reports whether from → to is a lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the allowed successors of s.
func NextStatuses(s Status) []Status {
	return append([]Status(nil), transitions[s]...)
}

func checkTransition(id uuid.UUID, from, to Status) error {
	if !CanTransition(from, to) {
		return &TransitionError{RequestID: id, From: from, To: to}
	}
	return nil
}
