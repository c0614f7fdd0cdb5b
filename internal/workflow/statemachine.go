package workflow

import "fmt"

// edges is the fixed transition graph. Every non-terminal state may also move
// to rejected; that override is added in init.
var edges = map[Status]map[Status]bool{
	StatusPending: {
		StatusUnderReview: true,
	},
	StatusUnderReview: {
		StatusApproved:      true,
		StatusPublished:     true, // reviewer fast path, skips curation
		StatusNeedsRevision: true,
		StatusRejected:      true,
	},
	StatusNeedsRevision: {
		StatusPending:     true,
		StatusUnderReview: true,
	},
	StatusApproved: {
		StatusCuration: true,
	},
	StatusCuration: {
		StatusReadyForPublication: true,
	},
	StatusReadyForPublication: {
		StatusPublished: true,
	},
}

func init() {
	for _, s := range Statuses {
		if s.Terminal() {
			continue
		}
		if edges[s] == nil {
			edges[s] = map[Status]bool{}
		}
		edges[s][StatusRejected] = true
	}
}

// ValidEdge reports whether from -> to is in the transition graph.
func ValidEdge(from, to Status) bool {
	return edges[from][to]
}

// ValidateEdge returns ErrInvalidTransition for edges outside the graph.
func ValidateEdge(from, to Status) error {
	if !ValidEdge(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Targets returns the states reachable in one step from s, in pipeline order.
func Targets(s Status) []Status {
	var out []Status
	for _, to := range Statuses {
		if edges[s][to] {
			out = append(out, to)
		}
	}
	return out
}

// Replay rebuilds a document status from its ordered history, starting at
// pending. Each record must continue from the previous one along a valid edge.
func Replay(records []TransitionRecord) (Status, error) {
	current := StatusPending
	for i, rec := range records {
		if i == 0 && rec.FromStatus == "" && rec.ToStatus == StatusPending {
			// creation entry written by the submission path
			continue
		}
		if rec.FromStatus == "" && i > 0 {
			return current, fmt.Errorf("%w: record %d has no from status", ErrInvalidTransition, i+1)
		}
		if rec.FromStatus != "" && rec.FromStatus != current {
			return current, fmt.Errorf("%w: record %d starts at %s, ledger is at %s",
				ErrInvalidTransition, i+1, rec.FromStatus, current)
		}
		if err := ValidateEdge(current, rec.ToStatus); err != nil {
			return current, fmt.Errorf("record %d: %w", i+1, err)
		}
		current = rec.ToStatus
	}
	return current, nil
}
