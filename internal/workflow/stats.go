package workflow

import "context"

// CountByStatus returns the number of documents per status inside the
// actor's scope. Every status is present in the result, zero or not.
func (e *Engine) CountByStatus(ctx context.Context, actor Actor) (map[Status]int, error) {
	if err := checkActor(actor); err != nil {
		return nil, err
	}
	counts, err := e.store.CountByStatus(ctx, ScopeFor(actor))
	if err != nil {
		return nil, err
	}
	out := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		out[s] = counts[s]
	}
	return out, nil
}
