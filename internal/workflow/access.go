package workflow

import "fmt"

// Relationship is how an actor relates to a particular document.
type Relationship string

const (
	RelAny     Relationship = "any"
	RelAdviser Relationship = "adviser"
	RelOwner   Relationship = "owner"
)

type edge struct {
	from, to Status
}

// capability grants a role (optionally bound to a relationship) a set of edges.
// A nil edge set means every edge in the graph.
type capability struct {
	name  string
	roles []Role // empty matches any role
	rel   Relationship
	edges []edge
}

var capabilities = []capability{
	{
		name:  "admin override",
		roles: []Role{RoleAdmin},
		rel:   RelAny,
	},
	{
		name:  "library curation",
		roles: []Role{RoleLibrarian, RoleAdmin},
		rel:   RelAny,
		edges: []edge{
			{StatusApproved, StatusCuration},
			{StatusCuration, StatusReadyForPublication},
			{StatusReadyForPublication, StatusPublished},
		},
	},
	{
		name:  "adviser review",
		roles: []Role{RoleFaculty},
		rel:   RelAdviser,
		edges: []edge{
			{StatusPending, StatusUnderReview},
			{StatusUnderReview, StatusApproved},
			{StatusUnderReview, StatusPublished},
			{StatusUnderReview, StatusNeedsRevision},
			{StatusUnderReview, StatusRejected},
		},
	},
	{
		name: "author resubmission",
		rel:  RelOwner,
		edges: []edge{
			{StatusNeedsRevision, StatusPending},
		},
	},
}

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Rule    string
	Reason  string
}

// Err converts a denial into ErrUnauthorized.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnauthorized, d.Reason)
}

// Authorize evaluates the capability table in order for moving doc from its
// current status to target. It is a pure function of its inputs.
func Authorize(actor Actor, doc Document, target Status) Decision {
	if actor.ID == "" {
		return Decision{Reason: "anonymous actor"}
	}
	for _, c := range capabilities {
		if !c.matchesActor(actor, doc) {
			continue
		}
		if c.edges == nil || c.allows(doc.Status, target) {
			return Decision{Allowed: true, Rule: c.name}
		}
	}
	return Decision{Reason: fmt.Sprintf("%s %s may not move document from %s to %s",
		actor.Role, actor.ID, doc.Status, target)}
}

func (c capability) matchesActor(actor Actor, doc Document) bool {
	if len(c.roles) > 0 {
		ok := false
		for _, r := range c.roles {
			if actor.Role == r {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	switch c.rel {
	case RelAdviser:
		return doc.AdviserID != "" && doc.AdviserID == actor.ID
	case RelOwner:
		return doc.OwnerID != "" && doc.OwnerID == actor.ID
	default:
		return true
	}
}

func (c capability) allows(from, to Status) bool {
	for _, e := range c.edges {
		if e.from == from && e.to == to {
			return true
		}
	}
	return false
}
