// Package identity derives the active client identity from the two
// independent session slices (seeker vs company).
//
// The derived value is a tagged union, not stored state: it is recomputed on
// every session change and can flip to none and back. Consumers must not
// assume referential stability of the derived id across updates.
package identity

import "strings"

// Kind discriminates the client surface.
type Kind string

const (
	// KindNone means no session is active.
	KindNone Kind = "none"
	// KindUser is the job-seeker surface.
	KindUser Kind = "user"
	// KindCompany is the employer surface.
	KindCompany Kind = "company"
)

// Identity is the active client identity.
// Invariant: at most one non-none identity is active at a time.
type Identity struct {
	Kind Kind
	ID   string
}

// None is the zero identity.
var None = Identity{Kind: KindNone}

// IsNone reports whether no identity is active.
func (id Identity) IsNone() bool {
	return id.Kind == KindNone || id.Kind == ""
}

// Equal reports whether two identities denote the same session subject.
func (id Identity) Equal(other Identity) bool {
	if id.IsNone() && other.IsNone() {
		return true
	}
	return id.Kind == other.Kind && id.ID == other.ID
}

// Session is one authentication slice's snapshot: a subject id when a
// session is held, empty otherwise.
type Session struct {
	SubjectID string
}

// Active reports whether the slice currently holds a session.
func (s Session) Active() bool {
	return strings.TrimSpace(s.SubjectID) != ""
}

// Derive computes the active identity from the two session slices.
// Pure function: no side effects, no caching. When both slices hold a
// session, the user slice wins.
func Derive(user, company Session) Identity {
	if user.Active() {
		return Identity{Kind: KindUser, ID: strings.TrimSpace(user.SubjectID)}
	}
	if company.Active() {
		return Identity{Kind: KindCompany, ID: strings.TrimSpace(company.SubjectID)}
	}
	return None
}
