package identity

import "strings"

// State is who the current session acts for. An empty UserID means anonymous.
type State struct {
	UserID string
	Email  string
}

// Anonymous returns the signed-out state.
func Anonymous() State {
	return State{}
}

// Authenticated returns the state of a signed-in user.
func Authenticated(userID, email string) State {
	return State{UserID: strings.TrimSpace(userID), Email: strings.TrimSpace(email)}
}

func (s State) IsAuthenticated() bool {
	return strings.TrimSpace(s.UserID) != ""
}

// Same reports whether both states act for the same principal. Email is not compared.
func (s State) Same(other State) bool {
	return strings.TrimSpace(s.UserID) == strings.TrimSpace(other.UserID)
}

// Kind classifies an identity change.
type Kind int

const (
	Unchanged Kind = iota
	SignedIn
	SwitchedUser
	SignedOut
)

func (k Kind) String() string {
	switch k {
	case SignedIn:
		return "signed_in"
	case SwitchedUser:
		return "switched_user"
	case SignedOut:
		return "signed_out"
	default:
		return "unchanged"
	}
}

// Change is one observed identity transition.
type Change struct {
	Prev State
	Next State
}

// Kind classifies the change.
func (c Change) Kind() Kind {
	switch {
	case c.Prev.Same(c.Next):
		return Unchanged
	case !c.Prev.IsAuthenticated():
		return SignedIn
	case !c.Next.IsAuthenticated():
		return SignedOut
	default:
		return SwitchedUser
	}
}
