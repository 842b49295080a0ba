// Package policy holds the pure visibility and mutation rules for cards.
package policy

// Visibility of a card.
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

// Viewer is the authenticated identity a decision is made for.
// TeamID is empty for administrative accounts.
type Viewer struct {
	ID     string
	TeamID string
}

// Card carries the fields the policy needs to decide on.
type Card struct {
	ID            string
	OwnerTeamID   string
	CreatorUserID string
	Visibility    Visibility
}

// CanRead reports whether the viewer may see the card: public cards are
// visible to every authenticated user, private cards only to the owning
// team. A teamless viewer sees public cards only.
func CanRead(viewer Viewer, card Card) bool {
	if viewer.ID == "" || card.ID == "" {
		return false
	}
	if card.Visibility == VisibilityPublic {
		return true
	}
	if card.Visibility != VisibilityPrivate {
		return false
	}
	return viewer.TeamID != "" && viewer.TeamID == card.OwnerTeamID
}

// CanMutate reports whether the viewer may update or delete the card.
// Only the creator may mutate; team membership is irrelevant here.
func CanMutate(viewer Viewer, card Card) bool {
	if viewer.ID == "" || card.ID == "" {
		return false
	}
	return viewer.ID == card.CreatorUserID
}

// ValidVisibility reports whether the value is one of the two allowed
// visibility states.
func ValidVisibility(value Visibility) bool {
	return value == VisibilityPublic || value == VisibilityPrivate
}
