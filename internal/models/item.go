// Package models defines domain models for the community scoring engine.
package models

import (
	"time"
)

// Kind identifies what sort of votable item this is.
type Kind string

// Item kinds.
const (
	KindDrink     Kind = "drink"
	KindComponent Kind = "component"
)

// Kinds lists every supported item kind.
func Kinds() []Kind {
	return []Kind{KindDrink, KindComponent}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindDrink, KindComponent:
		return true
	default:
		return false
	}
}

// State is the lifecycle state of an item.
type State string

// Lifecycle states. Drinks use featured/retired, components use approved/rejected.
const (
	StatePending  State = "pending"
	StateFeatured State = "featured"
	StateRetired  State = "retired"
	StateApproved State = "approved"
	StateRejected State = "rejected"
)

// Terminal reports whether no transition may leave this state.
func (s State) Terminal() bool {
	return s == StateRetired || s == StateRejected
}

// Promoted reports whether the state places the item in its kind's top index.
func (s State) Promoted() bool {
	return s == StateFeatured || s == StateApproved
}

// Direction is the sign of a single vote.
type Direction int

// Vote directions. NoVote is what the ledger reports when a user never voted.
const (
	Downvote Direction = -1
	NoVote   Direction = 0
	Upvote   Direction = 1
)

// Valid reports whether d may be cast as a vote.
func (d Direction) Valid() bool {
	return d == Upvote || d == Downvote
}

// Item is a user-submitted drink or component that the community votes on.
type Item struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Score        int64     `json:"score"`
	State        State     `json:"state"`
	AuthorID     string    `json:"author_id"`
	Payload      string    `json:"payload,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	OriginPostID string    `json:"origin_post_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewItem carries the fields a submitter provides when creating an item.
type NewItem struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	AuthorID     string `json:"author_id"`
	Payload      string `json:"payload"`
	ThumbnailURL string `json:"thumbnail_url"`
	OriginPostID string `json:"origin_post_id"`
	// Seed is appended to the generated ID; only set by tests and fixtures.
	Seed string `json:"-"`
}

// Transition records a lifecycle change caused by a score mutation.
type Transition struct {
	ItemID string `json:"item_id"`
	Kind   Kind   `json:"kind"`
	From   State  `json:"from"`
	To     State  `json:"to"`
	Score  int64  `json:"score"`
}

// RankedItem is an item's position in a pending or promoted index.
type RankedItem struct {
	ItemID string `json:"item_id"`
	Score  int64  `json:"score"`
	Rank   int    `json:"rank"`
}
