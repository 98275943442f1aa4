package store

import (
	"fmt"

	"github.com/aimd54/community-scoring-engine/internal/models"
)

// Keys builds the key layout under a namespace prefix.
type Keys struct {
	prefix string
}

// NewKeys returns a key builder. An empty namespace yields unprefixed keys.
func NewKeys(namespace string) Keys {
	if namespace == "" {
		return Keys{}
	}
	return Keys{prefix: namespace + ":"}
}

// Item is the hash holding an item's score, state and metadata.
func (k Keys) Item(id string) string {
	return fmt.Sprintf("%sitem:%s", k.prefix, id)
}

// ItemVotes is the hash of userID -> direction for an item.
func (k Keys) ItemVotes(id string) string {
	return fmt.Sprintf("%sitem:%s:votes", k.prefix, id)
}

// StateIndex is the sorted set of items of kind currently in state, scored by item score.
// Only pending and promoted states are indexed.
func (k Keys) StateIndex(kind models.Kind, state models.State) string {
	return fmt.Sprintf("%sindex:%s:%s", k.prefix, kind, state)
}

// Leaderboard is the live JSON leaderboard for a window and purity.
func (k Keys) Leaderboard(board models.BoardID) string {
	return fmt.Sprintf("%sleaderboard:%s:%s", k.prefix, board.Window, board.Purity)
}

// Archive is the dated snapshot of a leaderboard.
func (k Keys) Archive(board models.BoardID, dateKey string) string {
	return fmt.Sprintf("%sleaderboard:archive:%s:%s:%s", k.prefix, board.Window, board.Purity, dateKey)
}

// RateLimit is the sorted set of admission timestamps for an action and user.
func (k Keys) RateLimit(action, userID string) string {
	return fmt.Sprintf("%sratelimit:%s:%s", k.prefix, action, userID)
}
