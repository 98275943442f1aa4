package leaderboard

import (
	"fmt"
	"sort"

	"github.com/aimd54/community-scoring-engine/internal/models"
)

// Outcome is what a submission did to a board.
type Outcome string

// Submission outcomes.
const (
	OutcomeInserted Outcome = "inserted"
	OutcomeReplaced Outcome = "replaced"
	// OutcomeIgnored means the user already holds an equal or better score.
	OutcomeIgnored Outcome = "ignored"
	// OutcomeDropped means the score did not make the cut after truncation.
	OutcomeDropped Outcome = "dropped"
)

// ranksBefore orders entries by score descending. Equal scores rank the earlier
// submission first, then the lower user ID.
func ranksBefore(a, b models.Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.UserID < b.UserID
}

// Rank sorts entries, truncates to limit and reassigns rank = index + 1.
// It reuses the backing array of entries.
func Rank(entries []models.Entry, limit int) []models.Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		return ranksBefore(entries[i], entries[j])
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Submit applies one run to a board's entries. An existing entry is only replaced by a
// strictly greater score.
func Submit(entries []models.Entry, run models.Entry, limit int) ([]models.Entry, Outcome) {
	outcome := OutcomeInserted
	found := false
	for i := range entries {
		if entries[i].UserID != run.UserID {
			continue
		}
		if run.Score <= entries[i].Score {
			return entries, OutcomeIgnored
		}
		entries[i] = run
		outcome = OutcomeReplaced
		found = true
		break
	}
	if !found {
		entries = append(entries, run)
	}

	entries = Rank(entries, limit)

	for _, e := range entries {
		if e.UserID == run.UserID {
			return entries, outcome
		}
	}
	return entries, OutcomeDropped
}

// Check names of integrity violations.
const (
	CheckSorted     = "sorted"
	CheckRank       = "rank"
	CheckLength     = "length"
	CheckPurity     = "purity"
	CheckUniqueUser = "unique_user"
)

// Violation describes one broken board invariant.
type Violation struct {
	Check  string `json:"check" yaml:"check"`
	Index  int    `json:"index" yaml:"index"`
	Detail string `json:"detail" yaml:"detail"`
}

// Check inspects a board without modifying it. pure boards must not hold power-up runs.
func Check(entries []models.Entry, limit int, pure bool) []Violation {
	var violations []Violation

	if limit > 0 && len(entries) > limit {
		violations = append(violations, Violation{
			Check:  CheckLength,
			Index:  limit,
			Detail: fmt.Sprintf("%d entries, limit %d", len(entries), limit),
		})
	}

	seen := make(map[string]int, len(entries))
	for i, e := range entries {
		if i > 0 && entries[i-1].Score < e.Score {
			violations = append(violations, Violation{
				Check:  CheckSorted,
				Index:  i,
				Detail: fmt.Sprintf("score %d after %d", e.Score, entries[i-1].Score),
			})
		}
		if e.Rank != i+1 {
			violations = append(violations, Violation{
				Check:  CheckRank,
				Index:  i,
				Detail: fmt.Sprintf("rank %d at position %d", e.Rank, i+1),
			})
		}
		if pure && e.PowerupUsed {
			violations = append(violations, Violation{
				Check:  CheckPurity,
				Index:  i,
				Detail: fmt.Sprintf("user %s used a power-up", e.UserID),
			})
		}
		if first, dup := seen[e.UserID]; dup {
			violations = append(violations, Violation{
				Check:  CheckUniqueUser,
				Index:  i,
				Detail: fmt.Sprintf("user %s also at position %d", e.UserID, first+1),
			})
		} else {
			seen[e.UserID] = i
		}
	}

	return violations
}

// Normalize is the repair procedure: drop duplicate users keeping their best run, drop
// power-up runs from pure boards, then re-rank.
func Normalize(entries []models.Entry, limit int, pure bool) []models.Entry {
	best := make(map[string]int, len(entries))
	kept := make([]models.Entry, 0, len(entries))
	for _, e := range entries {
		if pure && e.PowerupUsed {
			continue
		}
		if i, ok := best[e.UserID]; ok {
			if ranksBefore(e, kept[i]) {
				kept[i] = e
			}
			continue
		}
		best[e.UserID] = len(kept)
		kept = append(kept, e)
	}
	return Rank(kept, limit)
}
