package leaderboard

import (
	"context"

	"github.com/aimd54/community-scoring-engine/internal/models"
)

// Standing is a user's position on one live board.
type Standing struct {
	Window models.Window `json:"window"`
	Purity models.Purity `json:"purity"`
	Rank   int           `json:"rank"`
	Score  int64         `json:"score"`
	Of     int           `json:"of"`
}

// UserStats collects a user's standings across every live board.
type UserStats struct {
	UserID      string     `json:"user_id"`
	DisplayName string     `json:"display_name"`
	Standings   []Standing `json:"standings"`
	BestRank    int        `json:"best_rank"`
}

// GetUserStats returns the user's standing on each board they appear on. A user on no
// board gets empty standings and a zero best rank.
func (s *Service) GetUserStats(ctx context.Context, userID string) (*UserStats, error) {
	if userID == "" {
		return nil, models.InvalidInput("user id is required")
	}

	stats := &UserStats{
		UserID:    userID,
		Standings: []Standing{},
	}

	for _, board := range models.AllBoards() {
		entries, err := s.Board(ctx, board)
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if e.UserID != userID {
				continue
			}

			stats.Standings = append(stats.Standings, Standing{
				Window: board.Window,
				Purity: board.Purity,
				Rank:   e.Rank,
				Score:  e.Score,
				Of:     len(entries),
			})
			if e.DisplayName != "" {
				stats.DisplayName = e.DisplayName
			}
			if stats.BestRank == 0 || e.Rank < stats.BestRank {
				stats.BestRank = e.Rank
			}
			break
		}
	}

	return stats, nil
}
