package models

import (
	"time"
)

// Window is a leaderboard time scope.
type Window string

// Leaderboard windows.
const (
	WindowDaily  Window = "daily"
	WindowWeekly Window = "weekly"
)

// Windows lists every leaderboard window.
func Windows() []Window {
	return []Window{WindowDaily, WindowWeekly}
}

// Valid reports whether w is a known window.
func (w Window) Valid() bool {
	return w == WindowDaily || w == WindowWeekly
}

// Purity selects whether power-up assisted runs are included.
type Purity string

// Leaderboard purity classes.
const (
	PurityAll  Purity = "all"
	PurityPure Purity = "pure"
)

// Purities lists every purity class.
func Purities() []Purity {
	return []Purity{PurityAll, PurityPure}
}

// Valid reports whether p is a known purity class.
func (p Purity) Valid() bool {
	return p == PurityAll || p == PurityPure
}

// BoardID names one live leaderboard.
type BoardID struct {
	Window Window `json:"window" yaml:"window"`
	Purity Purity `json:"purity" yaml:"purity"`
}

// String implements fmt.Stringer.
func (b BoardID) String() string {
	return string(b.Window) + ":" + string(b.Purity)
}

// AllBoards lists the four live leaderboards.
func AllBoards() []BoardID {
	boards := make([]BoardID, 0, 4)
	for _, w := range Windows() {
		for _, p := range Purities() {
			boards = append(boards, BoardID{Window: w, Purity: p})
		}
	}
	return boards
}

// Entry is one user's best run on a leaderboard.
type Entry struct {
	UserID      string    `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Score       int64     `json:"score"`
	Rank        int       `json:"rank"`
	PowerupUsed bool      `json:"powerup_used"`
	Timestamp   time.Time `json:"timestamp"`
}
