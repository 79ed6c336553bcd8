package domain

import "time"

// Question is a multiple-choice question loaded from the question bank.
// Choices holds the four answers in presentation order; Correct is the
// correct answer matched by value, since choice order is shuffled per
// presentation.
type Question struct {
	ID      int
	Text    string
	Choices []string
	Correct string
}

// Player is a registered quiz player. AnsweredIDs records every question
// the player has been shown across blocks; it only grows and never holds
// duplicates.
type Player struct {
	Name         string
	PasswordHash string
	Score        int
	BestScore    int
	AnsweredIDs  []int
	CreatedAt    time.Time
}

// HasAnswered reports whether the player was already shown the question.
func (p *Player) HasAnswered(questionID int) bool {
	for _, id := range p.AnsweredIDs {
		if id == questionID {
			return true
		}
	}
	return false
}

// Score is a per-player scoring snapshot carried on score events.
type Score struct {
	PlayerName    string
	Total         int
	TotalAnswered int
	BlockScore    int
	UpdateTime    time.Time
}

// LeaderboardEntry is a read-only projection of a player, recomputed from
// player records on demand.
type LeaderboardEntry struct {
	Name          string `json:"name"`
	Score         int    `json:"score"`
	TotalAnswered int    `json:"total_answered"`
	Percentage    int    `json:"percentage"`
}

// Leaderboard is the ranked view over all players, sorted by score
// descending with ties kept in store order.
type Leaderboard struct {
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updated_at"`
}
