// Package leaderboard projects stored ratings into a ranked, read-only view.
package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/okian/skillboard/internal/domain/model"
	"github.com/okian/skillboard/internal/domain/rating"
)

// EmptyText is rendered for a board with no players.
const EmptyText = "Leaderboard is empty."

// Board titles.
const (
	// DefaultTitle heads a board shown on request.
	DefaultTitle = "**Leaderboard**"
	// UpdatedTitle heads the board posted after a live report.
	UpdatedTitle = "**Updated Leaderboard**"
)

// Lister loads every stored rating, ordered by player id.
type Lister interface {
	List(ctx context.Context) ([]model.PlayerRating, error)
}

// Entry is one ranked row.
type Entry struct {
	Rank     int     `json:"rank"`
	PlayerID int64   `json:"player_id,string"`
	Mu       float64 `json:"mu"`
	Sigma    float64 `json:"sigma"`
	Score    float64 `json:"score"`
}

// Board is the projected leaderboard. Empty is set when no player exists.
type Board struct {
	Entries []Entry `json:"entries"`
	Empty   bool    `json:"empty"`
}

// Projector ranks players by the model's exposure.
type Projector struct {
	store Lister
	model rating.Model
}

// New creates a Projector.
func New(store Lister, m rating.Model) *Projector {
	return &Projector{store: store, model: m}
}

// Project loads all ratings and sorts them by descending exposure. Players
// with equal exposure keep the store's order.
func (p *Projector) Project(ctx context.Context) (Board, error) {
	list, err := p.store.List(ctx)
	if err != nil {
		return Board{}, fmt.Errorf("load ratings: %w", err)
	}
	if len(list) == 0 {
		return Board{Entries: []Entry{}, Empty: true}, nil
	}

	entries := make([]Entry, len(list))
	for i, r := range list {
		entries[i] = Entry{
			PlayerID: r.PlayerID,
			Mu:       r.Mu,
			Sigma:    r.Sigma,
			Score:    p.model.Exposure(rating.Rating{Mu: r.Mu, Sigma: r.Sigma}),
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return Board{Entries: entries}, nil
}

// Render formats the board as chat text under title.
func (b Board) Render(title string) string {
	if b.Empty || len(b.Entries) == 0 {
		return EmptyText
	}
	if title == "" {
		title = DefaultTitle
	}
	var sb strings.Builder
	sb.WriteString(title)
	for _, e := range b.Entries {
		fmt.Fprintf(&sb, "\n%d. <@%d> — score: %.1f | μ: %.1f, σ: %.2f", e.Rank, e.PlayerID, e.Score, e.Mu, e.Sigma)
	}
	return sb.String()
}
