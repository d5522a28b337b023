package engine

import (
	"context"

	"github.com/refound/refound/internal/item"
)

// Review actions. Any other action string results in a plain
// "reviewed" status.
const (
	ActionConfirm = "confirm"
	ActionDismiss = "dismiss"
)

// ReviewMatch applies a human review outcome to a persisted match.
// Matches only ever transition out of pending through this call; the
// resulting states are terminal for automated logic, and repeat reviews
// simply overwrite the notes and timestamp.
func (e *Engine) ReviewMatch(ctx context.Context, matchID int64, action, notes string, reviewerID int64) (*item.Match, error) {
	m, err := e.store.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}

	switch action {
	case ActionConfirm:
		m.Status = item.MatchConfirmed
	case ActionDismiss:
		m.Status = item.MatchDismissed
	default:
		m.Status = item.MatchReviewed
	}
	m.ReviewedBy = &reviewerID
	m.ReviewNotes = notes

	if err := e.store.UpdateMatchReview(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// PendingMatches returns matches awaiting review, highest raw
// similarity first.
func (e *Engine) PendingMatches(ctx context.Context, limit int) ([]*item.Match, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return e.store.ListPendingMatches(ctx, limit)
}
