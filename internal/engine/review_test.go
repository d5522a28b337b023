package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/refound/refound/internal/item"
)

func seedPendingMatch(st *fakeStore, score float64) *item.Match {
	m := &item.Match{
		SourceItemID:     1,
		SourceType:       item.TypeLost,
		TargetItemID:     2,
		TargetType:       item.TypeFound,
		MatchType:        item.MatchCombined,
		SimilarityScore:  score,
		ConfidenceLevel:  score,
		EmbeddingModel:   "clip-test",
		EmbeddingVersion: "1.0",
		Status:           item.MatchPending,
	}
	st.CreateMatch(context.Background(), m)
	return m
}

func TestReviewMatchConfirm(t *testing.T) {
	st := newFakeStore()
	m := seedPendingMatch(st, 0.9)
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	got, err := e.ReviewMatch(context.Background(), m.ID, ActionConfirm, "same wallet", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != item.MatchConfirmed {
		t.Errorf("status %q, want confirmed", got.Status)
	}
	if got.ReviewedBy == nil || *got.ReviewedBy != 7 {
		t.Errorf("reviewed_by %v, want 7", got.ReviewedBy)
	}
	if got.ReviewNotes != "same wallet" {
		t.Errorf("notes %q", got.ReviewNotes)
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Error("updated_at must advance past created_at")
	}
}

func TestReviewMatchDismiss(t *testing.T) {
	st := newFakeStore()
	m := seedPendingMatch(st, 0.8)
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	got, err := e.ReviewMatch(context.Background(), m.ID, ActionDismiss, "", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != item.MatchDismissed {
		t.Errorf("status %q, want dismissed", got.Status)
	}
}

func TestReviewMatchOtherAction(t *testing.T) {
	st := newFakeStore()
	m := seedPendingMatch(st, 0.8)
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	got, err := e.ReviewMatch(context.Background(), m.ID, "needs-info", "asked owner for photos", 7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != item.MatchReviewed {
		t.Errorf("status %q, want reviewed for unrecognized action", got.Status)
	}
}

func TestReviewMatchNotFound(t *testing.T) {
	st := newFakeStore()
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	if _, err := e.ReviewMatch(context.Background(), 404, ActionConfirm, "", 7); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestReviewMatchRepeatOverwritesNotes(t *testing.T) {
	st := newFakeStore()
	m := seedPendingMatch(st, 0.8)
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	if _, err := e.ReviewMatch(context.Background(), m.ID, ActionConfirm, "first pass", 7); err != nil {
		t.Fatalf("first review: %v", err)
	}
	got, err := e.ReviewMatch(context.Background(), m.ID, ActionConfirm, "second pass", 8)
	if err != nil {
		t.Fatalf("second review: %v", err)
	}
	if got.ReviewNotes != "second pass" {
		t.Errorf("notes %q, want overwrite", got.ReviewNotes)
	}
	if got.Status != item.MatchConfirmed {
		t.Errorf("status %q, want confirmed", got.Status)
	}
}

func TestPendingMatchesOrderedByScore(t *testing.T) {
	st := newFakeStore()
	seedPendingMatch(st, 0.75)
	seedPendingMatch(st, 0.95)
	reviewed := seedPendingMatch(st, 0.99)
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	if _, err := e.ReviewMatch(context.Background(), reviewed.ID, ActionDismiss, "", 7); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	got, err := e.PendingMatches(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d pending, want 2", len(got))
	}
	if got[0].SimilarityScore != 0.95 || got[1].SimilarityScore != 0.75 {
		t.Errorf("order = [%v %v], want descending by score", got[0].SimilarityScore, got[1].SimilarityScore)
	}
}

func TestPendingMatchesLimit(t *testing.T) {
	st := newFakeStore()
	seedPendingMatch(st, 0.75)
	seedPendingMatch(st, 0.95)
	e := newTestEngine(st, &fakeProvider{}, nil, nil)

	got, err := e.PendingMatches(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].SimilarityScore != 0.95 {
		t.Fatalf("limit=1 should keep only the top match, got %d", len(got))
	}
}
