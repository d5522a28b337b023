package store

import (
	"context"
	"fmt"
	"time"

	"github.com/refound/refound/internal/item"
)

const matchColumns = `id, source_item_id, source_type, target_item_id, target_type,
	match_type, similarity_score, confidence_level, location_bonus, time_bonus,
	embedding_model, embedding_version, status, reviewed_by, review_notes,
	created_at, updated_at`

// CreateMatch inserts a new pending match and fills in its id and timestamps.
func (s *Store) CreateMatch(ctx context.Context, m *item.Match) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO similarity_matches (source_item_id, source_type, target_item_id, target_type,
		 match_type, similarity_score, confidence_level, location_bonus, time_bonus,
		 embedding_model, embedding_version, status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id, created_at, updated_at`,
		m.SourceItemID, string(m.SourceType), m.TargetItemID, string(m.TargetType),
		string(m.MatchType), m.SimilarityScore, m.ConfidenceLevel,
		m.LocationBonus, m.TimeBonus,
		m.EmbeddingModel, m.EmbeddingVersion, string(m.Status),
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// GetMatch returns a single match by id.
func (s *Store) GetMatch(ctx context.Context, id int64) (*item.Match, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(
		`SELECT %s FROM similarity_matches WHERE id=$1`, matchColumns), id)
	m, err := scanMatch(row)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get match %d: %w", id, err)
	}
	return m, nil
}

// UpdateMatchReview persists a review outcome. The row is never
// deleted, only transitioned.
func (s *Store) UpdateMatchReview(ctx context.Context, m *item.Match) error {
	var updatedAt time.Time
	err := s.db.QueryRow(ctx,
		`UPDATE similarity_matches
		 SET status=$1, reviewed_by=$2, review_notes=$3, updated_at=NOW()
		 WHERE id=$4 RETURNING updated_at`,
		string(m.Status), m.ReviewedBy, nullIfEmpty(m.ReviewNotes), m.ID,
	).Scan(&updatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("match %d: %w", m.ID, ErrNotFound)
		}
		return fmt.Errorf("update match %d review: %w", m.ID, err)
	}
	m.UpdatedAt = updatedAt
	return nil
}

// ListPendingMatches returns pending matches ordered by raw similarity,
// highest first.
func (s *Store) ListPendingMatches(ctx context.Context, limit int) ([]*item.Match, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM similarity_matches WHERE status=$1
		 ORDER BY similarity_score DESC LIMIT $2`, matchColumns),
		string(item.MatchPending), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending matches: %w", err)
	}
	defer rows.Close()

	var matches []*item.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func scanMatch(row rowScanner) (*item.Match, error) {
	var m item.Match
	var notes *string
	err := row.Scan(&m.ID, &m.SourceItemID, &m.SourceType, &m.TargetItemID, &m.TargetType,
		&m.MatchType, &m.SimilarityScore, &m.ConfidenceLevel, &m.LocationBonus, &m.TimeBonus,
		&m.EmbeddingModel, &m.EmbeddingVersion, &m.Status, &m.ReviewedBy, &notes,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if notes != nil {
		m.ReviewNotes = *notes
	}
	return &m, nil
}
