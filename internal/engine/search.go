package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/refound/refound/internal/item"
	"github.com/refound/refound/internal/vector"
)

// SimilarQuery parameterizes an item-to-item similarity search.
type SimilarQuery struct {
	ItemID   int64
	ItemType item.Type
	// TargetType restricts the candidate population to one variant.
	// When nil, the opposite variant of the query item is searched.
	TargetType    *item.Type
	Threshold     float64
	MaxResults    int
	LocationBoost bool
	TimeBoost     bool
	// Record persists cross-variant hits as pending review matches.
	// Pure lookup calls leave it unset and write nothing.
	Record bool
}

// MatchCandidate is one ranked search hit. SimilarityScore is the raw
// cosine value; ConfidenceLevel includes boosts and may exceed 1.0.
// Neither is clamped.
type MatchCandidate struct {
	ItemID          int64          `json:"item_id"`
	ItemType        item.Type      `json:"item_type"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	Category        item.Category  `json:"category"`
	Location        string         `json:"location"`
	SimilarityScore float64        `json:"similarity_score"`
	ConfidenceLevel float64        `json:"confidence_level"`
	MatchType       item.MatchType `json:"match_type"`
	LocationBonus   *float64       `json:"location_bonus,omitempty"`
	TimeBonus       *float64       `json:"time_bonus,omitempty"`
	CreatedAt       time.Time      `json:"date_created"`
	ImageCount      int            `json:"image_count"`
}

// FindSimilar ranks items similar to an existing item by combined
// embedding, with optional location and recency boosts.
func (e *Engine) FindSimilar(ctx context.Context, q SimilarQuery) ([]MatchCandidate, error) {
	if q.MaxResults <= 0 {
		q.MaxResults = 10
	}

	queryItem, err := e.store.GetItem(ctx, q.ItemType, q.ItemID)
	if err != nil {
		return nil, err
	}
	if queryItem.CombinedEmbedding == nil {
		return nil, fmt.Errorf("%s item %d: %w", q.ItemType, q.ItemID, ErrMissingEmbedding)
	}

	targetType := q.ItemType.Opposite()
	if q.TargetType != nil {
		targetType = *q.TargetType
	}

	candidates, err := e.store.ListCandidates(ctx, targetType, "")
	if err != nil {
		return nil, err
	}

	now := e.now()
	var matches []MatchCandidate
	for _, cand := range candidates {
		if targetType == q.ItemType && cand.ID == q.ItemID {
			continue
		}
		if len(cand.CombinedEmbedding) != len(queryItem.CombinedEmbedding) {
			e.logger.Warn("skipping candidate with mismatched embedding dimension",
				zap.String("type", string(targetType)), zap.Int64("id", cand.ID))
			continue
		}

		similarity := vector.Cosine(queryItem.CombinedEmbedding, cand.CombinedEmbedding)
		if similarity < q.Threshold {
			continue
		}

		mc := MatchCandidate{
			ItemID:          cand.ID,
			ItemType:        cand.Type,
			Title:           cand.Title,
			Description:     cand.Description,
			Category:        cand.Category,
			Location:        cand.Location,
			SimilarityScore: similarity,
			ConfidenceLevel: similarity,
			MatchType:       item.MatchCombined,
			CreatedAt:       cand.CreatedAt,
		}
		if q.LocationBoost {
			b := locationBonus(queryItem.Location, cand.Location)
			mc.LocationBonus = &b
			mc.ConfidenceLevel *= b
		}
		if q.TimeBoost {
			b := timeBonus(now, cand.CreatedAt)
			mc.TimeBonus = &b
			mc.ConfidenceLevel *= b
		}

		count, err := e.store.CountImages(ctx, cand.Type, cand.ID)
		if err != nil {
			e.logger.Warn("image count failed",
				zap.String("type", string(cand.Type)), zap.Int64("id", cand.ID), zap.Error(err))
		}
		mc.ImageCount = count

		matches = append(matches, mc)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].ConfidenceLevel > matches[j].ConfidenceLevel
	})
	if len(matches) > q.MaxResults {
		matches = matches[:q.MaxResults]
	}

	if q.Record {
		e.recordMatches(ctx, queryItem, matches)
	}
	return matches, nil
}

// recordMatches persists cross-variant hits as pending review matches.
// Recording is best effort; a failed insert is logged and does not
// disturb the returned results.
func (e *Engine) recordMatches(ctx context.Context, queryItem *item.Item, matches []MatchCandidate) {
	for _, mc := range matches {
		if mc.ItemType == queryItem.Type {
			continue
		}
		m := &item.Match{
			SourceItemID:     queryItem.ID,
			SourceType:       queryItem.Type,
			TargetItemID:     mc.ItemID,
			TargetType:       mc.ItemType,
			MatchType:        mc.MatchType,
			SimilarityScore:  mc.SimilarityScore,
			ConfidenceLevel:  mc.ConfidenceLevel,
			LocationBonus:    mc.LocationBonus,
			TimeBonus:        mc.TimeBonus,
			EmbeddingModel:   e.provider.Model(),
			EmbeddingVersion: e.version,
			Status:           item.MatchPending,
		}
		if err := e.store.CreateMatch(ctx, m); err != nil {
			e.logger.Warn("recording match failed",
				zap.Int64("source", queryItem.ID), zap.Int64("target", mc.ItemID), zap.Error(err))
		}
	}
}

// SearchQuery parameterizes an ad-hoc (no query item) search.
type SearchQuery struct {
	// ItemType restricts the scan to one variant; nil scans both,
	// lost items first.
	ItemType   *item.Type
	Category   string
	Threshold  float64
	MaxResults int
}

func (q *SearchQuery) variants() []item.Type {
	if q.ItemType != nil {
		return []item.Type{*q.ItemType}
	}
	return []item.Type{item.TypeLost, item.TypeFound}
}

// SearchByText embeds a free-text query and ranks items by raw cosine
// similarity against their combined embeddings. No boosts apply: an
// ad-hoc query has no location or date of its own.
func (e *Engine) SearchByText(ctx context.Context, query string, q SearchQuery) ([]MatchCandidate, error) {
	queryVec, err := e.provider.EncodeText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	return e.scanAdHoc(ctx, queryVec, q, item.MatchText)
}

// SearchByImage embeds an uploaded image and ranks items by raw cosine
// similarity against their image embeddings (reverse-image search).
func (e *Engine) SearchByImage(ctx context.Context, data []byte, q SearchQuery) ([]MatchCandidate, error) {
	queryVec, err := e.provider.EncodeImage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("encode query image: %w", err)
	}
	return e.scanAdHoc(ctx, queryVec, q, item.MatchImage)
}

func (e *Engine) scanAdHoc(ctx context.Context, queryVec []float32, q SearchQuery, mt item.MatchType) ([]MatchCandidate, error) {
	if q.MaxResults <= 0 {
		q.MaxResults = 20
	}

	var matches []MatchCandidate
	for _, typ := range q.variants() {
		var candidates []*item.Item
		var err error
		if mt == item.MatchImage {
			candidates, err = e.store.ListImageCandidates(ctx, typ, q.Category)
		} else {
			candidates, err = e.store.ListCandidates(ctx, typ, q.Category)
		}
		if err != nil {
			return nil, err
		}

		for _, cand := range candidates {
			candVec := cand.CombinedEmbedding
			if mt == item.MatchImage {
				candVec = cand.ImageEmbedding
			}
			if len(candVec) != len(queryVec) {
				e.logger.Warn("skipping candidate with mismatched embedding dimension",
					zap.String("type", string(typ)), zap.Int64("id", cand.ID))
				continue
			}

			similarity := vector.Cosine(queryVec, candVec)
			if similarity < q.Threshold {
				continue
			}

			mc := MatchCandidate{
				ItemID:          cand.ID,
				ItemType:        cand.Type,
				Title:           cand.Title,
				Description:     cand.Description,
				Category:        cand.Category,
				Location:        cand.Location,
				SimilarityScore: similarity,
				ConfidenceLevel: similarity,
				MatchType:       mt,
				CreatedAt:       cand.CreatedAt,
			}
			if mt == item.MatchImage {
				count, err := e.store.CountImages(ctx, cand.Type, cand.ID)
				if err != nil {
					e.logger.Warn("image count failed",
						zap.String("type", string(cand.Type)), zap.Int64("id", cand.ID), zap.Error(err))
				}
				mc.ImageCount = count
			}
			matches = append(matches, mc)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})
	if len(matches) > q.MaxResults {
		matches = matches[:q.MaxResults]
	}
	return matches, nil
}

// locationBonus rewards matching locations: ×1.2 for an exact
// case-insensitive match, ×1.1 for token overlap, ×1.0 otherwise.
func locationBonus(a, b string) float64 {
	la := strings.ToLower(strings.TrimSpace(a))
	lb := strings.ToLower(strings.TrimSpace(b))
	if la == lb {
		return 1.2
	}
	for _, w := range strings.Fields(la) {
		if strings.Contains(lb, w) {
			return 1.1
		}
	}
	for _, w := range strings.Fields(lb) {
		if strings.Contains(la, w) {
			return 1.1
		}
	}
	return 1.0
}

// timeBonus rewards recent candidates by whole days of age:
// ≤1 day ×1.2, ≤7 days ×1.1, ≤30 days ×1.0, older ×0.9.
func timeBonus(now, createdAt time.Time) float64 {
	days := int(now.Sub(createdAt).Hours() / 24)
	switch {
	case days <= 1:
		return 1.2
	case days <= 7:
		return 1.1
	case days <= 30:
		return 1.0
	default:
		return 0.9
	}
}
