package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/refound/refound/internal/item"
)

// BatchResult aggregates a batch embedding run. The counters are exact
// sums of the per-item outcomes.
type BatchResult struct {
	OperationID string            `json:"operation_id"`
	Total       int               `json:"total_items"`
	Successful  int               `json:"successful"`
	Failed      int               `json:"failed"`
	Results     []EmbeddingResult `json:"results"`
}

// BatchEmbed runs EnsureEmbeddings for each id in input order. Failures
// are strictly isolated per item: every id yields a result and
// processing always continues to the next one.
func (e *Engine) BatchEmbed(ctx context.Context, ids []int64, typ item.Type, force bool) *BatchResult {
	res := &BatchResult{
		OperationID: uuid.New().String(),
		Total:       len(ids),
		Results:     make([]EmbeddingResult, 0, len(ids)),
	}

	for _, id := range ids {
		r := e.EnsureEmbeddings(ctx, typ, id, force)
		if r.Success {
			res.Successful++
		} else {
			res.Failed++
		}
		res.Results = append(res.Results, r)
	}

	e.logger.Info("batch embedding finished",
		zap.String("operation_id", res.OperationID),
		zap.String("type", string(typ)),
		zap.Int("total", res.Total),
		zap.Int("successful", res.Successful),
		zap.Int("failed", res.Failed))
	return res
}

// CleanupResult reports a stale-embedding cleanup run.
type CleanupResult struct {
	OperationID       string `json:"operation_id"`
	OlderThanDays     int    `json:"older_than_days"`
	LostItemsUpdated  int    `json:"lost_items_updated"`
	FoundItemsUpdated int    `json:"found_items_updated"`
}

// Cleanup clears all embedding fields and metadata for items of both
// variants whose last update is older than the cutoff and which still
// hold a combined embedding. This is destructive and non-reversible;
// existing match records are left untouched and may reference items
// without embeddings until the next embed cycle.
func (e *Engine) Cleanup(ctx context.Context, olderThanDays int) (*CleanupResult, error) {
	cutoff := e.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour)
	res := &CleanupResult{
		OperationID:   uuid.New().String(),
		OlderThanDays: olderThanDays,
	}

	for _, typ := range []item.Type{item.TypeLost, item.TypeFound} {
		ids, err := e.store.ClearStaleEmbeddings(ctx, typ, cutoff)
		if err != nil {
			return nil, err
		}
		switch typ {
		case item.TypeLost:
			res.LostItemsUpdated = len(ids)
		case item.TypeFound:
			res.FoundItemsUpdated = len(ids)
		}
		if e.index != nil {
			for _, id := range ids {
				if err := e.index.DeleteItem(ctx, typ, id); err != nil {
					e.logger.Warn("vector index delete failed",
						zap.String("type", string(typ)), zap.Int64("id", id), zap.Error(err))
				}
			}
		}
	}

	e.logger.Info("stale embedding cleanup finished",
		zap.String("operation_id", res.OperationID),
		zap.Int("older_than_days", olderThanDays),
		zap.Int("lost_updated", res.LostItemsUpdated),
		zap.Int("found_updated", res.FoundItemsUpdated))
	return res, nil
}

// Stats reports embedding coverage, stamped with the active model.
func (e *Engine) Stats(ctx context.Context) (*item.EmbeddingStats, error) {
	st, err := e.store.EmbeddingStats(ctx)
	if err != nil {
		return nil, err
	}
	st.EmbeddingModel = e.provider.Model()
	return st, nil
}
