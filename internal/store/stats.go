package store

import (
	"context"
	"fmt"
	"time"

	"github.com/refound/refound/internal/item"
)

// EmbeddingStats reports embedding coverage across both item variants
// and their images.
func (s *Store) EmbeddingStats(ctx context.Context) (*item.EmbeddingStats, error) {
	var st item.EmbeddingStats
	err := s.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM lost_items),
			(SELECT COUNT(*) FROM found_items),
			(SELECT COUNT(*) FROM lost_items WHERE combined_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM found_items WHERE combined_embedding IS NOT NULL),
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM images WHERE image_embedding IS NOT NULL)`,
	).Scan(&st.TotalLostItems, &st.TotalFoundItems,
		&st.LostItemsWithEmbeddings, &st.FoundItemsWithEmbeddings,
		&st.TotalImages, &st.ImagesWithEmbeddings)
	if err != nil {
		return nil, fmt.Errorf("embedding stats: %w", err)
	}
	st.LastUpdated = time.Now().UTC()
	return &st, nil
}
