package store

import (
	"context"
	"fmt"

	"github.com/refound/refound/internal/item"
)

const imageColumns = `id, item_id, item_type, file_ref, image_embedding,
	embedding_model, embedding_status, processing_error, attempts, created_at, updated_at`

// ListImages returns all images attached to an item, in insertion order.
func (s *Store) ListImages(ctx context.Context, typ item.Type, itemID int64) ([]*item.Image, error) {
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`SELECT %s FROM images WHERE item_type=$1 AND item_id=$2 ORDER BY id`, imageColumns),
		string(typ), itemID)
	if err != nil {
		return nil, fmt.Errorf("list images for %s item %d: %w", typ, itemID, err)
	}
	defer rows.Close()

	var imgs []*item.Image
	for rows.Next() {
		var img item.Image
		var emb, model, procErr *string
		if err := rows.Scan(&img.ID, &img.ItemID, &img.ItemType, &img.FileRef,
			&emb, &model, &img.EmbeddingStatus, &procErr, &img.Attempts,
			&img.CreatedAt, &img.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if img.Embedding, err = decodeNullable(emb); err != nil {
			return nil, fmt.Errorf("image %d embedding: %w", img.ID, err)
		}
		if model != nil {
			img.EmbeddingModel = *model
		}
		if procErr != nil {
			img.ProcessingError = *procErr
		}
		imgs = append(imgs, &img)
	}
	return imgs, rows.Err()
}

// CountImages returns the number of images attached to an item.
func (s *Store) CountImages(ctx context.Context, typ item.Type, itemID int64) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM images WHERE item_type=$1 AND item_id=$2`,
		string(typ), itemID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count images for %s item %d: %w", typ, itemID, err)
	}
	return n, nil
}
