package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/refound/refound/internal/item"
	"github.com/refound/refound/internal/vector"
)

const itemColumns = `id, title, description, category, location, status,
	text_embedding, image_embedding, combined_embedding,
	embedding_model, embedding_version, has_images, created_at, updated_at`

// GetItem returns a single item of the given variant.
func (s *Store) GetItem(ctx context.Context, typ item.Type, id int64) (*item.Item, error) {
	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRow(ctx,
		fmt.Sprintf(`SELECT %s FROM %s WHERE id=$1`, itemColumns, table), id)
	it, err := scanItem(row, typ)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("%s item %d: %w", typ, id, ErrNotFound)
		}
		return nil, fmt.Errorf("get %s item %d: %w", typ, id, err)
	}
	return it, nil
}

// ListCandidates returns active items of the given variant that carry a
// combined embedding, in insertion order. An empty category means no
// category filter.
func (s *Store) ListCandidates(ctx context.Context, typ item.Type, category string) ([]*item.Item, error) {
	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE status=$1 AND combined_embedding IS NOT NULL`,
		itemColumns, table)
	args := []any{string(item.StatusActive)}
	if category != "" {
		query += ` AND category=$2`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s candidates: %w", typ, err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows, typ)
		if err != nil {
			// A corrupt stored vector must not abort the whole scan.
			s.logger.Warn("skipping corrupt candidate row",
				zap.String("type", string(typ)), zap.Error(err))
			continue
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListImageCandidates is like ListCandidates but requires an image
// embedding instead of a combined one, for reverse-image search.
func (s *Store) ListImageCandidates(ctx context.Context, typ item.Type, category string) ([]*item.Item, error) {
	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE status=$1 AND image_embedding IS NOT NULL`,
		itemColumns, table)
	args := []any{string(item.StatusActive)}
	if category != "" {
		query += ` AND category=$2`
		args = append(args, category)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list %s image candidates: %w", typ, err)
	}
	defer rows.Close()

	var items []*item.Item
	for rows.Next() {
		it, err := scanItem(rows, typ)
		if err != nil {
			s.logger.Warn("skipping corrupt candidate row",
				zap.String("type", string(typ)), zap.Error(err))
			continue
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// SaveEmbeddings commits an item's embedding state together with the
// processing outcome of its images as one transaction. Either all of it
// becomes durable or none of it does.
func (s *Store) SaveEmbeddings(ctx context.Context, it *item.Item, imgs []*item.Image) error {
	table, err := tableFor(it.Type)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var updatedAt time.Time
	err = tx.QueryRow(ctx, fmt.Sprintf(
		`UPDATE %s SET text_embedding=$1, image_embedding=$2, combined_embedding=$3,
		 embedding_model=$4, embedding_version=$5, has_images=$6, updated_at=NOW()
		 WHERE id=$7 RETURNING updated_at`, table),
		encodeNullable(it.TextEmbedding),
		encodeNullable(it.ImageEmbedding),
		encodeNullable(it.CombinedEmbedding),
		nullIfEmpty(it.EmbeddingModel),
		nullIfEmpty(it.EmbeddingVersion),
		it.HasImages, it.ID,
	).Scan(&updatedAt)
	if err != nil {
		if isNoRows(err) {
			return fmt.Errorf("%s item %d: %w", it.Type, it.ID, ErrNotFound)
		}
		return fmt.Errorf("update %s item %d embeddings: %w", it.Type, it.ID, err)
	}

	for _, img := range imgs {
		_, err := tx.Exec(ctx,
			`UPDATE images SET image_embedding=$1, embedding_model=$2,
			 embedding_status=$3, processing_error=$4, attempts=$5, updated_at=NOW()
			 WHERE id=$6`,
			encodeNullable(img.Embedding),
			nullIfEmpty(img.EmbeddingModel),
			string(img.EmbeddingStatus),
			nullIfEmpty(img.ProcessingError),
			img.Attempts, img.ID,
		)
		if err != nil {
			return fmt.Errorf("update image %d: %w", img.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit embeddings for %s item %d: %w", it.Type, it.ID, err)
	}
	it.UpdatedAt = updatedAt
	return nil
}

// ClearStaleEmbeddings clears all embedding fields and metadata for
// items of the given variant whose last update precedes cutoff and
// which currently hold a combined embedding. It returns the ids of the
// cleared rows.
func (s *Store) ClearStaleEmbeddings(ctx context.Context, typ item.Type, cutoff time.Time) ([]int64, error) {
	table, err := tableFor(typ)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, fmt.Sprintf(
		`UPDATE %s SET text_embedding=NULL, image_embedding=NULL, combined_embedding=NULL,
		 embedding_model=NULL, embedding_version=NULL
		 WHERE updated_at < $1 AND combined_embedding IS NOT NULL
		 RETURNING id`, table), cutoff)
	if err != nil {
		return nil, fmt.Errorf("clear stale %s embeddings: %w", typ, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan cleared id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner, typ item.Type) (*item.Item, error) {
	var it item.Item
	var textEmb, imgEmb, combEmb, model, version *string
	err := row.Scan(&it.ID, &it.Title, &it.Description, &it.Category, &it.Location,
		&it.Status, &textEmb, &imgEmb, &combEmb, &model, &version,
		&it.HasImages, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return nil, err
	}
	it.Type = typ
	if it.TextEmbedding, err = decodeNullable(textEmb); err != nil {
		return nil, fmt.Errorf("text embedding: %w", err)
	}
	if it.ImageEmbedding, err = decodeNullable(imgEmb); err != nil {
		return nil, fmt.Errorf("image embedding: %w", err)
	}
	if it.CombinedEmbedding, err = decodeNullable(combEmb); err != nil {
		return nil, fmt.Errorf("combined embedding: %w", err)
	}
	if model != nil {
		it.EmbeddingModel = *model
	}
	if version != nil {
		it.EmbeddingVersion = *version
	}
	return &it, nil
}

func encodeNullable(v []float32) *string {
	if v == nil {
		return nil
	}
	s := vector.Encode(v)
	return &s
}

func decodeNullable(s *string) ([]float32, error) {
	if s == nil {
		return nil, nil
	}
	return vector.Decode(*s)
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
