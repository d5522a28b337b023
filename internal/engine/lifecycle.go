package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/refound/refound/internal/item"
	"github.com/refound/refound/internal/vector"
)

// EmbeddingResult is the per-item outcome of an embedding run. It is a
// value, never an error: batch callers rely on every item producing one.
type EmbeddingResult struct {
	ItemID      int64     `json:"item_id"`
	ItemType    item.Type `json:"item_type"`
	Success     bool      `json:"success"`
	Model       string    `json:"embedding_model"`
	HasText     bool      `json:"has_text_embedding"`
	HasImage    bool      `json:"has_image_embedding"`
	HasCombined bool      `json:"has_combined_embedding"`
	Error       string    `json:"error_message,omitempty"`
}

// EnsureEmbeddings generates (or regenerates, when force is set) the
// text, image and combined embeddings for one item and commits them
// atomically. An individual image's encoding failure marks only that
// image failed; it never aborts the text embedding or sibling images.
func (e *Engine) EnsureEmbeddings(ctx context.Context, typ item.Type, id int64, force bool) EmbeddingResult {
	res := EmbeddingResult{ItemID: id, ItemType: typ, Model: e.provider.Model()}

	fail := func(err error) EmbeddingResult {
		e.logger.Error("embedding generation failed",
			zap.String("type", string(typ)), zap.Int64("id", id), zap.Error(err))
		res.Error = err.Error()
		return res
	}

	release, err := e.locks.Acquire(ctx, fmt.Sprintf("%s:%d", typ, id))
	if err != nil {
		return fail(fmt.Errorf("acquire item lock: %w", err))
	}
	defer release()

	it, err := e.store.GetItem(ctx, typ, id)
	if err != nil {
		return fail(err)
	}

	// Idempotent short-circuit: existing embeddings stay untouched and
	// the provider is never called.
	if !force && it.CombinedEmbedding != nil {
		res.Success = true
		res.HasText = it.TextEmbedding != nil
		res.HasImage = it.ImageEmbedding != nil
		res.HasCombined = true
		return res
	}

	textVec, err := e.provider.EncodeText(ctx, it.Description)
	if err != nil {
		return fail(fmt.Errorf("encode description: %w", err))
	}

	imgs, err := e.store.ListImages(ctx, typ, id)
	if err != nil {
		return fail(err)
	}

	var succeeded [][]float32
	for _, img := range imgs {
		vec, encErr := e.encodeImage(ctx, img.FileRef)
		if encErr != nil {
			e.logger.Warn("image encoding failed",
				zap.Int64("image_id", img.ID), zap.Error(encErr))
			img.EmbeddingStatus = item.ImageFailed
			img.ProcessingError = encErr.Error()
			img.Attempts++
			continue
		}
		img.Embedding = vec
		img.EmbeddingStatus = item.ImageProcessed
		img.EmbeddingModel = e.provider.Model()
		img.ProcessingError = ""
		succeeded = append(succeeded, vec)
	}

	it.TextEmbedding = textVec
	if len(succeeded) > 0 {
		mean, err := vector.Mean(succeeded)
		if err != nil {
			return fail(fmt.Errorf("average image embeddings: %w", err))
		}
		it.ImageEmbedding = mean
		it.HasImages = true
	}

	if it.ImageEmbedding != nil {
		combined, err := vector.Combine(it.TextEmbedding, it.ImageEmbedding, e.textWeight, e.imageWeight)
		if err != nil {
			return fail(fmt.Errorf("combine embeddings: %w", err))
		}
		it.CombinedEmbedding = combined
	} else {
		// No image signal: the combined embedding carries the same
		// values as the text embedding.
		it.CombinedEmbedding = append([]float32(nil), it.TextEmbedding...)
	}

	it.EmbeddingModel = e.provider.Model()
	it.EmbeddingVersion = e.version

	if err := e.store.SaveEmbeddings(ctx, it, imgs); err != nil {
		return fail(fmt.Errorf("persist embeddings: %w", err))
	}

	if e.index != nil {
		if err := e.index.UpsertItem(ctx, typ, id, it.CombinedEmbedding, map[string]string{
			"title":    it.Title,
			"category": string(it.Category),
		}); err != nil {
			// The store is the source of truth; a lagging index is tolerable.
			e.logger.Warn("vector index upsert failed",
				zap.String("type", string(typ)), zap.Int64("id", id), zap.Error(err))
		}
	}

	res.Success = true
	res.HasText = true
	res.HasImage = it.ImageEmbedding != nil
	res.HasCombined = true
	return res
}

func (e *Engine) encodeImage(ctx context.Context, ref string) ([]float32, error) {
	data, err := e.files.ReadImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	return e.provider.EncodeImage(ctx, data)
}
