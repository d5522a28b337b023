// Package engine is the similarity matching core: it manages the
// embedding lifecycle of items, answers nearest-neighbor queries over
// their combined embeddings, records cross-variant matches for review,
// and runs batch and maintenance operations.
package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/refound/refound/internal/embedding"
	"github.com/refound/refound/internal/item"
	"github.com/refound/refound/internal/lock"
	"github.com/refound/refound/internal/store"
)

// ErrNotFound is returned for unknown item or match ids.
var ErrNotFound = store.ErrNotFound

// ErrMissingEmbedding is returned when a similarity search is requested
// for an item that has no combined embedding yet. The caller must run
// EnsureEmbeddings first.
var ErrMissingEmbedding = errors.New("item has no combined embedding")

// Storage is the persistence surface the engine needs. *store.Store
// implements it; tests substitute an in-memory fake.
type Storage interface {
	GetItem(ctx context.Context, typ item.Type, id int64) (*item.Item, error)
	ListCandidates(ctx context.Context, typ item.Type, category string) ([]*item.Item, error)
	ListImageCandidates(ctx context.Context, typ item.Type, category string) ([]*item.Item, error)
	SaveEmbeddings(ctx context.Context, it *item.Item, imgs []*item.Image) error
	ClearStaleEmbeddings(ctx context.Context, typ item.Type, cutoff time.Time) ([]int64, error)

	ListImages(ctx context.Context, typ item.Type, itemID int64) ([]*item.Image, error)
	CountImages(ctx context.Context, typ item.Type, itemID int64) (int, error)

	CreateMatch(ctx context.Context, m *item.Match) error
	GetMatch(ctx context.Context, id int64) (*item.Match, error)
	UpdateMatchReview(ctx context.Context, m *item.Match) error
	ListPendingMatches(ctx context.Context, limit int) ([]*item.Match, error)

	EmbeddingStats(ctx context.Context) (*item.EmbeddingStats, error)
}

// ImageSource reads image bytes by their opaque file reference.
type ImageSource interface {
	ReadImage(ctx context.Context, ref string) ([]byte, error)
}

// Index is an optional write-through vector index kept in sync with
// committed embedding state. A nil Index disables indexing.
type Index interface {
	UpsertItem(ctx context.Context, typ item.Type, id int64, vector []float32, payload map[string]string) error
	DeleteItem(ctx context.Context, typ item.Type, id int64) error
}

// Config tunes the engine's scoring and versioning.
type Config struct {
	TextWeight       float64
	ImageWeight      float64
	EmbeddingVersion string
}

// Engine coordinates the embedding provider, the store, the per-item
// lock and the optional vector index.
type Engine struct {
	store    Storage
	provider embedding.Provider
	files    ImageSource
	locks    lock.Locker
	index    Index
	logger   *zap.Logger

	textWeight  float64
	imageWeight float64
	version     string

	now func() time.Time
}

// New creates an Engine. index may be nil.
func New(st Storage, provider embedding.Provider, files ImageSource,
	locks lock.Locker, index Index, cfg Config, logger *zap.Logger) *Engine {
	if cfg.TextWeight == 0 && cfg.ImageWeight == 0 {
		cfg.TextWeight, cfg.ImageWeight = 0.4, 0.6
	}
	if cfg.EmbeddingVersion == "" {
		cfg.EmbeddingVersion = "1.0"
	}
	return &Engine{
		store:       st,
		provider:    provider,
		files:       files,
		locks:       locks,
		index:       index,
		logger:      logger,
		textWeight:  cfg.TextWeight,
		imageWeight: cfg.ImageWeight,
		version:     cfg.EmbeddingVersion,
		now:         time.Now,
	}
}
