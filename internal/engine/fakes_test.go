package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/refound/refound/internal/item"
)

type itemKey struct {
	typ item.Type
	id  int64
}

// fakeStore is an in-memory Storage for engine tests.
type fakeStore struct {
	items   map[itemKey]*item.Item
	images  map[itemKey][]*item.Image
	matches map[int64]*item.Match

	nextMatchID int64
	saveErr     error
	saveCalls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items:   make(map[itemKey]*item.Item),
		images:  make(map[itemKey][]*item.Image),
		matches: make(map[int64]*item.Match),
	}
}

func copyItem(it *item.Item) *item.Item {
	c := *it
	c.TextEmbedding = append([]float32(nil), it.TextEmbedding...)
	c.ImageEmbedding = append([]float32(nil), it.ImageEmbedding...)
	c.CombinedEmbedding = append([]float32(nil), it.CombinedEmbedding...)
	if it.TextEmbedding == nil {
		c.TextEmbedding = nil
	}
	if it.ImageEmbedding == nil {
		c.ImageEmbedding = nil
	}
	if it.CombinedEmbedding == nil {
		c.CombinedEmbedding = nil
	}
	return &c
}

func (f *fakeStore) putItem(it *item.Item) {
	f.items[itemKey{it.Type, it.ID}] = it
}

func (f *fakeStore) putImage(img *item.Image) {
	k := itemKey{img.ItemType, img.ItemID}
	f.images[k] = append(f.images[k], img)
}

func (f *fakeStore) GetItem(_ context.Context, typ item.Type, id int64) (*item.Item, error) {
	it, ok := f.items[itemKey{typ, id}]
	if !ok {
		return nil, fmt.Errorf("%s item %d: %w", typ, id, ErrNotFound)
	}
	return copyItem(it), nil
}

func (f *fakeStore) listItems(typ item.Type) []*item.Item {
	var out []*item.Item
	for k, it := range f.items {
		if k.typ == typ {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) ListCandidates(_ context.Context, typ item.Type, category string) ([]*item.Item, error) {
	var out []*item.Item
	for _, it := range f.listItems(typ) {
		if it.Status != item.StatusActive || it.CombinedEmbedding == nil {
			continue
		}
		if category != "" && string(it.Category) != category {
			continue
		}
		out = append(out, copyItem(it))
	}
	return out, nil
}

func (f *fakeStore) ListImageCandidates(_ context.Context, typ item.Type, category string) ([]*item.Item, error) {
	var out []*item.Item
	for _, it := range f.listItems(typ) {
		if it.Status != item.StatusActive || it.ImageEmbedding == nil {
			continue
		}
		if category != "" && string(it.Category) != category {
			continue
		}
		out = append(out, copyItem(it))
	}
	return out, nil
}

func (f *fakeStore) SaveEmbeddings(_ context.Context, it *item.Item, imgs []*item.Image) error {
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	stored, ok := f.items[itemKey{it.Type, it.ID}]
	if !ok {
		return fmt.Errorf("%s item %d: %w", it.Type, it.ID, ErrNotFound)
	}
	now := time.Now()
	*stored = *copyItem(it)
	stored.UpdatedAt = now
	it.UpdatedAt = now

	byID := make(map[int64]*item.Image)
	for _, img := range f.images[itemKey{it.Type, it.ID}] {
		byID[img.ID] = img
	}
	for _, img := range imgs {
		if stored, ok := byID[img.ID]; ok {
			*stored = *img
			stored.UpdatedAt = now
		}
	}
	return nil
}

func (f *fakeStore) ClearStaleEmbeddings(_ context.Context, typ item.Type, cutoff time.Time) ([]int64, error) {
	var ids []int64
	for _, it := range f.listItems(typ) {
		if it.CombinedEmbedding == nil || !it.UpdatedAt.Before(cutoff) {
			continue
		}
		it.TextEmbedding = nil
		it.ImageEmbedding = nil
		it.CombinedEmbedding = nil
		it.EmbeddingModel = ""
		it.EmbeddingVersion = ""
		ids = append(ids, it.ID)
	}
	return ids, nil
}

func (f *fakeStore) ListImages(_ context.Context, typ item.Type, itemID int64) ([]*item.Image, error) {
	var out []*item.Image
	for _, img := range f.images[itemKey{typ, itemID}] {
		c := *img
		out = append(out, &c)
	}
	return out, nil
}

func (f *fakeStore) CountImages(_ context.Context, typ item.Type, itemID int64) (int, error) {
	return len(f.images[itemKey{typ, itemID}]), nil
}

func (f *fakeStore) CreateMatch(_ context.Context, m *item.Match) error {
	f.nextMatchID++
	m.ID = f.nextMatchID
	m.CreatedAt = time.Now().Add(-time.Second)
	m.UpdatedAt = m.CreatedAt
	c := *m
	f.matches[m.ID] = &c
	return nil
}

func (f *fakeStore) GetMatch(_ context.Context, id int64) (*item.Match, error) {
	m, ok := f.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %d: %w", id, ErrNotFound)
	}
	c := *m
	return &c, nil
}

func (f *fakeStore) UpdateMatchReview(_ context.Context, m *item.Match) error {
	stored, ok := f.matches[m.ID]
	if !ok {
		return fmt.Errorf("match %d: %w", m.ID, ErrNotFound)
	}
	now := time.Now()
	stored.Status = m.Status
	stored.ReviewedBy = m.ReviewedBy
	stored.ReviewNotes = m.ReviewNotes
	stored.UpdatedAt = now
	m.UpdatedAt = now
	return nil
}

func (f *fakeStore) ListPendingMatches(_ context.Context, limit int) ([]*item.Match, error) {
	var out []*item.Match
	for _, m := range f.matches {
		if m.Status == item.MatchPending {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SimilarityScore > out[j].SimilarityScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) EmbeddingStats(_ context.Context) (*item.EmbeddingStats, error) {
	st := &item.EmbeddingStats{LastUpdated: time.Now()}
	for k, it := range f.items {
		switch k.typ {
		case item.TypeLost:
			st.TotalLostItems++
			if it.CombinedEmbedding != nil {
				st.LostItemsWithEmbeddings++
			}
		case item.TypeFound:
			st.TotalFoundItems++
			if it.CombinedEmbedding != nil {
				st.FoundItemsWithEmbeddings++
			}
		}
	}
	for _, imgs := range f.images {
		for _, img := range imgs {
			st.TotalImages++
			if img.Embedding != nil {
				st.ImagesWithEmbeddings++
			}
		}
	}
	return st, nil
}

// fakeProvider returns canned vectors and counts calls.
type fakeProvider struct {
	textVec    []float32
	textErr    error
	imageVecs  map[string][]float32 // keyed by string(data)
	imageErr   error
	textCalls  int
	imageCalls int
}

func (p *fakeProvider) EncodeText(_ context.Context, text string) ([]float32, error) {
	p.textCalls++
	if p.textErr != nil {
		return nil, p.textErr
	}
	return append([]float32(nil), p.textVec...), nil
}

func (p *fakeProvider) EncodeImage(_ context.Context, data []byte) ([]float32, error) {
	p.imageCalls++
	if p.imageErr != nil {
		return nil, p.imageErr
	}
	if v, ok := p.imageVecs[string(data)]; ok {
		return append([]float32(nil), v...), nil
	}
	return nil, fmt.Errorf("no canned vector for %q", data)
}

func (p *fakeProvider) Model() string  { return "clip-test" }
func (p *fakeProvider) Dimension() int { return 2 }

// fakeFiles serves image bytes from a map.
type fakeFiles struct {
	files map[string][]byte
}

func (f *fakeFiles) ReadImage(_ context.Context, ref string) ([]byte, error) {
	data, ok := f.files[ref]
	if !ok {
		return nil, fmt.Errorf("unknown file ref %q", ref)
	}
	return data, nil
}

// fakeIndex records write-through operations.
type fakeIndex struct {
	upserts []itemKey
	deletes []itemKey
}

func (f *fakeIndex) UpsertItem(_ context.Context, typ item.Type, id int64, _ []float32, _ map[string]string) error {
	f.upserts = append(f.upserts, itemKey{typ, id})
	return nil
}

func (f *fakeIndex) DeleteItem(_ context.Context, typ item.Type, id int64) error {
	f.deletes = append(f.deletes, itemKey{typ, id})
	return nil
}
