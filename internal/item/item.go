// Package item defines the records the matching engine operates on:
// lost/found items, their photos, and the similarity matches discovered
// between them.
package item

import (
	"fmt"
	"time"
)

// Type tags the two item variants. The variants are structurally
// identical; the tag selects which population a record belongs to.
type Type string

const (
	TypeLost  Type = "lost"
	TypeFound Type = "found"
)

// Valid reports whether t is a known variant tag.
func (t Type) Valid() bool {
	return t == TypeLost || t == TypeFound
}

// Opposite returns the other variant.
func (t Type) Opposite() Type {
	if t == TypeLost {
		return TypeFound
	}
	return TypeLost
}

// ParseType validates a variant tag from external input.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown item type %q", s)
	}
	return t, nil
}

// Category is the closed set of item categories.
type Category string

const (
	CategoryElectronics Category = "electronics"
	CategoryClothing    Category = "clothing"
	CategoryAccessories Category = "accessories"
	CategoryBooks       Category = "books"
	CategoryDocuments   Category = "documents"
	CategorySports      Category = "sports"
	CategoryBags        Category = "bags"
	CategoryJewelry     Category = "jewelry"
	CategoryKeys        Category = "keys"
	CategoryOthers      Category = "others"
)

// Status is the item lifecycle status. Only active items are eligible
// as search candidates.
type Status string

const (
	StatusActive   Status = "active"
	StatusClaimed  Status = "claimed"
	StatusResolved Status = "resolved"
	StatusExpired  Status = "expired"
)

// Item is one lost or found item record. Embedding fields hold decoded
// vectors in memory; the store is responsible for the text codec at the
// persistence boundary.
type Item struct {
	ID          int64    `json:"id"`
	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Location    string   `json:"location"`
	Status      Status   `json:"status"`

	TextEmbedding     []float32 `json:"-"`
	ImageEmbedding    []float32 `json:"-"`
	CombinedEmbedding []float32 `json:"-"`

	EmbeddingModel   string `json:"embedding_model,omitempty"`
	EmbeddingVersion string `json:"embedding_version,omitempty"`
	HasImages        bool   `json:"has_images"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImageStatus tracks embedding processing for one photo.
type ImageStatus string

const (
	ImageActive     ImageStatus = "active"
	ImageProcessing ImageStatus = "processing"
	ImageProcessed  ImageStatus = "processed"
	ImageFailed     ImageStatus = "failed"
)

// Image is a photo attached to an item. FileRef is an opaque reference
// owned by the external storage collaborator.
type Image struct {
	ID       int64 `json:"id"`
	ItemID   int64 `json:"item_id"`
	ItemType Type  `json:"item_type"`

	FileRef string `json:"file_ref"`

	Embedding       []float32   `json:"-"`
	EmbeddingModel  string      `json:"embedding_model,omitempty"`
	EmbeddingStatus ImageStatus `json:"embedding_status"`
	ProcessingError string      `json:"processing_error,omitempty"`
	Attempts        int         `json:"attempts"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
