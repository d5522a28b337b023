package item

import "time"

// MatchType classifies which modality produced a match.
type MatchType string

const (
	MatchText     MatchType = "text_similarity"
	MatchImage    MatchType = "image_similarity"
	MatchCombined MatchType = "combined_similarity"
	MatchCross    MatchType = "cross_modal"
)

// MatchStatus is the review lifecycle of a persisted match. Pending is
// the only initial state; the other three are terminal and reached only
// through a human review.
type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchReviewed  MatchStatus = "reviewed"
	MatchConfirmed MatchStatus = "confirmed"
	MatchDismissed MatchStatus = "dismissed"
)

// Match is a persisted assertion that two items were found similar
// enough to warrant human review. Matches are never deleted, only
// transitioned by review.
type Match struct {
	ID int64 `json:"id"`

	SourceItemID int64 `json:"source_item_id"`
	SourceType   Type  `json:"source_type"`
	TargetItemID int64 `json:"target_item_id"`
	TargetType   Type  `json:"target_type"`

	MatchType MatchType `json:"match_type"`

	// SimilarityScore is the raw cosine value in [-1, 1].
	// ConfidenceLevel is the score after boosts and may exceed 1.0;
	// neither is clamped.
	SimilarityScore float64  `json:"similarity_score"`
	ConfidenceLevel float64  `json:"confidence_level"`
	LocationBonus   *float64 `json:"location_bonus,omitempty"`
	TimeBonus       *float64 `json:"time_bonus,omitempty"`

	EmbeddingModel   string `json:"embedding_model"`
	EmbeddingVersion string `json:"embedding_version"`

	Status      MatchStatus `json:"status"`
	ReviewedBy  *int64      `json:"reviewed_by,omitempty"`
	ReviewNotes string      `json:"review_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmbeddingStats summarizes embedding coverage across the system.
type EmbeddingStats struct {
	TotalLostItems           int64     `json:"total_lost_items"`
	TotalFoundItems          int64     `json:"total_found_items"`
	LostItemsWithEmbeddings  int64     `json:"lost_items_with_embeddings"`
	FoundItemsWithEmbeddings int64     `json:"found_items_with_embeddings"`
	TotalImages              int64     `json:"total_images"`
	ImagesWithEmbeddings     int64     `json:"images_with_embeddings"`
	EmbeddingModel           string    `json:"embedding_model"`
	LastUpdated              time.Time `json:"last_updated"`
}
