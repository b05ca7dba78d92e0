package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// ArticlePayload is the raw submission payload: the source text plus the
// document metadata needed for extraction (reference date for resolving
// relative dates, origin for idempotence).
type ArticlePayload struct {
	Title           string    `json:"title"`
	Medium          string    `json:"medium,omitempty"`
	Country         string    `json:"country,omitempty"`
	PublicationDate time.Time `json:"publication_date"`
	ReferenceDate   time.Time `json:"reference_date"`
	Content         string    `json:"content"`
	Metadata        Metadata  `json:"metadata,omitempty"`
}

// ContentHash returns the hex encoded sha256 over medium, title and content.
// It keys idempotent ingestion: submitting the same article twice resolves
// to the same hash.
func (p *ArticlePayload) ContentHash() string {
	h := sha256.New()
	h.Write([]byte(p.Medium))
	h.Write([]byte{0})
	h.Write([]byte(p.Title))
	h.Write([]byte{0})
	h.Write([]byte(p.Content))
	return hex.EncodeToString(h.Sum(nil))
}

// Article represents a persisted source article.
type Article struct {
	ID              int64     `json:"id"`
	RID             uuid.UUID `json:"rid"`
	Title           string    `json:"title"`
	Medium          string    `json:"medium,omitempty"`
	Country         string    `json:"country,omitempty"`
	PublicationDate time.Time `json:"publication_date"`
	ContentHash     string    `json:"content_hash"`
	Metadata        Metadata  `json:"metadata,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
