package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jonathan/context-crystal/internal/types"
)

// Metadata records where an import came from and what it yielded. Hash is
// the SHA-256 of the raw bytes, so re-importing an unchanged export or share
// page can be recognised.
type Metadata struct {
	URL           string `json:"url,omitempty"`
	Timestamp     string `json:"timestamp"`
	Hash          string `json:"hash"`
	Platform      string `json:"platform,omitempty"`
	Format        Format `json:"format"`
	Conversations int    `json:"conversations"`
	Messages      int    `json:"messages"`
}

// NewMetadata stamps an import of raw at the current time.
func NewMetadata(raw []byte, url string, format Format) *Metadata {
	return &Metadata{
		URL:       url,
		Timestamp: now().UTC().Format(time.RFC3339),
		Hash:      computeHash(raw),
		Format:    format,
	}
}

// tally fills in the conversation and message counts.
func (m *Metadata) tally(convs []*types.Conversation) *Metadata {
	m.Conversations = len(convs)
	m.Messages = 0
	for _, c := range convs {
		m.Messages += len(c.Messages)
	}
	return m
}

func computeHash(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ToJSON renders the metadata for --verbose output.
func (m *Metadata) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding import metadata: %w", err)
	}
	return data, nil
}
