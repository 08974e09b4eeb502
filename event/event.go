// Package event defines the records emitted when an image is rewritten.
// Sinks (stdout, webhook, SQLite) and in-process consumers import it.
package event

import (
	"encoding/json"
	"time"

	"github.com/hazyhaar/unmark/rewrite"
)

// Rewrite is one successful token substitution.
type Rewrite struct {
	ID        string `json:"id"` // UUIDv7
	PageID    string `json:"page_id,omitempty"`
	PageURL   string `json:"page_url,omitempty"`
	OldSrc    string `json:"old_src"`
	NewSrc    string `json:"new_src"`
	OldToken  string `json:"old_token"`
	NewToken  string `json:"new_token"`
	Secondary bool   `json:"secondary,omitempty"` // secondary attribute rewritten too
	Timestamp int64  `json:"timestamp"`           // epoch milliseconds
}

// FromOutcome builds a Rewrite from a rewriter outcome.
func FromOutcome(id, pageID, pageURL string, out rewrite.Outcome) Rewrite {
	return Rewrite{
		ID:        id,
		PageID:    pageID,
		PageURL:   pageURL,
		OldSrc:    out.OldSrc,
		NewSrc:    out.NewSrc,
		OldToken:  out.OldToken,
		NewToken:  out.NewToken,
		Secondary: out.Secondary,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Marshal serialises a Rewrite to JSON.
func Marshal(r *Rewrite) ([]byte, error) {
	return json.Marshal(r)
}

// Unmarshal deserialises a Rewrite from JSON.
func Unmarshal(data []byte) (*Rewrite, error) {
	var r Rewrite
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
