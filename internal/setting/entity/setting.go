package entity

import "encoding/json"

// Setting represents a configuration record. The site settings document is
// one row whose metadata decodes into Site.
type Setting struct {
	ID         string          `db:"id" json:"id"`
	Category   string          `db:"category" json:"category,omitempty"`
	RecordMeta json.RawMessage `db:"record_meta" json:"record_meta,omitempty"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
}

// NewSetting creates a Setting with empty JSON objects for the raw fields.
func NewSetting(id, category string, metadata json.RawMessage) *Setting {
	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}
	return &Setting{ID: id, Category: category, RecordMeta: json.RawMessage("{}"), Metadata: metadata}
}

// Site is the site-wide switches edited from the admin panel.
type Site struct {
	// DeleteConfirmation makes the admin UI ask before deleting members.
	DeleteConfirmation bool `json:"deleteConfirmation"`
}
