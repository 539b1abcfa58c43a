package entity

import (
	"encoding/json"
	"time"
)

// Subscriber is one newsletter address.
type Subscriber struct {
	ID         string          `db:"id" json:"id"`
	Email      string          `db:"email" json:"email"`
	RecordMeta json.RawMessage `db:"record_meta" json:"record_meta,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}

// RecordMeta notes where a subscription came from.
type RecordMeta struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}
