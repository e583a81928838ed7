package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MaxPageSize caps timeline pages.
const MaxPageSize = 50

// TimelineFilters holds the basic audit timeline filters.
type TimelineFilters struct {
	From         time.Time
	To           time.Time
	ActorID      uuid.UUID
	ResourceType string
	ResourceID   string
	Action       string
	Page         int
	PageSize     int
}

// Entry is one row of the audit timeline.
type Entry struct {
	ID           int64           `json:"id"`
	At           time.Time       `json:"at"`
	ActorID      uuid.UUID       `json:"actor_id"`
	ActorName    string          `json:"actor_name,omitempty"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   string          `json:"resource_id"`
	Before       json.RawMessage `json:"before,omitempty"`
	After        json.RawMessage `json:"after,omitempty"`
}

// PagingInfo stores simple pagination metadata.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	HasNext  bool `json:"has_next"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}

// Result wraps timeline rows with paging information.
type Result struct {
	Rows   []Entry    `json:"data"`
	Paging PagingInfo `json:"paging"`
}

// Query is the repository form of TimelineFilters. Limit zero means all rows.
type Query struct {
	From         time.Time
	To           time.Time
	ActorID      uuid.UUID
	ResourceType string
	ResourceID   string
	Action       string
	Offset       int
	Limit        int
}
