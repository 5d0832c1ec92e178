package audit

import "time"

// TimelineFilters narrows the audit timeline. From and To are inclusive calendar days.
type TimelineFilters struct {
	From     time.Time
	To       time.Time
	Actor    string
	Entity   string
	Action   string
	Page     int
	PageSize int
}

// TimelineRow is one recorded mutation.
type TimelineRow struct {
	At        time.Time      `json:"occurredAt"`
	ActorID   string         `json:"actorId,omitempty"`
	ActorName string         `json:"actorName,omitempty"`
	Action    string         `json:"action"`
	Entity    string         `json:"entity"`
	EntityID  string         `json:"entityId"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// PagingInfo describes the position of a timeline page.
type PagingInfo struct {
	Page     int  `json:"page"`
	PageSize int  `json:"pageSize"`
	HasNext  bool `json:"hasNext"`
	PrevPage int  `json:"prevPage,omitempty"`
	NextPage int  `json:"nextPage,omitempty"`
}

// Result wraps one timeline page.
type Result struct {
	Rows   []TimelineRow `json:"items"`
	Paging PagingInfo    `json:"paging"`
}
