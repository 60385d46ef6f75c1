package model

import "time"

// RejectReason classifies a record that did not make it into the import.
type RejectReason string

// Rejection reasons. None of them abort an import.
const (
	ReasonMissingField     RejectReason = "missing_field"
	ReasonUnknownType      RejectReason = "unknown_type"
	ReasonNotRequested     RejectReason = "not_requested"
	ReasonInvalidTimeRange RejectReason = "invalid_time_range"
	ReasonInvalidValue     RejectReason = "invalid_value"
	ReasonUnitMismatch     RejectReason = "unit_mismatch"
)

// Rejection records why one export record was dropped.
type Rejection struct {
	Ordinal int          `json:"ordinal"`
	Offset  int64        `json:"offset"`
	Type    string       `json:"type"`
	Reason  RejectReason `json:"reason"`
	Detail  string       `json:"detail,omitempty"`
}

// ImportReport summarizes one import run. It is built once by the importer
// and handed out by value; callers treat it as read-only.
type ImportReport struct {
	ID        string    `json:"id"`
	SourceID  string    `json:"source_id"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`

	Parsed    int `json:"parsed"`
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Duplicate int `json:"duplicate"`
	Converted int `json:"converted"`

	ByReason   map[RejectReason]int `json:"by_reason,omitempty"`
	ByType     map[MetricType]int   `json:"by_type,omitempty"`
	Rejections []Rejection          `json:"rejections,omitempty"`
	// Truncated is set when more rejections happened than were kept.
	Truncated bool `json:"truncated,omitempty"`
}

// Clone returns a deep copy so the caller can hand the report out safely.
func (r ImportReport) Clone() ImportReport {
	out := r
	if r.ByReason != nil {
		out.ByReason = make(map[RejectReason]int, len(r.ByReason))
		for k, v := range r.ByReason {
			out.ByReason[k] = v
		}
	}
	if r.ByType != nil {
		out.ByType = make(map[MetricType]int, len(r.ByType))
		for k, v := range r.ByType {
			out.ByType[k] = v
		}
	}
	if r.Rejections != nil {
		out.Rejections = append([]Rejection(nil), r.Rejections...)
	}
	return out
}
