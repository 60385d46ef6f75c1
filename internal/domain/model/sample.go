package model

import (
	"strconv"
	"time"
)

// Quality is an optional confidence flag carried over from the export.
type Quality string

// Quality values the importer derives itself. JSON exports may carry other
// free-form values which are kept verbatim.
const (
	QualityUnspecified Quality = ""
	QualityMeasured    Quality = "measured"
	QualityUserEntered Quality = "user_entered"
)

// Sample is one normalized health observation. Value is always expressed in
// the canonical unit of Type by the time a Sample leaves the importer.
type Sample struct {
	Type     MetricType `json:"type"`
	Value    float64    `json:"value"`
	Unit     Unit       `json:"unit"`
	Start    time.Time  `json:"start"`
	End      time.Time  `json:"end"`
	SourceID string     `json:"source_id"`
	Quality  Quality    `json:"quality,omitempty"`
}

// Instantaneous reports whether the sample has no duration.
func (s Sample) Instantaneous() bool { return s.End.Equal(s.Start) }

// Span returns End - Start.
func (s Sample) Span() time.Duration { return s.End.Sub(s.Start) }

// SeriesKey identifies a sample inside one metric series.
type SeriesKey struct {
	SourceID string
	Start    int64
	End      int64
}

// Key returns the identity used by the store's dedup invariant.
func (s Sample) Key() SeriesKey {
	return SeriesKey{SourceID: s.SourceID, Start: s.Start.UnixNano(), End: s.End.UnixNano()}
}

// ImportKey returns the identity used to detect duplicate export records:
// type, source, both timestamps and the exact value.
func (s Sample) ImportKey() string {
	buf := make([]byte, 0, 96)
	buf = append(buf, s.Type...)
	buf = append(buf, '|')
	buf = append(buf, s.SourceID...)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, s.Start.UnixNano(), 10)
	buf = append(buf, '|')
	buf = strconv.AppendInt(buf, s.End.UnixNano(), 10)
	buf = append(buf, '|')
	buf = strconv.AppendFloat(buf, s.Value, 'g', -1, 64)
	return string(buf)
}

// Less orders samples by start, then end, then source. It is a strict total
// order over SeriesKey.
func Less(a, b *Sample) bool {
	if !a.Start.Equal(b.Start) {
		return a.Start.Before(b.Start)
	}
	if !a.End.Equal(b.End) {
		return a.End.Before(b.End)
	}
	return a.SourceID < b.SourceID
}

// Bucket is one resampled value.
type Bucket struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Value float64   `json:"value"`
	Count int       `json:"count"`
}

// Window is a closed query interval with an optional bucket size.
type Window struct {
	From   time.Time     `json:"from"`
	To     time.Time     `json:"to"`
	Bucket time.Duration `json:"bucket"`
}
