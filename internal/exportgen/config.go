package exportgen

import "time"

// Config controls a synthetic export.
type Config struct {
	Start      time.Time // First day; truncated to midnight UTC
	Days       int       // Number of days to generate
	Seed       uint64    // Seed for reproducible output
	SourceName string    // Device name written on every record
	Duplicates int       // Exact copies of leading records appended at the end
	BadRecords int       // Records the importer must reject
	PoundsMass bool      // Write body mass in lb instead of kg
}

// DefaultConfig returns a 60 day export starting 2024-01-01.
func DefaultConfig() Config {
	return Config{
		Start:      time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Days:       60,
		Seed:       1,
		SourceName: "Apple Watch",
	}
}

// Record is one export record in Apple Health terms.
type Record struct {
	Type       string            `json:"type"`
	Unit       string            `json:"unit,omitempty"`
	Value      string            `json:"value"`
	SourceName string            `json:"sourceName"`
	StartDate  string            `json:"startDate"`
	EndDate    string            `json:"endDate"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Export is a generated payload.
type Export struct {
	Records []Record `json:"records"`
	// Valid is the number of records the importer should accept once
	// duplicates and bad records are excluded.
	Valid int `json:"-"`
}

// Stats summarizes an upload run.
type Stats struct {
	Records   int
	Accepted  int
	Rejected  int
	Duplicate int
	Inserted  int
	Skipped   int
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
