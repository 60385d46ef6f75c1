package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/vitals/internal/domain/model"
)

// Accepted timestamp layouts, tried in order.
var timeLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	time.RFC3339Nano,
	"2006-01-02T15:04:05-0700",
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var firstErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// rejection is a validation failure for a single record.
type rejection struct {
	reason model.RejectReason
	detail string
}

func reject(reason model.RejectReason, format string, args ...any) *rejection {
	return &rejection{reason: reason, detail: fmt.Sprintf(format, args...)}
}

// asleepValue reports whether a sleep analysis category means the person was
// asleep (as opposed to in bed or awake).
func asleepValue(v string) bool {
	return strings.Contains(strings.ToLower(v), "asleep")
}

// validate turns one raw record into a canonical sample. converted is true
// when the value was rewritten into the canonical unit.
func (j *Job) validate(rec rawRecord) (s model.Sample, converted bool, rej *rejection) {
	if rec.invalid != "" {
		return s, false, reject(model.ReasonMissingField, "%s", rec.invalid)
	}
	name := strings.TrimSpace(rec.typ)
	if name == "" {
		return s, false, reject(model.ReasonMissingField, "type is empty")
	}

	mt, known := model.LookupType(name)
	if !known {
		mt = model.RawMetricType(name)
		if !j.req.Accepted.Allows(mt) {
			return s, false, reject(model.ReasonUnknownType, "%s", name)
		}
	} else if !j.req.Accepted.Allows(mt) {
		return s, false, reject(model.ReasonNotRequested, "%s", mt)
	}

	if strings.TrimSpace(rec.start) == "" {
		return s, false, reject(model.ReasonMissingField, "startDate is empty")
	}
	start, err := parseTime(rec.start)
	if err != nil {
		return s, false, reject(model.ReasonInvalidTimeRange, "startDate: %v", err)
	}
	end := start
	if strings.TrimSpace(rec.end) != "" {
		if end, err = parseTime(rec.end); err != nil {
			return s, false, reject(model.ReasonInvalidTimeRange, "endDate: %v", err)
		}
	}
	if end.Before(start) {
		return s, false, reject(model.ReasonInvalidTimeRange, "end %s before start %s", end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	info, _ := model.Info(mt)
	var (
		value float64
		unit  model.Unit
	)
	switch {
	case info.DurationValued:
		if !asleepValue(rec.value) {
			return s, false, reject(model.ReasonInvalidValue, "sleep stage %q is not asleep", rec.value)
		}
		value = end.Sub(start).Hours()
		unit = info.Unit
	default:
		raw := strings.TrimSpace(rec.value)
		if raw == "" {
			return s, false, reject(model.ReasonMissingField, "value is empty")
		}
		value, err = strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
			return s, false, reject(model.ReasonInvalidValue, "value %q", raw)
		}
		from := model.Unit(strings.TrimSpace(rec.unit))
		if mt.IsRaw() {
			if pinned, ok := j.rawUnits[mt]; ok && pinned != from {
				return s, false, reject(model.ReasonUnitMismatch, "%s already imported in %q, got %q", mt, pinned, from)
			}
			j.rawUnits[mt] = from
			unit = from
			break
		}
		if from == "" {
			return s, false, reject(model.ReasonMissingField, "unit is empty")
		}
		v, canonical, ok := model.ConvertToCanonical(mt, value, from)
		if !ok {
			return s, false, reject(model.ReasonUnitMismatch, "no conversion from %q to %q for %s", from, canonical, mt)
		}
		converted = from != canonical
		value, unit = v, canonical
	}

	return model.Sample{
		Type:     mt,
		Value:    value,
		Unit:     unit,
		Start:    start,
		End:      end,
		SourceID: j.sourceID(rec.sourceName),
		Quality:  model.Quality(rec.quality),
	}, converted, nil
}

// sourceID attributes a sample to the import source and, when the export
// names one, the recording device or app.
func (j *Job) sourceID(sourceName string) string {
	sourceName = strings.TrimSpace(sourceName)
	switch {
	case j.req.SourceID == "" && sourceName == "":
		return "unknown"
	case sourceName == "":
		return j.req.SourceID
	case j.req.SourceID == "":
		return sourceName
	default:
		return j.req.SourceID + "/" + sourceName
	}
}
