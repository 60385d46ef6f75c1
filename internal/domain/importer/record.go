package importer

import (
	"strings"

	"github.com/okian/vitals/internal/domain/model"
)

// rawRecord is one export record before validation. Decoders fill it from
// the wire format; nothing here has been checked yet.
type rawRecord struct {
	ordinal int
	offset  int64

	typ        string
	unit       string
	value      string
	start      string
	end        string
	sourceName string
	quality    string

	// invalid is set when the record parsed syntactically but its shape is
	// unusable, e.g. a JSON array element that is not an object.
	invalid string
}

// recordDecoder streams records. It returns io.EOF after the last record
// and a *MalformedExportError when the payload cannot be parsed further.
type recordDecoder interface {
	next() (rawRecord, error)
}

const metaUserEntered = "HKWasUserEntered"

// qualityFromMetadata maps export metadata onto the sample quality flag.
func qualityFromMetadata(key, value string) string {
	if key == metaUserEntered && (value == "1" || strings.EqualFold(value, "true")) {
		return string(model.QualityUserEntered)
	}
	return ""
}
