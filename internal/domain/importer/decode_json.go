package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// flexString accepts a JSON string, number, bool or null and keeps its text.
// Values that are neither keep their raw JSON so validation can reject them.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		*f = flexString(b)
	}
	return nil
}

// jsonRecord is the JSON interchange shape of one record. Field names follow
// the export.xml attributes.
type jsonRecord struct {
	Type       flexString            `json:"type"`
	Unit       flexString            `json:"unit"`
	Value      flexString            `json:"value"`
	SourceName flexString            `json:"sourceName"`
	StartDate  flexString            `json:"startDate"`
	EndDate    flexString            `json:"endDate"`
	Quality    flexString            `json:"quality"`
	Metadata   map[string]flexString `json:"metadata"`
}

type jsonState int

const (
	jsonStart jsonState = iota
	jsonObject
	jsonArray
	jsonDone
)

// jsonDecoder streams either {"records": [...]} or a top-level array.
type jsonDecoder struct {
	d       *json.Decoder
	state   jsonState
	wrapped bool
	count   int
}

func newJSONDecoder(r io.Reader) *jsonDecoder {
	return &jsonDecoder{d: json.NewDecoder(r)}
}

func (x *jsonDecoder) fail(err error) error {
	return malformed(x.count+1, x.d.InputOffset(), err)
}

func (x *jsonDecoder) expectDelim(want json.Delim) error {
	tok, err := x.d.Token()
	if err != nil {
		return x.fail(err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return x.fail(fmt.Errorf("expected %q, got %v", want, tok))
	}
	return nil
}

func (x *jsonDecoder) next() (rawRecord, error) {
	for {
		switch x.state {
		case jsonStart:
			tok, err := x.d.Token()
			if err != nil {
				return rawRecord{}, x.fail(err)
			}
			switch tok {
			case json.Delim('['):
				x.state = jsonArray
			case json.Delim('{'):
				x.wrapped = true
				x.state = jsonObject
			default:
				return rawRecord{}, x.fail(fmt.Errorf("expected object or array, got %v", tok))
			}

		case jsonObject:
			if !x.d.More() {
				if err := x.expectDelim('}'); err != nil {
					return rawRecord{}, err
				}
				x.state = jsonDone
				continue
			}
			tok, err := x.d.Token()
			if err != nil {
				return rawRecord{}, x.fail(err)
			}
			if key, _ := tok.(string); key == "records" {
				if err := x.expectDelim('['); err != nil {
					return rawRecord{}, err
				}
				x.state = jsonArray
				continue
			}
			var skip json.RawMessage
			if err := x.d.Decode(&skip); err != nil {
				return rawRecord{}, x.fail(err)
			}

		case jsonArray:
			if !x.d.More() {
				if err := x.expectDelim(']'); err != nil {
					return rawRecord{}, err
				}
				if x.wrapped {
					x.state = jsonObject
				} else {
					x.state = jsonDone
				}
				continue
			}
			offset := x.d.InputOffset()
			x.count++
			var rec jsonRecord
			if err := x.d.Decode(&rec); err != nil {
				var te *json.UnmarshalTypeError
				if errors.As(err, &te) {
					return rawRecord{ordinal: x.count, offset: offset, invalid: "record is not an object of scalar fields"}, nil
				}
				return rawRecord{}, malformed(x.count, offset, err)
			}
			return rec.raw(x.count, offset), nil

		default:
			return rawRecord{}, io.EOF
		}
	}
}

func (r jsonRecord) raw(ordinal int, offset int64) rawRecord {
	out := rawRecord{
		ordinal:    ordinal,
		offset:     offset,
		typ:        string(r.Type),
		unit:       string(r.Unit),
		value:      string(r.Value),
		start:      string(r.StartDate),
		end:        string(r.EndDate),
		sourceName: string(r.SourceName),
		quality:    string(r.Quality),
	}
	for k, v := range r.Metadata {
		if q := qualityFromMetadata(k, string(v)); q != "" {
			out.quality = q
		}
	}
	return out
}
