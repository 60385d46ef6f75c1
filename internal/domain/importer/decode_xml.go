package importer

import (
	"encoding/xml"
	"errors"
	"io"
)

type xmlMetadata struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

// xmlRecord mirrors an Apple Health export.xml <Record> element.
type xmlRecord struct {
	Type       string        `xml:"type,attr"`
	Unit       string        `xml:"unit,attr"`
	Value      string        `xml:"value,attr"`
	SourceName string        `xml:"sourceName,attr"`
	StartDate  string        `xml:"startDate,attr"`
	EndDate    string        `xml:"endDate,attr"`
	Metadata   []xmlMetadata `xml:"MetadataEntry"`
}

// xmlDecoder walks the export tree, decoding <Record> children of the root
// and skipping everything else (Workout, ActivitySummary, Correlation, ...).
type xmlDecoder struct {
	d     *xml.Decoder
	count int
	root  bool
}

func newXMLDecoder(r io.Reader) *xmlDecoder {
	d := xml.NewDecoder(r)
	d.Strict = true
	return &xmlDecoder{d: d}
}

func (x *xmlDecoder) next() (rawRecord, error) {
	for {
		offset := x.d.InputOffset()
		tok, err := x.d.Token()
		if errors.Is(err, io.EOF) {
			if !x.root {
				return rawRecord{}, malformed(x.count+1, offset, errors.New("no root element"))
			}
			return rawRecord{}, io.EOF
		}
		if err != nil {
			return rawRecord{}, malformed(x.count+1, offset, err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if !x.root {
			x.root = true
			continue
		}
		if se.Name.Local != "Record" {
			if err := x.d.Skip(); err != nil {
				return rawRecord{}, malformed(x.count+1, offset, err)
			}
			continue
		}

		x.count++
		var rec xmlRecord
		if err := x.d.DecodeElement(&rec, &se); err != nil {
			return rawRecord{}, malformed(x.count, offset, err)
		}

		raw := rawRecord{
			ordinal:    x.count,
			offset:     offset,
			typ:        rec.Type,
			unit:       rec.Unit,
			value:      rec.Value,
			start:      rec.StartDate,
			end:        rec.EndDate,
			sourceName: rec.SourceName,
		}
		for _, m := range rec.Metadata {
			if q := qualityFromMetadata(m.Key, m.Value); q != "" {
				raw.quality = q
			}
		}
		return raw, nil
	}
}
