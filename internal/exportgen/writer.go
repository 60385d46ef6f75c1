package exportgen

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"time"
)

type xmlMetadata struct {
	Key   string `xml:"key,attr"`
	Value string `xml:"value,attr"`
}

type xmlRecord struct {
	XMLName    xml.Name      `xml:"Record"`
	Type       string        `xml:"type,attr"`
	SourceName string        `xml:"sourceName,attr"`
	Unit       string        `xml:"unit,attr,omitempty"`
	Value      string        `xml:"value,attr"`
	StartDate  string        `xml:"startDate,attr"`
	EndDate    string        `xml:"endDate,attr"`
	Metadata   []xmlMetadata `xml:"MetadataEntry"`
}

type xmlExportDate struct {
	XMLName xml.Name `xml:"ExportDate"`
	Value   string   `xml:"value,attr"`
}

const xmlPreamble = xml.Header + `<!DOCTYPE HealthData [
<!ELEMENT HealthData (ExportDate,Me,(Record|Workout)*)>
<!ATTLIST Record type CDATA #REQUIRED>
]>
`

// WriteXML writes e in the layout of an Apple Health export.xml.
func WriteXML(w io.Writer, e Export) error {
	if _, err := io.WriteString(w, xmlPreamble); err != nil {
		return fmt.Errorf("write xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", " ")

	root := xml.StartElement{Name: xml.Name{Local: "HealthData"}, Attr: []xml.Attr{{Name: xml.Name{Local: "locale"}, Value: "en_US"}}}
	if err := enc.EncodeToken(root); err != nil {
		return fmt.Errorf("write xml root: %w", err)
	}
	if err := enc.Encode(xmlExportDate{Value: time.Now().UTC().Format(timeLayout)}); err != nil {
		return fmt.Errorf("write export date: %w", err)
	}
	for i, r := range e.Records {
		rec := xmlRecord{
			Type:       r.Type,
			SourceName: r.SourceName,
			Unit:       r.Unit,
			Value:      r.Value,
			StartDate:  r.StartDate,
			EndDate:    r.EndDate,
			Metadata:   metadataEntries(r.Metadata),
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write record %d: %w", i+1, err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return fmt.Errorf("write xml root: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func metadataEntries(m map[string]string) []xmlMetadata {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]xmlMetadata, len(keys))
	for i, k := range keys {
		out[i] = xmlMetadata{Key: k, Value: m[k]}
	}
	return out
}

// WriteJSON writes e as {"records":[...]}.
func WriteJSON(w io.Writer, e Export) error {
	recs := e.Records
	if recs == nil {
		recs = []Record{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(struct {
		Records []Record `json:"records"`
	}{recs}); err != nil {
		return fmt.Errorf("write json export: %w", err)
	}
	return nil
}
