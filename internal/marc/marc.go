// Package marc provides a minimal representation of tagged bibliographic
// records and a decoder for the MARC-in-JSON wire format used by the
// record source.
//
// The package carries no bibliographic semantics: it knows about tags,
// indicators, and subfields, nothing about titles or holdings. Interpretation
// of the fields lives in the bib package.
package marc

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

// Subfield is a single coded value within a data field.
type Subfield struct {
	Code  string
	Value string
}

// DataField is a tagged field with indicators and an ordered subfield list.
type DataField struct {
	Tag       string
	Ind1      string
	Ind2      string
	Subfields []Subfield
}

// Subfield returns the value of the first subfield with the given code,
// or the empty string if the field has no such subfield.
func (f *DataField) Subfield(code string) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return sf.Value
		}
	}
	return ""
}

// SubfieldValues returns the values of every subfield whose code appears in
// codes, in field order.
func (f *DataField) SubfieldValues(codes ...string) []string {
	want := make(map[string]bool, len(codes))
	for _, c := range codes {
		want[c] = true
	}

	var values []string
	for _, sf := range f.Subfields {
		if want[sf.Code] && sf.Value != "" {
			values = append(values, sf.Value)
		}
	}
	return values
}

// Record is a tagged bibliographic record: a leader, control fields
// (001-009, plain values), and repeatable data fields in record order.
type Record struct {
	Leader        string
	controlFields map[string]string
	dataFields    []DataField
}

// NewRecord creates an empty Record. Tests and fixtures use this together
// with AddControlField / AddDataField to assemble records by hand.
func NewRecord(leader string) *Record {
	return &Record{
		Leader:        leader,
		controlFields: make(map[string]string),
	}
}

// AddControlField sets a control field value. Control fields are not
// repeatable; a second add for the same tag overwrites the first.
func (r *Record) AddControlField(tag, value string) {
	r.controlFields[tag] = value
}

// AddDataField appends a data field, preserving record order.
func (r *Record) AddDataField(f DataField) {
	r.dataFields = append(r.dataFields, f)
}

// ControlField returns the value of a control field, or "" if absent.
func (r *Record) ControlField(tag string) string {
	return r.controlFields[tag]
}

// Fields returns every data field with the given tag, in record order.
func (r *Record) Fields(tag string) []*DataField {
	var fields []*DataField
	for i := range r.dataFields {
		if r.dataFields[i].Tag == tag {
			fields = append(fields, &r.dataFields[i])
		}
	}
	return fields
}

// First returns the first data field with the given tag, or nil.
func (r *Record) First(tag string) *DataField {
	for i := range r.dataFields {
		if r.dataFields[i].Tag == tag {
			return &r.dataFields[i]
		}
	}
	return nil
}

// FirstOf returns the first data field matching any of the given tags,
// trying tags in the order given (not record order across tags).
func (r *Record) FirstOf(tags ...string) *DataField {
	for _, tag := range tags {
		if f := r.First(tag); f != nil {
			return f
		}
	}
	return nil
}

// json decoding -------------------------------------------------------------

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// jsonRecord mirrors the MARC-in-JSON structure:
//
//	{"leader": "...", "fields": [ {"001": "123"}, {"852": {"ind1": " ", ...}} ]}
type jsonRecord struct {
	Leader string                        `json:"leader"`
	Fields []map[string]jsoniter.RawMessage `json:"fields"`
}

type jsonDataField struct {
	Ind1      string              `json:"ind1"`
	Ind2      string              `json:"ind2"`
	Subfields []map[string]string `json:"subfields"`
}

// DecodeRecord parses a single MARC-in-JSON record.
func DecodeRecord(data []byte) (*Record, error) {
	var raw jsonRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding marc record: %w", err)
	}

	record := NewRecord(raw.Leader)
	for _, fieldMap := range raw.Fields {
		for tag, body := range fieldMap {
			// Control fields are bare strings, data fields are objects.
			var value string
			if err := json.Unmarshal(body, &value); err == nil {
				record.AddControlField(tag, value)
				continue
			}

			var df jsonDataField
			if err := json.Unmarshal(body, &df); err != nil {
				return nil, fmt.Errorf("decoding marc field %s: %w", tag, err)
			}

			field := DataField{Tag: tag, Ind1: df.Ind1, Ind2: df.Ind2}
			for _, sfMap := range df.Subfields {
				for code, v := range sfMap {
					field.Subfields = append(field.Subfields, Subfield{Code: code, Value: v})
				}
			}
			record.AddDataField(field)
		}
	}

	return record, nil
}
