package bib

import (
	"regexp"
	"strings"
)

var yearOrUnknown = regexp.MustCompile(`^[0-9u]{4}$`)

// AeonDates derives the special-collections date string from the fixed-length
// data field (008): start year, or "start end" when a real end year exists.
// Returns "" when the record has no usable date.
func (r *Record) AeonDates() string {
	data := r.raw.ControlField("008")
	if len(data) < 11 {
		return ""
	}

	startYear := data[7:11]
	if !yearOrUnknown.MatchString(startYear) {
		return ""
	}

	if len(data) < 15 {
		return startYear
	}
	endYear := data[11:15]
	if !yearOrUnknown.MatchString(endYear) || endYear == "9999" {
		return startYear
	}
	return startYear + " " + endYear
}

// AeonAccessRestrictions summarizes the 506 restriction notes. Any note
// mentioning unprocessed material collapses to the sentinel "UNPROCESSED";
// otherwise the first note's text is returned as-is.
func (r *Record) AeonAccessRestrictions() string {
	fields := r.raw.Fields("506")
	if len(fields) == 0 {
		return ""
	}

	for _, field := range fields {
		if restriction := field.Subfield("a"); strings.Contains(strings.ToLower(restriction), "unprocessed") {
			return "UNPROCESSED"
		}
	}
	return fields[0].Subfield("a")
}

// format008Codes maps the form-of-item code from the 008 field to its
// display name.
var format008Codes = map[byte]string{
	'a': "Microfilm",
	'b': "Microfiche",
	'c': "Microopaque",
	'd': "Large print",
	'f': "Braille",
	'o': "Online",
	'q': "Direct electronic",
	'r': "Print reproduction",
	's': "Electronic",
}

// AeonFormat derives a material-format label from the leader type/level
// codes, refined by the form-of-item byte in the 008 field when one applies.
func (r *Record) AeonFormat() string {
	leader := r.raw.Leader
	if len(leader) < 8 {
		return ""
	}
	typeCode, levelCode := leader[6], leader[7]

	var category string
	position := -1
	switch {
	case typeCode == 'a' && strings.ContainsRune("macd", rune(levelCode)):
		category, position = "Book", 23
	case typeCode == 'a' && strings.ContainsRune("sib", rune(levelCode)):
		category, position = "Continuing Resource", 23
	case typeCode == 'h' || typeCode == 't':
		category, position = "Book", 23
	case typeCode == 'm':
		category, position = "Computer File", 23
	case strings.ContainsRune("gkor", rune(typeCode)):
		category, position = "Visual Material", 29
	case typeCode == 'c' || typeCode == 'd':
		category, position = "Score", 23
	case typeCode == 'i' || typeCode == 'j':
		category, position = "Recording", 23
	case typeCode == 'e' || typeCode == 'f':
		category, position = "Map", 29
	case typeCode == 'b' || typeCode == 'p':
		category, position = "Mixed", 23
	default:
		return ""
	}

	data := r.raw.ControlField("008")
	if position < 0 || len(data) <= position {
		return category
	}

	if formatName, ok := format008Codes[data[position]]; ok {
		return category + "; " + formatName
	}
	return category
}
