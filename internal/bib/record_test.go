package bib

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culsys/valet-service/internal/marc"
)

func df(tag string, pairs ...string) marc.DataField {
	field := marc.DataField{Tag: tag}
	for i := 0; i+1 < len(pairs); i += 2 {
		field.Subfields = append(field.Subfields, marc.Subfield{Code: pairs[i], Value: pairs[i+1]})
	}
	return field
}

// mixedRecord has one offsite holding with two items and one onsite
// holding with a single item, plus the usual descriptive fields.
func mixedRecord() *marc.Record {
	raw := marc.NewRecord("01234cam a2200301 a 4500")
	raw.AddControlField("001", "12893457")
	raw.AddControlField("008", "850101s1985    nyu           000 0 eng  ")

	raw.AddDataField(df("020", "a", "0-15-662870-8 (paperback)"))
	raw.AddDataField(df("022", "a", "0362-4331"))
	raw.AddDataField(df("035", "a", "(OCoLC)ocm12345678"))
	raw.AddDataField(df("100", "a", "Woolf, Virginia,", "d", "1882-1941."))
	raw.AddDataField(df("245", "a", "Mrs. Dalloway /", "b", "by Virginia Woolf."))
	raw.AddDataField(df("250", "a", "1st American ed."))
	raw.AddDataField(df("260", "a", "New York :", "b", "Harcourt,", "c", "1985."))
	raw.AddDataField(df("050", "a", "PR6045.O72", "b", "M7 1985"))

	raw.AddDataField(df("852", "0", "9001", "a", "Offsite", "b", "off,glx", "h", "PR6045.O72 M7"))
	raw.AddDataField(df("852", "0", "9002", "a", "Butler", "b", "glx"))

	raw.AddDataField(df("866", "0", "9001", "a", "v.1-v.10"))
	raw.AddDataField(df("866", "0", "9001", "a", "v.12"))
	raw.AddDataField(df("890", "0", "9002", "a", "In-library use only"))
	// Note aimed at a holding this record does not have.
	raw.AddDataField(df("866", "0", "9999", "a", "orphaned"))

	raw.AddDataField(df("876",
		"0", "9001", "a", "item-1", "p", "CU10000001", "z", "CU", "3", "v.1"))
	raw.AddDataField(df("876",
		"0", "9001", "a", "item-2", "p", "CU10000002", "z", "CU", "3", "v.2"))
	raw.AddDataField(df("876",
		"0", "9002", "a", "item-3", "p", "CU10000003", "h", "In Library Use"))

	return raw
}

func TestNewRecord_HoldingsGraph(t *testing.T) {
	record := NewRecord(mixedRecord(), nil)

	require.Len(t, record.Holdings, 2)

	offsite := record.Holdings[0]
	assert.Equal(t, "9001", offsite.MFHDID)
	assert.Equal(t, "Offsite", offsite.LocationDisplay)
	assert.Equal(t, "off,glx", offsite.LocationCode)
	assert.Equal(t, "PR6045.O72 M7", offsite.CallNumber)
	assert.Equal(t, "CU", offsite.CustomerCode)
	assert.False(t, offsite.CustomerCodeConflict)
	assert.Equal(t, []string{"v.1-v.10", "v.12"}, offsite.SummaryHoldings)
	require.Len(t, offsite.Items, 2)
	assert.Equal(t, "item-1", offsite.Items[0].ItemID)
	assert.Equal(t, "CU10000001", offsite.Items[0].Barcode)
	assert.Equal(t, "v.1", offsite.Items[0].EnumChron)

	onsite := record.Holdings[1]
	assert.Equal(t, "9002", onsite.MFHDID)
	// No 852 $h, so the bib-level call number fills in.
	assert.Equal(t, "PR6045.O72 M7 1985", onsite.CallNumber)
	assert.Equal(t, []string{"In-library use only"}, onsite.PublicNotes)
	require.Len(t, onsite.Items, 1)
	assert.Equal(t, "In Library Use", onsite.Items[0].UseRestriction)
}

func TestNewRecord_EveryItemBelongsToExactlyOneHolding(t *testing.T) {
	record := NewRecord(mixedRecord(), nil)

	seen := make(map[string]int)
	total := 0
	for _, holding := range record.Holdings {
		for _, item := range holding.Items {
			seen[item.ItemID]++
			total++
		}
	}
	assert.Equal(t, 3, total)
	for itemID, count := range seen {
		assert.Equal(t, 1, count, "item %s", itemID)
	}
}

func TestNewRecord_CustomerCodeConflict(t *testing.T) {
	raw := marc.NewRecord("")
	raw.AddControlField("001", "1")
	raw.AddDataField(df("852", "0", "9001", "b", "off,glx"))
	raw.AddDataField(df("876", "0", "9001", "a", "i1", "p", "B1", "z", "CU"))
	raw.AddDataField(df("876", "0", "9001", "a", "i2", "p", "B2", "z", "HD"))

	record := NewRecord(raw, nil)
	require.Len(t, record.Holdings, 1)
	assert.Equal(t, "CU", record.Holdings[0].CustomerCode)
	assert.True(t, record.Holdings[0].CustomerCodeConflict)
}

func TestRecord_DerivedFields(t *testing.T) {
	record := NewRecord(mixedRecord(), nil)

	assert.Equal(t, "12893457", record.ID())
	assert.Equal(t, "Mrs. Dalloway / by Virginia Woolf", record.Title())
	assert.Equal(t, "Mrs. Dalloway", record.TitleBrief())
	assert.Equal(t, "Woolf, Virginia", record.Author())
	// "ed." keeps its period, the word before it being too short for the
	// trailing-period rule.
	assert.Equal(t, "1st American ed.", record.Edition())
	assert.Equal(t, "New York : Harcourt, 1985", record.Publisher())
	assert.Equal(t, "New York", record.PubPlace())
	assert.Equal(t, "Harcourt", record.PubName())
	assert.Equal(t, "1985", record.PubDate())
	assert.Equal(t, "PR6045.O72 M7 1985", record.CallNumber())
	assert.Equal(t, "ocm12345678", record.OCLCNumber())
	assert.Equal(t, []string{"0156628708"}, record.ISBNs())
	assert.Equal(t, []string{"0362-4331"}, record.ISSNs())
}

func TestRecord_CallNumberFrom992(t *testing.T) {
	raw := mixedRecord()
	raw.AddDataField(df("992", "b", "Butler >> PR6045 .O72 M7 1985g|DELIM|extra"))

	record := NewRecord(raw, nil)
	assert.Equal(t, "PR6045 .O72 M7 1985g", record.CallNumber())
}

func TestRecord_OffsiteOnsitePartition(t *testing.T) {
	record := NewRecord(mixedRecord(), nil)

	offsite := record.OffsiteHoldings()
	onsite := record.OnsiteHoldings()
	require.Len(t, offsite, 1)
	require.Len(t, onsite, 1)
	assert.Equal(t, "9001", offsite[0].MFHDID)
	assert.Equal(t, "9002", onsite[0].MFHDID)
	// The partition is exhaustive.
	assert.Len(t, record.Holdings, len(offsite)+len(onsite))
}

func TestRecord_HoldingLookups(t *testing.T) {
	record := NewRecord(mixedRecord(), nil)

	byLocation := record.HoldingsByLocation("glx")
	require.Len(t, byLocation, 1)
	assert.Equal(t, "9002", byLocation[0].MFHDID)
	assert.Empty(t, record.HoldingsByLocation("avery"))

	holding := record.HoldingByID("9001")
	require.NotNil(t, holding)
	assert.Equal(t, "Offsite", holding.LocationDisplay)
	assert.Nil(t, record.HoldingByID("missing"))

	assert.Equal(t, []string{"CU10000001", "CU10000002", "CU10000003"}, record.Barcodes())

	byBarcode := record.HoldingByBarcode("CU10000003")
	require.NotNil(t, byBarcode)
	assert.Equal(t, "9002", byBarcode.MFHDID)
	assert.Nil(t, record.HoldingByBarcode("CU99999999"))
}

func TestRecord_OwningInstitution(t *testing.T) {
	tests := []struct {
		name     string
		location string
		expected string
	}{
		{"columbia stacks", "glx", "CUL"},
		{"columbia offsite", "off,glx", "CUL"},
		{"nypl partner", "scsb-nypl", "NYPL"},
		{"princeton partner", "scsb-pul", "PUL"},
		{"harvard partner", "scsbhl", "HL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := marc.NewRecord("")
			raw.AddControlField("001", "SCSB-1000")
			raw.AddControlField("009", "998877")
			raw.AddDataField(df("852", "0", "9001", "b", tt.location))

			record := NewRecord(raw, nil)
			assert.Equal(t, tt.expected, record.OwningInstitution)
		})
	}
}

func TestRecord_OwningInstitutionBibID(t *testing.T) {
	raw := marc.NewRecord("")
	raw.AddControlField("001", "SCSB-1000")
	raw.AddControlField("009", "998877")
	raw.AddDataField(df("852", "0", "9001", "b", "scsb-pul"))

	record := NewRecord(raw, nil)
	assert.Equal(t, "998877", record.OwningInstitutionBibID())
	assert.False(t, record.IsFolio())

	local := NewRecord(mixedRecord(), nil)
	assert.Equal(t, "12893457", local.OwningInstitutionBibID())
	assert.True(t, local.IsFolio())
}

func TestRecord_FindingAidLink(t *testing.T) {
	raw := mixedRecord()
	raw.AddDataField(df("856", "u", "http://www.columbia.edu/somewhere.html"))
	raw.AddDataField(df("856", "u", "http://findingaids.library.columbia.edu/ead/nnc-rb/ldpd_4079591.pdf"))
	raw.AddDataField(df("856", "u", "http://findingaids.library.columbia.edu/ead/nnc-rb/ldpd_4079591"))

	record := NewRecord(raw, nil)
	assert.Equal(t,
		"http://findingaids.library.columbia.edu/ead/nnc-rb/ldpd_4079591",
		record.FindingAidLink())

	assert.Equal(t, "", NewRecord(mixedRecord(), nil).FindingAidLink())
}

func TestRecord_AeonDates(t *testing.T) {
	tests := []struct {
		name     string
		field008 string
		expected string
	}{
		{"single date", "850101s1985    nyu", "1985"},
		{"date range", "850101d19201935nyu", "1920 1935"},
		{"open range suppressed", "850101c19889999nyu", "1988"},
		{"unknown digits", "850101s19uu    nyu", "19uu"},
		{"no usable date", "850101n        nyu", ""},
		{"missing field", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := marc.NewRecord("")
			if tt.field008 != "" {
				raw.AddControlField("008", tt.field008)
			}
			assert.Equal(t, tt.expected, NewRecord(raw, nil).AeonDates())
		})
	}
}

func TestRecord_AeonAccessRestrictions(t *testing.T) {
	raw := marc.NewRecord("")
	raw.AddDataField(df("506", "a", "Available by appointment."))
	raw.AddDataField(df("506", "a", "Some material is unprocessed."))

	assert.Equal(t, "UNPROCESSED", NewRecord(raw, nil).AeonAccessRestrictions())

	raw2 := marc.NewRecord("")
	raw2.AddDataField(df("506", "a", "Available by appointment."))
	assert.Equal(t, "Available by appointment.", NewRecord(raw2, nil).AeonAccessRestrictions())

	assert.Equal(t, "", NewRecord(marc.NewRecord(""), nil).AeonAccessRestrictions())
}

func TestRecord_AeonFormat(t *testing.T) {
	tests := []struct {
		name     string
		leader   string
		field008 string
		expected string
	}{
		{
			name:     "monograph",
			leader:   "01234cam a2200301 a 4500",
			field008: "850101s1985    nyu                     eng  ",
			expected: "Book",
		},
		{
			name:     "microfilm monograph",
			leader:   "01234cam a2200301 a 4500",
			field008: "850101s1985    nyu     a              eng  ",
			expected: "Book; Microfilm",
		},
		{
			name:     "serial",
			leader:   "01234cas a2200301 a 4500",
			field008: "850101c19859999nyu                    eng  ",
			expected: "Continuing Resource",
		},
		{
			name:     "map with form byte at 29",
			leader:   "01234cem a2200301 a 4500",
			field008: "850101s1985    nyu           b        eng  ",
			expected: "Map; Microfiche",
		},
		{
			name:     "unrecognized leader",
			leader:   "01234czz a2200301 a 4500",
			field008: "850101s1985    nyu                    eng  ",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := marc.NewRecord(tt.leader)
			raw.AddControlField("008", tt.field008)
			assert.Equal(t, tt.expected, NewRecord(raw, nil).AeonFormat())
		})
	}
}
