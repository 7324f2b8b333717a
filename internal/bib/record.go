// Package bib builds an immutable holdings/items graph from a tagged
// bibliographic record and exposes the derived descriptive fields used by
// the request services.
//
// # Model
//
// A Record owns an ordered list of Holdings (one per 852 field, keyed by
// mfhd id); each Holding owns an ordered list of Items (one per 876 field).
// Auxiliary note fields (866-868, 890-895) attach to the Holding named by
// their $0 subfield; notes referencing an unknown holding are dropped
// silently as a data-quality tolerance, not an error.
//
// # Derived fields
//
// Title, author, identifiers and the rest are computed from the underlying
// record on every call. They are pure projections: calling them twice gives
// the same value, and nothing is cached on the Record.
package bib

import (
	"regexp"
	"strings"

	"github.com/culsys/valet-service/internal/marc"
)

// Item is a single physical copy within a holding. Barcode may be blank
/// for blind-barcode items. UseRestriction is the one mutable field: the
// availability resolver writes a CaiaSoft status back onto it when the
// item is not at rest.
type Item struct {
	ItemID            string
	Barcode           string
	BlindBarcode      string
	EnumChron         string
	UseRestriction    string
	TemporaryLocation string
}

// Holding is a physical-location grouping of items (an MFHD).
type Holding struct {
	MFHDID          string
	LocationDisplay string
	LocationCode    string
	CallNumber      string

	// CustomerCode is the ReCAP partner routing code. Items carry it on
	// the wire but it is a holding-level attribute; when items within one
	// holding disagree, the first code seen wins and the conflict is
	// recorded in CustomerCodeConflict.
	CustomerCode         string
	CustomerCodeConflict bool

	SummaryHoldings         []string
	Supplements             []string
	Indexes                 []string
	PublicNotes             []string
	DonorInformation        []string
	ReproductionNotes       []string
	URLs                    []string
	AcquisitionsInformation []string
	CurrentIssues           []string

	Items []*Item
}

// Record is the parsed bibliographic record plus its holdings graph.
type Record struct {
	Holdings []*Holding

	// OwningInstitution is CUL, PUL, NYPL, or HL, inferred from the first
	// holding's location code.
	OwningInstitution string

	raw       *marc.Record
	locations *Locations
}

// mfhdNoteTags maps each auxiliary note field tag to the setter that
// appends its value to the right Holding slice.
var mfhdNoteTags = []struct {
	tag    string
	append func(*Holding, string)
}{
	{"866", func(h *Holding, v string) { h.SummaryHoldings = append(h.SummaryHoldings, v) }},
	{"867", func(h *Holding, v string) { h.Supplements = append(h.Supplements, v) }},
	{"868", func(h *Holding, v string) { h.Indexes = append(h.Indexes, v) }},
	{"890", func(h *Holding, v string) { h.PublicNotes = append(h.PublicNotes, v) }},
	{"891", func(h *Holding, v string) { h.DonorInformation = append(h.DonorInformation, v) }},
	{"892", func(h *Holding, v string) { h.ReproductionNotes = append(h.ReproductionNotes, v) }},
	{"893", func(h *Holding, v string) { h.URLs = append(h.URLs, v) }},
	{"894", func(h *Holding, v string) { h.AcquisitionsInformation = append(h.AcquisitionsInformation, v) }},
	{"895", func(h *Holding, v string) { h.CurrentIssues = append(h.CurrentIssues, v) }},
}

// NewRecord parses a raw record into the holdings/items graph. The
// locations table is retained for Clancy classification; it may be nil in
// tests that never touch Clancy-managed material.
func NewRecord(raw *marc.Record, locations *Locations) *Record {
	r := &Record{raw: raw, locations: locations}
	r.populateHoldings()
	r.populateOwningInstitution()
	return r
}

// populateHoldings scans 852 for holdings, the note tags for per-holding
// note lists, and 876 for items.
func (r *Record) populateHoldings() {
	byID := make(map[string]*Holding)

	for _, tag852 := range r.raw.Fields("852") {
		mfhdID := tag852.Subfield("0")

		// Call number might be defined at the bib or holdings level.
		// Holdings call number, if present, takes precedence.
		callNumber := tag852.Subfield("h")
		if callNumber == "" {
			callNumber = r.CallNumber()
		}

		holding := &Holding{
			MFHDID:          mfhdID,
			LocationDisplay: tag852.Subfield("a"),
			LocationCode:    tag852.Subfield("b"),
			CallNumber:      callNumber,
		}
		byID[mfhdID] = holding
		r.Holdings = append(r.Holdings, holding)
	}

	for _, note := range mfhdNoteTags {
		for _, field := range r.raw.Fields(note.tag) {
			mfhdID := field.Subfield("0")
			value := field.Subfield("a")
			holding, ok := byID[mfhdID]
			if !ok || value == "" {
				continue
			}
			note.append(holding, value)
		}
	}

	for _, itemField := range r.raw.Fields("876") {
		holding, ok := byID[itemField.Subfield("0")]
		if !ok {
			continue
		}

		holding.Items = append(holding.Items, &Item{
			ItemID:            itemField.Subfield("a"),
			UseRestriction:    itemField.Subfield("h"),
			TemporaryLocation: itemField.Subfield("l"),
			Barcode:           itemField.Subfield("p"),
			BlindBarcode:      itemField.Subfield("x"),
			EnumChron:         itemField.Subfield("3"),
		})

		// Customer code rides on items but belongs to the holding.
		if code := itemField.Subfield("z"); code != "" {
			switch {
			case holding.CustomerCode == "":
				holding.CustomerCode = code
			case holding.CustomerCode != code:
				holding.CustomerCodeConflict = true
			}
		}
	}
}

func (r *Record) populateOwningInstitution() {
	r.OwningInstitution = "CUL"
	if len(r.Holdings) == 0 {
		return
	}

	switch r.Holdings[0].LocationCode {
	case "scsb-nypl", "scsbnypl":
		r.OwningInstitution = "NYPL"
	case "scsb-pul", "scsbpul":
		r.OwningInstitution = "PUL"
	case "scsbhl":
		r.OwningInstitution = "HL"
	}
}

// Locations returns the location classification table the record was
// built with.
func (r *Record) Locations() *Locations {
	return r.locations
}

// ID returns the record identifier (control field 001).
func (r *Record) ID() string {
	return r.raw.ControlField("001")
}

// OwningInstitutionBibID returns the bib id within the owning institution's
// own system. For partner (SCSB) records that id lives in control field 009.
func (r *Record) OwningInstitutionBibID() string {
	if r.OwningInstitution == "CUL" {
		return r.raw.ControlField("001")
	}
	return r.raw.ControlField("009")
}

var folioIDPattern = regexp.MustCompile(`^(\d+|in.*)$`)

// IsFolio reports whether this record is cataloged in the local FOLIO
// tenant (a Columbia record with a numeric or instance-prefixed id).
func (r *Record) IsFolio() bool {
	return r.OwningInstitution == "CUL" && folioIDPattern.MatchString(r.ID())
}

// Title returns the cleaned-up 245 $a $b title.
func (r *Record) Title() string {
	field := r.raw.First("245")
	if field == nil {
		return ""
	}

	title := strings.TrimSpace(field.Subfield("a"))
	if b := strings.TrimSpace(field.Subfield("b")); b != "" {
		title += " " + b
	}
	return TrimPunctuation(title)
}

// TitleBrief returns only 245 $a; some hand-off targets want the short form.
func (r *Record) TitleBrief() string {
	field := r.raw.First("245")
	if field == nil {
		return ""
	}
	return TrimPunctuation(strings.TrimSpace(field.Subfield("a")))
}

// Author returns the first 100/110/111 author, subfields a b c j joined.
func (r *Record) Author() string {
	field := r.raw.FirstOf("100", "110", "111")
	if field == nil {
		return ""
	}
	return TrimPunctuation(strings.Join(field.SubfieldValues("a", "b", "c", "j"), " "))
}

func (r *Record) pubField() *marc.DataField {
	return r.raw.FirstOf("260", "264")
}

// Publisher returns the joined publication statement (260/264).
func (r *Record) Publisher() string {
	field := r.pubField()
	if field == nil {
		return ""
	}
	return TrimPunctuation(strings.Join(field.SubfieldValues("a", "b", "c", "e", "f", "g", "3"), " "))
}

// PubPlace returns the place of publication.
func (r *Record) PubPlace() string {
	if field := r.pubField(); field != nil {
		return TrimPunctuation(field.Subfield("a"))
	}
	return ""
}

// PubName returns the publisher name.
func (r *Record) PubName() string {
	if field := r.pubField(); field != nil {
		return TrimPunctuation(field.Subfield("b"))
	}
	return ""
}

// PubDate returns the publication date string.
func (r *Record) PubDate() string {
	if field := r.pubField(); field != nil {
		return TrimPunctuation(field.Subfield("c"))
	}
	return ""
}

// Edition returns the 250 edition statement.
func (r *Record) Edition() string {
	field := r.raw.First("250")
	if field == nil {
		return ""
	}
	return TrimPunctuation(strings.Join(field.SubfieldValues("a", "b"), " "))
}

var callNumber992 = regexp.MustCompile(`^.* >> (.*)\|DELIM\|.*`)

/// CallNumber returns the bib-level call number: the local 992 field if it
// parses, else the 050 subfields joined.
func (r *Record) CallNumber() string {
	if tag992 := r.raw.First("992"); tag992 != nil {
		if m := callNumber992.FindStringSubmatch(tag992.Subfield("b")); m != nil {
			return m[1]
		}
	}

	tag050 := r.raw.First("050")
	if tag050 == nil {
		return ""
	}
	var values []string
	for _, sf := range tag050.Subfields {
		if sf.Value != "" {
			values = append(values, sf.Value)
		}
	}
	return strings.Join(values, " ")
}

var oclcPattern = regexp.MustCompile(`OCoLC[^0-9A-Za-z]*([0-9A-Za-z]*)`)

// OCLCNumber returns the OCLC number from the first matching 035 field,
// or "" when the record carries none.
func (r *Record) OCLCNumber() string {
	for _, field := range r.raw.Fields("035") {
		number := field.Subfield("a")
		if number == "" {
			continue
		}
		if m := oclcPattern.FindStringSubmatch(number); m != nil {
			return m[1]
		}
	}
	return ""
}

// ISBNs returns every normalized ISBN from the 020 fields. 020 $a can carry
// the ISBN together with notes ("123 (paperback)"); normalization keeps only
// a valid 10- or 13-digit number.
func (r *Record) ISBNs() []string {
	var isbns []string
	for _, field := range r.raw.Fields("020") {
		if isbn := normalizeISBN(field.Subfield("a")); isbn != "" {
			isbns = append(isbns, isbn)
		}
	}
	return isbns
}

// ISSNs returns every normalized ISSN from the 022 fields, in the familiar
// hyphenated NNNN-NNNN form.
func (r *Record) ISSNs() []string {
	var issns []string
	for _, field := range r.raw.Fields("022") {
		if digits := normalizeISSN(field.Subfield("a")); digits != "" {
			issns = append(issns, digits[0:4]+"-"+digits[4:8])
		}
	}
	return issns
}

var isbnCandidate = regexp.MustCompile(`[0-9Xx][0-9Xx -]*`)

func normalizeISBN(raw string) string {
	m := isbnCandidate.FindString(raw)
	if m == "" {
		return ""
	}
	digits := strings.NewReplacer("-", "", " ", "").Replace(m)
	digits = strings.ToUpper(digits)
	if len(digits) == 10 || len(digits) == 13 {
		return digits
	}
	return ""
}

var issnCandidate = regexp.MustCompile(`[0-9][0-9]{3}-?[0-9]{3}[0-9Xx]`)

func normalizeISSN(raw string) string {
	m := issnCandidate.FindString(raw)
	if m == "" {
		return ""
	}
	return strings.ToUpper(strings.ReplaceAll(m, "-", ""))
}

var findingAidHosts = regexp.MustCompile(`findingaids\.(library|cul)\.columbia\.edu`)
var downloadableDoc = regexp.MustCompile(`(pdf|doc|htm|html)$`)

// FindingAidLink returns the first 856 link that points at a finding aid
// (and is not a downloadable document), or "" if none exists.
func (r *Record) FindingAidLink() string {
	for _, field := range r.raw.Fields("856") {
		url := field.Subfield("u")
		if url == "" || !findingAidHosts.MatchString(url) {
			continue
		}
		if downloadableDoc.MatchString(url) {
			continue
		}
		return url
	}
	return ""
}

// Barcodes returns the distinct barcodes across all holdings and items,
// in graph order.
func (r *Record) Barcodes() []string {
	seen := make(map[string]bool)
	var barcodes []string
	for _, holding := range r.Holdings {
		for _, item := range holding.Items {
			if item.Barcode == "" || seen[item.Barcode] {
				continue
			}
			seen[item.Barcode] = true
			barcodes = append(barcodes, item.Barcode)
		}
	}
	return barcodes
}

// OffsiteHoldings returns the holdings stored in a remote repository.
func (r *Record) OffsiteHoldings() []*Holding {
	var offsite []*Holding
	for _, holding := range r.Holdings {
		if IsOffsiteLocation(holding.LocationCode) {
			offsite = append(offsite, holding)
		}
	}
	return offsite
}

// OnsiteHoldings returns the holdings NOT stored in a remote repository.
func (r *Record) OnsiteHoldings() []*Holding {
	var onsite []*Holding
	for _, holding := range r.Holdings {
		if !IsOffsiteLocation(holding.LocationCode) {
			onsite = append(onsite, holding)
		}
	}
	return onsite
}

// HoldingsByLocation returns the holdings at the given location code.
func (r *Record) HoldingsByLocation(code string) []*Holding {
	var found []*Holding
	for _, holding := range r.Holdings {
		if holding.LocationCode == code {
			found = append(found, holding)
		}
	}
	return found
}

// HoldingByID returns the holding with the given mfhd id, or nil.
func (r *Record) HoldingByID(mfhdID string) *Holding {
	for _, holding := range r.Holdings {
		if holding.MFHDID == mfhdID {
			return holding
		}
	}
	return nil
}

// HoldingByBarcode returns the holding containing an item with the given
// barcode, or nil. Bound-with requests arrive with only a barcode and
// need the enclosing holding resolved.
func (r *Record) HoldingByBarcode(barcode string) *Holding {
	for _, holding := range r.Holdings {
		for _, item := range holding.Items {
			if item.Barcode == barcode {
				return holding
			}
		}
	}
	return nil
}
