package services

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/culsys/valet-service/internal/bib"
)

// SpecialCollections routes reading-room requests to the Aeon request
// system. Whether the patron sees a container-selection form or an
// immediate redirect depends on the record: a finding aid or a single
// container both skip the form.
type SpecialCollections struct {
	Base
	Endpoints Endpoints
}

// Container is one requestable unit, a single item within a special
// collections holding.
type Container struct {
	ItemID     string
	CallNumber string
	EnumChron  string
	Barcode    string
	Label      string
}

func (s *SpecialCollections) ServiceType(req *Request) Type {
	record := req.Record
	if record == nil {
		return TypeForm
	}
	if record.FindingAidLink() != "" {
		return TypeBounce
	}
	if len(s.containerList(record)) == 1 {
		return TypeBounce
	}
	return TypeForm
}

func (s *SpecialCollections) BibEligible(_ context.Context, req *Request) Eligibility {
	if req.Record == nil {
		return Ineligible("No record was found for this request.")
	}
	if len(s.specialCollectionsHoldings(req.Record)) == 0 {
		return Ineligible("This record has no holdings in any Special Collections library. Requests can only be made for Special Collections items.")
	}
	return Eligible
}

func (s *SpecialCollections) FormLocals(_ context.Context, req *Request) (Locals, error) {
	return Locals{
		"bib_record":     req.Record,
		"container_list": s.containerList(req.Record),
	}, nil
}

func (s *SpecialCollections) ServiceURL(_ context.Context, req *Request) (string, error) {
	record := req.Record

	if link := record.FindingAidLink(); link != "" {
		return link, nil
	}

	itemID := req.Param("item_id")
	if containers := s.containerList(record); len(containers) == 1 {
		itemID = containers[0].ItemID
	}

	return s.aeonOpenURL(record, itemID), nil
}

// containerList flattens the special collections holdings into one
// requestable-container list, sorted naturally by label so that
// "Box 2" comes before "Box 10".
func (s *SpecialCollections) containerList(record *bib.Record) []Container {
	var containers []Container
	for _, holding := range s.specialCollectionsHoldings(record) {
		for _, item := range holding.Items {
			containers = append(containers, Container{
				ItemID:     item.ItemID,
				CallNumber: holding.CallNumber,
				EnumChron:  item.EnumChron,
				Barcode:    item.Barcode,
				Label:      strings.TrimSpace(holding.CallNumber + " " + item.EnumChron),
			})
		}
	}
	sort.SliceStable(containers, func(i, j int) bool {
		return naturalLess(containers[i].Label, containers[j].Label)
	})
	return containers
}

// LocationSites maps location codes to Aeon sites, so its keys are the
// locations this service covers.
func (s *SpecialCollections) specialCollectionsHoldings(record *bib.Record) []*bib.Holding {
	var holdings []*bib.Holding
	for _, holding := range record.Holdings {
		if _, ok := s.Def.LocationSites[holding.LocationCode]; ok {
			holdings = append(holdings, holding)
		}
	}
	return holdings
}

func (s *SpecialCollections) aeonOpenURL(record *bib.Record, itemID string) string {
	params := url.Values{}
	params.Set("ReferenceNumber", record.ID())
	params.Set("ItemAuthor", record.Author())
	params.Set("ItemTitle", record.Title())
	params.Set("ItemPlace", record.PubPlace())
	params.Set("ItemPublisher", record.PubName())

	// Prefer the publication statement's date; fall back to the
	// fixed-field dates for records cataloged without one.
	date := record.PubDate()
	if date == "" {
		date = record.AeonDates()
	}
	params.Set("ItemDate", date)

	if format := record.AeonFormat(); format != "" {
		params.Set("ItemInfo1", format)
	}
	if restrictions := record.AeonAccessRestrictions(); restrictions != "" {
		params.Set("ItemInfo3", restrictions)
	}

	for _, holding := range record.Holdings {
		for _, item := range holding.Items {
			if item.ItemID != itemID {
				continue
			}
			params.Set("Location", holding.LocationDisplay)
			params.Set("CallNumber", holding.CallNumber)
			params.Set("ItemVolume", item.EnumChron)
			params.Set("ItemNumber", item.Barcode)
			params.Set("Site", s.Def.LocationSites[holding.LocationCode])
		}
	}

	params.Set("Action", "10")
	params.Set("Form", "20")
	params.Set("Value", "GenericRequestAll")
	params.Set("DocumentType", "All")

	return s.Endpoints.AeonLoginURL + "?" + params.Encode()
}

// naturalLess compares labels chunk by chunk, treating runs of digits
// as numbers. Comparison is case-insensitive.
func naturalLess(a, b string) bool {
	ka, kb := naturalKey(a), naturalKey(b)
	for i := 0; i < len(ka) && i < len(kb); i++ {
		if ka[i] == kb[i] {
			continue
		}
		na, aIsNum := ka[i].(int)
		nb, bIsNum := kb[i].(int)
		if aIsNum && bIsNum {
			return na < nb
		}
		if aIsNum != bIsNum {
			// Numbers sort before text.
			return aIsNum
		}
		return ka[i].(string) < kb[i].(string)
	}
	return len(ka) < len(kb)
}

func naturalKey(label string) []any {
	label = strings.ToLower(label)
	var key []any
	start := 0
	inDigits := false
	flush := func(end int) {
		if end == start {
			return
		}
		chunk := label[start:end]
		if inDigits {
			n, err := strconv.Atoi(chunk)
			if err == nil {
				key = append(key, n)
				return
			}
		}
		key = append(key, chunk)
	}
	for i := 0; i < len(label); i++ {
		isDigit := label[i] >= '0' && label[i] <= '9'
		if isDigit != inDigits {
			flush(i)
			start = i
			inDigits = isDigit
		}
	}
	flush(len(label))
	return key
}
