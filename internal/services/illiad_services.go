package services

import (
	"context"
	"strings"

	"github.com/culsys/valet-service/internal/backends/illiad"
)

// The campus-paging family bounces patrons to a prefilled ILLiad generic
// request form. The variants differ in eligibility gates, not mechanics.

// CampusPaging redirects to the ILLiad paging form.
type CampusPaging struct {
	Base
	Endpoints Endpoints
}

func (s *CampusPaging) ServiceURL(_ context.Context, req *Request) (string, error) {
	params := illiad.DefaultParams(illiadPatron(req.User), illiadBib(req.Record))
	params.Merge(pagingFormParams(req))
	params.CleanValues()
	return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, s.Endpoints.IlliadBaseURL, params), nil
}

// pagingFormParams selects the ILLiad generic-request form and fills the
// loan fields.
func pagingFormParams(req *Request) illiad.Params {
	params := illiad.Params{
		"Action":  "10",
		"Form":    "20",
		"Value":   "GenericRequestPDD",
		"CitedIn": "CLIO_OPAC-PAGING",
	}
	return params.Merge(illiad.PagingParams(illiadBib(req.Record)))
}

// CampusPagingPilot is the paging variant piloted without the default
// requester fields: only the explicit form fields go across.
type CampusPagingPilot struct {
	Base
	Endpoints Endpoints
}

func (s *CampusPagingPilot) ServiceURL(_ context.Context, req *Request) (string, error) {
	params := pagingFormParams(req)
	if req.User != nil {
		params["ItemInfo2"] = req.User.Barcode
		params["ItemInfo4"] = strings.Join(req.User.PatronGroups, ",")
	}
	params.CleanValues()
	return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, s.Endpoints.IlliadBaseURL, params), nil
}

// FliPaging is campus paging restricted to FLI Partnership material and
// patrons.
type FliPaging struct {
	Base
	Endpoints Endpoints
}

func (s *FliPaging) BibEligible(_ context.Context, req *Request) Eligibility {
	if len(holdingsByLocation(req.Record, s.Def.Locations...)) == 0 {
		return Ineligible("This record has no FLI Partnership holdings. " +
			"This service is for the request of FLI Partnership materials only.")
	}
	return Eligible
}

func (s *FliPaging) ServiceURL(_ context.Context, req *Request) (string, error) {
	params := illiad.DefaultParams(illiadPatron(req.User), illiadBib(req.Record))
	params.Merge(pagingFormParams(req))
	params.CleanValues()
	return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, s.Endpoints.IlliadBaseURL, params), nil
}

// scanFormParams picks the ILLiad article form (22) when the record has
// an ISSN, the book-chapter form (23) otherwise, and tags the request
// with its origin for routing.
func scanFormParams(req *Request, citedIn string) illiad.Params {
	record := illiadBib(req.Record)
	params := illiad.DefaultParams(illiadPatron(req.User), record)
	params["Action"] = "10"
	params["CitedIn"] = citedIn

	if record.ISSN != "" {
		params["Form"] = "22"
		params.Merge(illiad.ArticleParams(record))
	} else {
		params["Form"] = "23"
		params.Merge(illiad.BookChapterParams(record))
	}
	return params.CleanValues()
}

// CampusScan bounces to an ILLiad scan form after a campus triage step.
type CampusScan struct {
	Base
	Endpoints Endpoints
}

func (s *CampusScan) ServiceURL(_ context.Context, req *Request) (string, error) {
	if req.Param("campus") == "tc" {
		return tcServicesURL, nil
	}
	params := scanFormParams(req, "CLIO_OPAC-DOCDEL")
	return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, s.Endpoints.IlliadBaseURL, params), nil
}

// IllScan is the interlibrary-loan scan variant: same forms, different
// routing tag, and medical campus patrons go to the ZCH instance.
type IllScan struct {
	Base
	Endpoints Endpoints
}

func (s *IllScan) ServiceURL(_ context.Context, req *Request) (string, error) {
	if req.Param("campus") == "tc" {
		return tcILLURL, nil
	}

	baseURL := s.Endpoints.IlliadBaseURL
	if req.Param("campus") == "MCC" {
		baseURL = s.Endpoints.IlliadZCHBaseURL
	}
	params := scanFormParams(req, "CLIO_OPAC-ILL")
	return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, baseURL, params), nil
}

// Ill hands off to ILLiad in one of four ways depending on how it was
// called: bare (login page), with a record (OpenURL from the bib), with
// an explicit ILLiad Form parameter, or with raw OpenURL parameters.
type Ill struct {
	Base
	Endpoints Endpoints
}

// FormLocals passes every incoming parameter through the campus triage
// form so they survive to the hand-off.
func (s *Ill) FormLocals(_ context.Context, req *Request) (Locals, error) {
	return Locals{"ill_params": req.Params}, nil
}

func (s *Ill) ServiceURL(_ context.Context, req *Request) (string, error) {
	if req.Param("campus") == "tc" {
		return tcILLURL, nil
	}

	baseURL := s.Endpoints.IlliadBaseURL
	if req.Param("campus") == "MCC" {
		baseURL = s.Endpoints.IlliadZCHBaseURL
	}
	openURLEndpoint := baseURL + "/OpenURL"

	var record *illiad.Bib
	if req.Record != nil {
		record = illiadBib(req.Record)
	}
	params := illiad.DefaultParams(illiadPatron(req.User), record)

	// Only OpenURL values may remain in the pass-through set.
	passthrough := illiad.Params{}
	for key := range req.Params {
		switch key {
		case "campus", "id":
		default:
			passthrough[key] = req.Param(key)
		}
	}

	switch {
	case req.Record == nil && len(passthrough) == 0:
		return s.Endpoints.IlliadLoginURL, nil

	case req.Record != nil:
		params.Merge(illiad.PagingParams(record))
		params.CleanValues()
		return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, openURLEndpoint, params), nil

	case passthrough["Form"] != "":
		passthrough["Action"] = "10"
		params.Merge(passthrough)
		return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, baseURL, params), nil

	default:
		params.Merge(passthrough)
		return illiad.BuildFullURL(s.Endpoints.EzproxyLoginURL, openURLEndpoint, params), nil
	}
}

// IlliadRedirect is the bare /illiad service: authenticate, log, and
// send the patron to the ILLiad login page.
type IlliadRedirect struct {
	Base
	Endpoints Endpoints
}

func (s *IlliadRedirect) ServiceURL(context.Context, *Request) (string, error) {
	return s.Endpoints.IlliadLoginURL, nil
}
