// Package services implements the request services patrons reach through
// the broker: each service decides who may use it, which records qualify,
// and whether the patron gets a request form or a redirect to an external
// fulfillment system.
package services

import (
	"context"
	"net/url"
	"sync"

	"github.com/culsys/valet-service/internal/availability"
	"github.com/culsys/valet-service/internal/bib"
)

// Type says how a service answers an eligible request.
type Type string

const (
	// TypeForm renders a request form that posts back to the service.
	TypeForm Type = "form"
	// TypeBounce redirects the patron straight to an external system.
	TypeBounce Type = "bounce"
)

// Definition is the configured shape of one service. Most fields apply
// only to some services; unused fields stay zero.
type Definition struct {
	// Key is the URL path segment the service answers on.
	Key   string
	Label string
	Type  Type

	// Authenticate requires a logged-in patron before anything else.
	Authenticate bool

	// PermittedAffils gates the service to patrons holding at least one
	// of these affiliations. Empty means any authenticated patron.
	PermittedAffils []string

	// StaffEmail receives request emails for form services.
	StaffEmail string

	// BarnardEmail overrides StaffEmail for Barnard-held material.
	BarnardEmail string

	// LocationCode restricts the service to holdings at one location.
	LocationCode string

	// Locations restricts the service to holdings at any of a set of
	// locations.
	Locations []string

	// LocationSites maps location codes to the Aeon site handling them.
	// The key set doubles as the eligible-location list.
	LocationSites map[string]string

	// VendorEndpoint is the pass-through target for link-resolver style
	// services.
	VendorEndpoint string
}

// User is the authenticated patron a request runs for.
type User struct {
	// Username is the campus login (uni).
	Username string
	Email    string

	// Barcode is the active patron barcode from the ILS.
	Barcode string

	// Affils are the campus affiliations; eligibility gates match on
	// these. A patron with a disqualifying condition carries a
	// "_blocked" variant and matches nothing.
	Affils []string

	// PatronGroups are the ILS borrower groups.
	PatronGroups []string
}

// HasAffil reports whether the user holds the given affiliation.
func (u *User) HasAffil(affil string) bool {
	for _, a := range u.Affils {
		if a == affil {
			return true
		}
	}
	return false
}

// Locals is the data a form or confirmation template renders from.
type Locals map[string]any

// Eligibility is a yes/no with a patron-facing reason on the no side.
type Eligibility struct {
	OK     bool
	Reason string
}

// Eligible is the always-yes answer.
var Eligible = Eligibility{OK: true}

// Ineligible builds a refusal with the given patron-facing reason.
func Ineligible(reason string) Eligibility {
	return Eligibility{Reason: reason}
}

// Request is the per-request state a strategy works on. Availability is
// resolved lazily and memoized: services that never look at item status
// never touch the circulation backends.
type Request struct {
	Definition *Definition
	Record     *bib.Record
	User       *User

	// Params are the query or form parameters, service-specific.
	Params url.Values

	// SubmitResult carries service-specific results from Submit to
	// ConfirmationLocals.
	SubmitResult any

	resolver *availability.Resolver

	availabilityOnce sync.Once
	availability     *availability.Resolution
}

// NewRequest builds a Request. resolver may be nil for services that never
// consult availability (and for tests of those services).
func NewRequest(def *Definition, record *bib.Record, user *User, params url.Values, resolver *availability.Resolver) *Request {
	if params == nil {
		params = url.Values{}
	}
	return &Request{
		Definition: def,
		Record:     record,
		User:       user,
		Params:     params,
		resolver:   resolver,
	}
}

// Availability resolves item availability for the record, once.
func (r *Request) Availability(ctx context.Context) *availability.Resolution {
	r.availabilityOnce.Do(func() {
		r.availability = r.resolver.Resolve(ctx, r.Record)
	})
	return r.availability
}

// Param returns the first value of a request parameter.
func (r *Request) Param(key string) string {
	return r.Params.Get(key)
}

// Strategy is the behavior of one service. Base supplies the defaults;
// concrete services override what they need.
type Strategy interface {
	// ServiceType answers form-or-bounce for this specific request. Most
	// services are fixed by configuration; a few decide per record.
	ServiceType(req *Request) Type

	// PatronEligible says whether this patron may use the service.
	PatronEligible(user *User) Eligibility

	// BibEligible says whether this record qualifies for the service.
	BibEligible(ctx context.Context, req *Request) Eligibility

	// FormLocals gathers the data the request form renders from.
	FormLocals(ctx context.Context, req *Request) (Locals, error)

	// ServiceURL builds the redirect target for bounce services.
	ServiceURL(ctx context.Context, req *Request) (string, error)

	// Submit runs service-specific handling of a posted form, before
	// emails and confirmation.
	Submit(ctx context.Context, req *Request) error

	// SendEmails dispatches the request and confirmation mail.
	SendEmails(ctx context.Context, req *Request) error

	// ConfirmationLocals gathers the data the confirmation page renders
	// from, after a successful submit.
	ConfirmationLocals(ctx context.Context, req *Request) (Locals, error)
}

// Base carries the definition and the default behaviors.
type Base struct {
	Def *Definition
}

func (b Base) ServiceType(*Request) Type {
	return b.Def.Type
}

// PatronEligible applies the affiliation gate when one is configured.
func (b Base) PatronEligible(user *User) Eligibility {
	if len(b.Def.PermittedAffils) == 0 {
		return Eligible
	}
	if user == nil {
		return Ineligible("Current user is not eligible for service " + b.Def.Label)
	}
	for _, affil := range b.Def.PermittedAffils {
		if user.HasAffil(affil) {
			return Eligible
		}
	}
	return Ineligible("Current user is not eligible for service " + b.Def.Label)
}

func (b Base) BibEligible(context.Context, *Request) Eligibility {
	return Eligible
}

func (b Base) FormLocals(_ context.Context, req *Request) (Locals, error) {
	return Locals{"bib_record": req.Record}, nil
}

func (b Base) ServiceURL(context.Context, *Request) (string, error) {
	return "", bib.NewConfigurationError(b.Def.Key, "service has no bounce URL")
}

func (b Base) Submit(context.Context, *Request) error {
	return nil
}

func (b Base) SendEmails(context.Context, *Request) error {
	return nil
}

func (b Base) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return Locals{"bib_record": req.Record}, nil
}

// holdingsByLocation returns the record's holdings at any of the given
// location codes.
func holdingsByLocation(record *bib.Record, codes ...string) []*bib.Holding {
	want := make(map[string]bool, len(codes))
	for _, code := range codes {
		want[code] = true
	}

	var found []*bib.Holding
	for _, holding := range record.Holdings {
		if want[holding.LocationCode] {
			found = append(found, holding)
		}
	}
	return found
}
