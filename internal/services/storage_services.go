package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/culsys/valet-service/internal/bib"
	"github.com/culsys/valet-service/internal/mailer"
)

// Paging serves offsite holdings through a barcode-selection form that
// emails the paging staff.
type Paging struct {
	Base
	Mailer mailer.Mailer
}

func (s *Paging) FormLocals(ctx context.Context, req *Request) (Locals, error) {
	// Warm the availability cache so the form can badge item status.
	req.Availability(ctx)
	return Locals{"bib_record": req.Record}, nil
}

func (s *Paging) SendEmails(ctx context.Context, req *Request) error {
	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{s.Def.StaffEmail},
		Subject: fmt.Sprintf("New Offsite Paging Request [%s]", req.Record.Title()),
		Body:    requestEmailBody(req),
	})
}

func (s *Paging) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return storageConfirmationLocals(req, ""), nil
}

// storagePaging is the shared behavior of the remote-storage request
// services. Each restricts the record to its facility's holdings,
// requires at least one available item, and mails both the facility
// staff and the patron.
type storagePaging struct {
	Base
	Mailer mailer.Mailer

	// name appears in patron-facing refusals and email subjects.
	name string
	// facility describes the storage facility in refusals.
	facility string

	// inactiveBarcodes, when set, annotates staff emails with the
	// retired barcodes of each requested item.
	inactiveBarcodes InactiveBarcodeSource
}

// InactiveBarcodeSource looks up the retired barcodes that once labeled
// an item.
type InactiveBarcodeSource interface {
	InactiveItemBarcodes(ctx context.Context, barcode string) ([]string, error)
}

func (s *storagePaging) holdings(record *bib.Record) []*bib.Holding {
	if s.Def.LocationCode != "" {
		return holdingsByLocation(record, s.Def.LocationCode)
	}
	return holdingsByLocation(record, s.Def.Locations...)
}

func (s *storagePaging) BibEligible(ctx context.Context, req *Request) Eligibility {
	holdings := s.holdings(req.Record)
	if len(holdings) == 0 {
		return Ineligible(fmt.Sprintf(
			"This record has no %s holdings. Only items stored in %s may be requested via %s.",
			s.name, s.facility, s.name))
	}

	if len(req.Availability(ctx).AvailableItems(holdings)) == 0 {
		return Ineligible(fmt.Sprintf(
			"This record has no available %s items. All items for this record are either checked out or otherwise unavailable.",
			s.name))
	}
	return Eligible
}

func (s *storagePaging) FormLocals(ctx context.Context, req *Request) (Locals, error) {
	holdings := s.holdings(req.Record)
	available := req.Availability(ctx).AvailableItems(holdings)

	// With exactly one available item the form preselects it.
	filterBarcode := ""
	if len(available) == 1 {
		filterBarcode = available[0].Barcode
	}

	return Locals{
		"bib_record":     req.Record,
		"holdings":       holdings,
		"filter_barcode": filterBarcode,
	}, nil
}

func (s *storagePaging) SendEmails(ctx context.Context, req *Request) error {
	body := requestEmailBody(req)
	title := req.Record.Title()

	staffBody := body
	if s.inactiveBarcodes != nil {
		staffBody += "Inactive Barcodes: " + s.inactiveBarcodeNote(ctx, req) + "\n"
	}

	if err := s.Mailer.Send(ctx, mailer.Message{
		To:      []string{s.Def.StaffEmail},
		Subject: fmt.Sprintf("New %s Request [%s]", s.name, title),
		Body:    staffBody,
	}); err != nil {
		return err
	}

	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{req.User.Email},
		Subject: fmt.Sprintf("%s Request Confirmation [%s]", s.name, title),
		Body:    body,
	})
}

func (s *storagePaging) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return storageConfirmationLocals(req, s.Def.StaffEmail), nil
}

// inactiveBarcodeNote collects retired barcodes for every requested
// item. Lookup failures degrade to a placeholder so a mirror outage
// never blocks the request email.
func (s *storagePaging) inactiveBarcodeNote(ctx context.Context, req *Request) string {
	var inactive []string
	for _, barcode := range req.Params["itemBarcodes"] {
		retired, err := s.inactiveBarcodes.InactiveItemBarcodes(ctx, barcode)
		if err != nil {
			continue
		}
		inactive = append(inactive, retired...)
	}
	if len(inactive) == 0 {
		return "n/a"
	}
	return strings.Join(inactive, ", ")
}

// NewBearstor builds the Barnard remote storage request service.
func NewBearstor(def *Definition, m mailer.Mailer) Strategy {
	return &storagePaging{
		Base:     Base{Def: def},
		Mailer:   m,
		name:     "Barnard Remote",
		facility: "Barnard's remote storage facility",
	}
}

// NewBarnardRemote builds the Barnard Remote request service.
func NewBarnardRemote(def *Definition, m mailer.Mailer) Strategy {
	return &storagePaging{
		Base:     Base{Def: def},
		Mailer:   m,
		name:     "Barnard Remote",
		facility: "Barnard's remote storage facility",
	}
}

// NewStarrstor builds the Starr Library remote storage request service.
// barcodes may be nil when no legacy mirror is configured.
func NewStarrstor(def *Definition, m mailer.Mailer, barcodes InactiveBarcodeSource) Strategy {
	return &storagePaging{
		Base:             Base{Def: def},
		Mailer:           m,
		name:             "StarrStor",
		facility:         "Starr's remote storage facility",
		inactiveBarcodes: barcodes,
	}
}

// AveryOnsite requests on-site use of Avery materials. It is a plain
// form service whose submit mails Avery staff and confirms to the
// patron.
type AveryOnsite struct {
	Base
	Mailer mailer.Mailer
}

func (s *AveryOnsite) SendEmails(ctx context.Context, req *Request) error {
	body := requestEmailBody(req)
	title := req.Record.Title()

	if err := s.Mailer.Send(ctx, mailer.Message{
		To:      []string{s.Def.StaffEmail},
		Subject: fmt.Sprintf("New On-Site Use request [%s]", title),
		Body:    body,
	}); err != nil {
		return err
	}

	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{req.User.Email},
		Subject: fmt.Sprintf("Avery On-Site Use - Request Confirmation [%s]", title),
		Body:    body,
	})
}

func (s *AveryOnsite) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return storageConfirmationLocals(req, s.Def.StaffEmail), nil
}

// Precat requests a search for locally cataloged material that has not
// yet received full processing. One email goes to both staff and
// patron.
type Precat struct {
	Base
	Mailer mailer.Mailer
}

func (s *Precat) SendEmails(ctx context.Context, req *Request) error {
	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{req.User.Email, s.Def.StaffEmail},
		Subject: fmt.Sprintf("Precat Search Request [%s]", req.Record.Title()),
		Body:    requestEmailBody(req),
	})
}

func (s *Precat) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return storageConfirmationLocals(req, s.Def.StaffEmail), nil
}

func storageConfirmationLocals(req *Request, staffEmail string) Locals {
	locals := Locals{
		"bib_record":   req.Record,
		"barcodes":     req.Params["itemBarcodes"],
		"patron_uni":   req.User.Username,
		"patron_email": req.User.Email,
	}
	if staffEmail != "" {
		locals["staff_email"] = staffEmail
	}
	return locals
}

// requestEmailBody renders the plain-text request summary shared by the
// staff request and patron confirmation emails.
func requestEmailBody(req *Request) string {
	var b strings.Builder
	record := req.Record

	fmt.Fprintf(&b, "Title: %s\n", record.Title())
	if author := record.Author(); author != "" {
		fmt.Fprintf(&b, "Author: %s\n", author)
	}
	if callNumber := record.CallNumber(); callNumber != "" {
		fmt.Fprintf(&b, "Call Number: %s\n", callNumber)
	}
	if published := record.Publisher(); published != "" {
		fmt.Fprintf(&b, "Published: %s\n", published)
	}
	fmt.Fprintf(&b, "Record: %s\n", record.ID())

	if barcodes := req.Params["itemBarcodes"]; len(barcodes) > 0 {
		fmt.Fprintf(&b, "Barcodes: %s\n", strings.Join(barcodes, ", "))
	}
	if note := req.Param("note"); note != "" {
		fmt.Fprintf(&b, "Note: %s\n", note)
	}

	fmt.Fprintf(&b, "\nRequested by: %s <%s>\n", req.User.Username, req.User.Email)
	return b.String()
}
