package services

import (
	"github.com/culsys/valet-service/internal/backends/illiad"
	"github.com/culsys/valet-service/internal/bib"
)

// Endpoints are the external URLs the bounce services hand patrons to.
type Endpoints struct {
	// IlliadBaseURL is the main ILLiad instance (Morningside, Barnard,
	// UTS); IlliadZCHBaseURL is the medical campus instance.
	IlliadBaseURL    string
	IlliadZCHBaseURL string
	IlliadLoginURL   string

	// EzproxyLoginURL fronts every ILLiad hand-off.
	EzproxyLoginURL string

	ReshareBaseURL string
	AeonLoginURL   string

	// CatalogBaseURL is the public catalog, used for record links in
	// emails and hand-off fields.
	CatalogBaseURL string

	// MyAccountURL is the patron borrowing-account page shown on
	// confirmation screens.
	MyAccountURL string
}

// Teachers College patrons are served by their own library; the triage
// forms bounce them to these fixed addresses.
const (
	tcILLURL      = "https://resolver.library.columbia.edu/tc-ill"
	tcServicesURL = "https://library.tc.columbia.edu/services"
)

// illiadBib projects a record into the fields the ILLiad builders use.
func illiadBib(record *bib.Record) *illiad.Bib {
	b := &illiad.Bib{
		ID:         record.ID(),
		Title:      record.Title(),
		Author:     record.Author(),
		CallNumber: record.CallNumber(),
		OCLCNumber: record.OCLCNumber(),
		Edition:    record.Edition(),
		PubPlace:   record.PubPlace(),
		PubName:    record.PubName(),
		PubDate:    record.PubDate(),
		Barcodes:   record.Barcodes(),
	}
	if isbns := record.ISBNs(); len(isbns) > 0 {
		b.ISBN = isbns[0]
	}
	if issns := record.ISSNs(); len(issns) > 0 {
		b.ISSN = issns[0]
	}
	return b
}

// illiadPatron projects a user into the ILLiad requester fields.
func illiadPatron(user *User) illiad.Patron {
	if user == nil {
		return illiad.Patron{}
	}
	return illiad.Patron{Barcode: user.Barcode, PatronGroups: user.PatronGroups}
}
