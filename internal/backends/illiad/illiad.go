// Package illiad builds the OCLC ILLiad hand-off URLs for resource
// sharing requests. There is no API call here: patrons are redirected to
// an ILLiad web form prefilled through query parameters, behind EZproxy.
package illiad

import (
	"net/url"
	"strings"
)

// Params is an ordered-irrelevant set of ILLiad form fields. Keys must
// match the ILLiad form field names.
type Params map[string]string

// Patron carries the requester attributes ILLiad wants on every request.
type Patron struct {
	Barcode      string
	PatronGroups []string
}

// Bib carries the bibliographic attributes the builders draw from.
type Bib struct {
	ID         string
	Title      string
	Author     string
	CallNumber string
	OCLCNumber string
	Edition    string
	PubPlace   string
	PubName    string
	PubDate    string
	ISBN       string
	ISSN       string
	Barcodes   []string
}

// DefaultParams returns the fields included with every ILLiad request:
// the catalog link (in a hidden field the patron cannot edit) plus the
// patron's barcode and groups.
func DefaultParams(patron Patron, bib *Bib) Params {
	params := Params{}
	if bib != nil && bib.ID != "" {
		params["Notes"] = "http://clio.columbia.edu/catalog/" + bib.ID
	}
	params["ItemInfo2"] = patron.Barcode
	params["ItemInfo4"] = strings.Join(patron.PatronGroups, ",")
	return params
}

// PagingParams returns the loan fields for paging-style requests.
func PagingParams(bib *Bib) Params {
	itemNumber := ""
	if len(bib.Barcodes) == 1 {
		itemNumber = bib.Barcodes[0]
	}

	return Params{
		"LoanTitle":     bib.Title,
		"LoanAuthor":    bib.Author,
		"ISSN":          bib.ISBN,
		"CallNumber":    bib.CallNumber,
		"ESPNumber":     bib.OCLCNumber,
		"ItemNumber":    itemNumber,
		"LoanEdition":   bib.Edition,
		"LoanPlace":     bib.PubPlace,
		"LoanPublisher": bib.PubName,
		"LoanDate":      bib.PubDate,
	}
}

// ArticleParams returns the article fields for scan requests.
func ArticleParams(bib *Bib) Params {
	return Params{
		"PhotoJournalTitle":  bib.Title,
		"PhotoArticleAuthor": bib.Author,
		"ISSN":               bib.ISSN,
		"CallNumber":         bib.CallNumber,
		"ESPNumber":          bib.OCLCNumber,
	}
}

// BookChapterParams returns the book-chapter fields for scan requests.
func BookChapterParams(bib *Bib) Params {
	return Params{
		"PhotoJournalTitle":  bib.Title,
		"PhotoItemAuthor":    bib.Author,
		"PhotoItemEdition":   bib.Edition,
		"PhotoItemPlace":     bib.PubPlace,
		"PhotoItemPublisher": bib.PubName,
		"PhotoJournalYear":   bib.PubDate,
		"ISSN":               bib.ISBN,
		"ESPNumber":          bib.OCLCNumber,
	}
}

// Merge overlays other onto p, other winning on key collisions.
func (p Params) Merge(other Params) Params {
	for key, value := range other {
		p[key] = value
	}
	return p
}

// cleanReplacer strips the characters that choke ILLiad's form parser.
// Escaping does not help, the fields have to lose them outright.
var cleanReplacer = strings.NewReplacer(">", "", "<", "", "&", "", "%", "", "#", "")

// CleanValues strips problematic characters from every value in place.
func (p Params) CleanValues() Params {
	for key, value := range p {
		p[key] = cleanReplacer.Replace(value)
	}
	return p
}

// BuildFullURL wraps the prefilled ILLiad form URL in the EZproxy login
// URL. Patrons always reach ILLiad through EZproxy.
func BuildFullURL(ezproxyLoginURL, illiadURL string, params Params) string {
	query := url.Values{}
	for key, value := range params {
		query.Set(key, value)
	}
	return ezproxyLoginURL + "?url=" + illiadURL + "?" + query.Encode()
}
