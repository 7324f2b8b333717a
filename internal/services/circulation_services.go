package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/culsys/valet-service/internal/bib"
	"github.com/culsys/valet-service/internal/mailer"
)

const askALibrarian = `Please ask a librarian at http://library.columbia.edu/services/askalibrarian.html or ask for assistance at a service desk.`

// InProcess requests a status check on material that is still on order
// or being processed. The request is mailed to staff and copied to the
// patron.
type InProcess struct {
	Base
	Mailer mailer.Mailer
}

var (
	inProcessCallNumber = regexp.MustCompile(`(?i)order|process`)
	inProcessAcqInfo    = regexp.MustCompile(`(?i)order|process|received`)
)

func (s *InProcess) BibEligible(_ context.Context, req *Request) Eligibility {
	if len(inProcessHoldings(req.Record)) == 0 {
		return Ineligible("This item has no holdings On Order or In Process. " + askALibrarian)
	}
	return Eligible
}

func (s *InProcess) FormLocals(_ context.Context, req *Request) (Locals, error) {
	return Locals{
		"bib_record": req.Record,
		"holdings":   inProcessHoldings(req.Record),
	}, nil
}

func (s *InProcess) SendEmails(ctx context.Context, req *Request) error {
	locals, err := s.requestLocals(req)
	if err != nil {
		return err
	}

	body := requestEmailBody(req)
	body += fmt.Sprintf("Location: %s (%s)\n", locals["location_name"], locals["location_code"])
	if pickup := req.Param("pickup"); pickup != "" {
		body += "Pickup: " + pickup + "\n"
	}

	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{req.User.Email, locals["staff_email"].(string)},
		Subject: fmt.Sprintf("On Order / In Process Request [%s]", req.Record.Title()),
		Body:    body,
	})
}

func (s *InProcess) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return s.requestLocals(req)
}

var barnardLocation = regexp.MustCompile(`(?i)bar`)

func (s *InProcess) requestLocals(req *Request) (Locals, error) {
	holding := req.Record.HoldingByID(req.Param("mfhd_id"))
	if holding == nil {
		return nil, fmt.Errorf("no holding %q on record %s", req.Param("mfhd_id"), req.Record.ID())
	}

	// Barnard material goes to Barnard's acquisitions staff.
	staffEmail := s.Def.StaffEmail
	if barnardLocation.MatchString(holding.LocationCode) && s.Def.BarnardEmail != "" {
		staffEmail = s.Def.BarnardEmail
	}

	return Locals{
		"bib_record":    req.Record,
		"location_name": holding.LocationDisplay,
		"location_code": holding.LocationCode,
		"pickup":        req.Param("pickup"),
		"note":          req.Param("note"),
		"patron_email":  req.User.Email,
		"staff_email":   staffEmail,
	}, nil
}

// inProcessHoldings finds holdings whose call number or acquisitions
// notes mark them as on order or in process.
func inProcessHoldings(record *bib.Record) []*bib.Holding {
	var found []*bib.Holding
	for _, holding := range record.Holdings {
		acqInfo := strings.Join(holding.AcquisitionsInformation, " ")
		if inProcessCallNumber.MatchString(holding.CallNumber) || inProcessAcqInfo.MatchString(acqInfo) {
			found = append(found, holding)
		}
	}
	return found
}

// NotOnShelf reports material missing from its shelf location. The
// search request is routed to the circulation desk responsible for the
// holding's location.
type NotOnShelf struct {
	Base
	Mailer mailer.Mailer
}

func (s *NotOnShelf) FormLocals(ctx context.Context, req *Request) (Locals, error) {
	holdings := make([]*bib.Holding, len(req.Record.Holdings))
	copy(holdings, req.Record.Holdings)
	sort.SliceStable(holdings, func(i, j int) bool {
		return holdings[i].LocationDisplay < holdings[j].LocationDisplay
	})

	req.Availability(ctx)

	return Locals{
		"bib_record": req.Record,
		"holdings":   holdings,
	}, nil
}

func (s *NotOnShelf) SendEmails(ctx context.Context, req *Request) error {
	locals, err := s.requestLocals(req)
	if err != nil {
		return err
	}

	body := requestEmailBody(req)
	body += fmt.Sprintf("Location: %s (%s)\n", locals["location_display"], locals["location_code"])

	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{req.User.Email, locals["staff_email"].(string)},
		Subject: "Search_Request: " + time.Now().Format("2006-01-02 15:04:05"),
		Body:    body,
	})
}

func (s *NotOnShelf) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return s.requestLocals(req)
}

func (s *NotOnShelf) requestLocals(req *Request) (Locals, error) {
	holding := req.Record.HoldingByID(req.Param("mfhd_id"))
	if holding == nil {
		return nil, fmt.Errorf("no holding %q on record %s", req.Param("mfhd_id"), req.Record.ID())
	}
	return Locals{
		"bib_record":       req.Record,
		"patron_uni":       req.User.Username,
		"patron_email":     req.User.Email,
		"location_display": holding.LocationDisplay,
		"location_code":    holding.LocationCode,
		"staff_email":      circulationEmailForLocation(holding.LocationCode),
		"note":             req.Param("note"),
	}, nil
}

// circulationEmailRules maps location-code prefixes to the circulation
// desk covering them. Order matters: the first match wins.
var circulationEmailRules = []struct {
	pattern *regexp.Regexp
	email   string
}{
	{regexp.MustCompile(`^bar,mil`), "butler_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(bwc|bar|bdc|bdg)`), "barnard_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^ref`), "reference_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(asx|docs|dsc|leh|les|lsp|lsw|map|off,docs|off,les)`), "lehman_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^bio`), "biology_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(bsc|bsr|bus)`), "business_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^che`), "chemistry_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(clm|dic|gax|off,dic|off,oral|off,rbms|off,rbx|off,uacl|oral|rbx|rbi|rbms|uacl)`), "butler_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(eal|ean|ear|eax|off,eal|off,ean|off,ear|off,eax)`), "starr_east_asian_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(jazz|msa|msc|msci|msr|mus|mvr|off,msc|off,msr|off,mus|off,mvr)`), "music_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(for,morn|hmc|hml|hsl|nyspi|hsx|off,hsar|off,hsl|off,hsr|off,hssc|orth)`), "health_sciences_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(off,uta|off,utmrl|off,utn|off,utp|off,uts|uts)`), "uts_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^psy`), "psychology_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^phy,`), "mathsci@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^phy`), "physics_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^swx`), "social_work_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^mat`), "math_science_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^sci`), "scieng_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^jou`), "journalism_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(ewng|gsc|off,gsc)`), "geoscience_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(off,glg|glg)`), "geology_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^eng`), "engineering_circulation@libraries.cul.columbia.edu"},
	{regexp.MustCompile(`^(ava|avda|ave|avr|faa|far|fax|off,avda|off,avr|off,far|off,fax|off,war|war)`), "avery_circulation@libraries.cul.columbia.edu"},
}

func circulationEmailForLocation(locationCode string) string {
	for _, rule := range circulationEmailRules {
		if rule.pattern.MatchString(locationCode) {
			return rule.email
		}
	}
	return "butler_circulation@libraries.cul.columbia.edu"
}

// ItemFeedback collects collection-care feedback about locally
// cataloged items, mailed to staff and copied to the patron.
type ItemFeedback struct {
	Base
	Mailer mailer.Mailer
}

// FeedbackOptions are the selectable reasons on the feedback form.
var FeedbackOptions = map[string]string{
	"retain": "retained on campus and not sent to Offsite (ReCAP)*",
	"rare":   "treated as a rare or unique item (non-circulating)*",
	"review": "reviewed for preservation (item in poor condition)*",
	"other":  "other (provide details below)",
}

func (s *ItemFeedback) BibEligible(_ context.Context, req *Request) Eligibility {
	if !req.Record.IsFolio() {
		return Ineligible("This item is not owned by Columbia Libraries. " + askALibrarian)
	}
	return Eligible
}

func (s *ItemFeedback) FormLocals(_ context.Context, req *Request) (Locals, error) {
	return Locals{
		"bib_record":       req.Record,
		"feedback_options": FeedbackOptions,
	}, nil
}

func (s *ItemFeedback) SendEmails(ctx context.Context, req *Request) error {
	locals, err := s.requestLocals(req)
	if err != nil {
		return err
	}

	body := requestEmailBody(req)
	body += fmt.Sprintf("Location: %s (%s)\n", locals["location_name"], locals["location_code"])
	body += fmt.Sprintf("Feedback: %s\n", locals["feedback_text"])

	return s.Mailer.Send(ctx, mailer.Message{
		To:      []string{req.User.Email, s.Def.StaffEmail},
		Subject: fmt.Sprintf("Item Feedback [%s]", req.Record.Title()),
		Body:    body,
	})
}

func (s *ItemFeedback) ConfirmationLocals(_ context.Context, req *Request) (Locals, error) {
	return s.requestLocals(req)
}

func (s *ItemFeedback) requestLocals(req *Request) (Locals, error) {
	holding := req.Record.HoldingByID(req.Param("mfhd_id"))
	if holding == nil {
		return nil, fmt.Errorf("no holding %q on record %s", req.Param("mfhd_id"), req.Record.ID())
	}
	return Locals{
		"bib_record":    req.Record,
		"location_name": holding.LocationDisplay,
		"location_code": holding.LocationCode,
		"feedback_text": FeedbackOptions[req.Param("feedback")],
		"note":          req.Param("note"),
		"patron_email":  req.User.Email,
		"staff_email":   s.Def.StaffEmail,
	}, nil
}

// Elink passes an OpenURL through to the configured vendor endpoint,
// after the usual authentication and eligibility gates.
type Elink struct {
	Base
}

func (s *Elink) ServiceURL(_ context.Context, req *Request) (string, error) {
	if s.Def.VendorEndpoint == "" {
		return "", bib.NewConfigurationError(s.Def.Key, "no vendor endpoint configured")
	}

	passthrough := url.Values{}
	for key, values := range req.Params {
		for _, value := range values {
			passthrough.Add(key, value)
		}
	}

	if len(passthrough) == 0 {
		return s.Def.VendorEndpoint, nil
	}
	return s.Def.VendorEndpoint + "?" + passthrough.Encode(), nil
}
