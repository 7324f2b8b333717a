// Package workflow drives a patron request from service key to outcome:
// resolve the service, gate the patron, load the record, then hand off
// to the service strategy for a form, a redirect, or a confirmation.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/culsys/valet-service/internal/availability"
	"github.com/culsys/valet-service/internal/bib"
	"github.com/culsys/valet-service/internal/marc"
	"github.com/culsys/valet-service/internal/observability"
	"github.com/culsys/valet-service/internal/repository"
	"github.com/culsys/valet-service/internal/services"
)

// Kind classifies what the caller should do with an Outcome.
type Kind string

const (
	// OutcomeForm renders the service's request form.
	OutcomeForm Kind = "form"
	// OutcomeRedirect sends the patron to an external system.
	OutcomeRedirect Kind = "redirect"
	// OutcomeConfirm renders the post-submit confirmation page.
	OutcomeConfirm Kind = "confirm"
	// OutcomeError renders the patron-facing error page.
	OutcomeError Kind = "error"
)

// Outcome is the result of running a request flow.
type Outcome struct {
	Kind Kind

	// Service is the key of the service that handled the request.
	Service string

	// Locals feeds the form or confirmation template.
	Locals services.Locals

	// Location is the redirect target for OutcomeRedirect.
	Location string

	// Message is the patron-facing text for OutcomeError.
	Message string
}

// validate checks engine inputs; the tags live on Input.
var validate = validator.New()

// Input carries one patron request into the engine.
type Input struct {
	// Service is the URL path segment naming the service.
	Service string `validate:"required,max=64"`

	// BibID is the bibliographic record identifier.
	BibID string `validate:"required,max=32"`

	// User is nil when nobody is logged in.
	User *services.User

	// Params are the query or form parameters.
	Params url.Values

	// ClientIP and UserAgent feed the audit log.
	ClientIP  string
	UserAgent string
}

// BibLoader fetches bibliographic records from the catalog index, by
// bib id or by item barcode.
type BibLoader interface {
	LookupBib(ctx context.Context, bibID string) (*marc.Record, error)
	LookupBarcode(ctx context.Context, barcode string) (*marc.Record, error)
}

// CUMCBlock redirects medical-campus patrons to their own request system.
type CUMCBlock struct {
	Affil string
	URL   string
}

// Config wires an Engine.
type Config struct {
	Catalog   *services.Catalog
	Bibs      BibLoader
	Locations *bib.Locations
	Resolver  *availability.Resolver

	// Logs may be nil; audit writes are then skipped.
	Logs repository.RequestLogRepository

	CUMC    CUMCBlock
	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// Engine runs request flows. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	catalog   *services.Catalog
	bibs      BibLoader
	locations *bib.Locations
	resolver  *availability.Resolver
	logs      repository.RequestLogRepository
	cumc      CUMCBlock
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

// NewEngine creates an Engine from its wiring.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		catalog:   cfg.Catalog,
		bibs:      cfg.Bibs,
		locations: cfg.Locations,
		resolver:  cfg.Resolver,
		logs:      cfg.Logs,
		cumc:      cfg.CUMC,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// Show runs the GET flow: eligibility gates, record load, then either
// form locals or a bounce URL, per the service.
func (e *Engine) Show(ctx context.Context, in Input) Outcome {
	start := time.Now()
	outcome := e.show(ctx, in)
	e.observe(in, outcome, time.Since(start))
	return outcome
}

func (e *Engine) show(ctx context.Context, in Input) Outcome {
	if err := validate.Struct(in); err != nil {
		return e.errorOutcome(in.Service, "Invalid request")
	}

	svc, out := e.resolve(ctx, in)
	if svc == nil {
		return out
	}
	def := svc.Definition

	if blocked := e.cumcBlock(in); blocked != nil {
		return *blocked
	}

	if elig := svc.Strategy.PatronEligible(in.User); !elig.OK {
		e.recordDenied(def.Key, "patron")
		return e.errorOutcome(def.Key, elig.Reason)
	}

	record, out := e.loadRecord(ctx, in, def)
	if record == nil {
		return out
	}

	req := services.NewRequest(def, record, in.User, in.Params, e.resolver)

	if elig := svc.Strategy.BibEligible(ctx, req); !elig.OK {
		e.recordDenied(def.Key, "bib")
		return e.errorOutcome(def.Key,
			fmt.Sprintf("Bib ID %s is not eligible for service %s: %s", in.BibID, def.Label, elig.Reason))
	}

	switch svc.Strategy.ServiceType(req) {
	case services.TypeForm:
		locals, err := svc.Strategy.FormLocals(ctx, req)
		if err != nil {
			e.logger.Error().Err(err).Str("service", def.Key).Msg("form locals failed")
			return e.errorOutcome(def.Key, patronMessage(err, def.Label))
		}
		return Outcome{Kind: OutcomeForm, Service: def.Key, Locals: locals}

	case services.TypeBounce:
		location, err := svc.Strategy.ServiceURL(ctx, req)
		if err != nil || location == "" {
			e.logger.Error().Err(err).Str("service", def.Key).Msg("bounce url failed")
			return e.errorOutcome(def.Key,
				fmt.Sprintf("Cannot determine bounce url for service %s", def.Label))
		}
		e.audit(ctx, in, def, record, "bounce")
		return Outcome{Kind: OutcomeRedirect, Service: def.Key, Location: location}

	default:
		return e.errorOutcome(def.Key,
			fmt.Sprintf("No 'type' defined for service %s", def.Label))
	}
}

// ShowBarcode runs the GET flow for requests carrying only an item
// barcode, as bound-with requests do. The record and its holding are
// located through a barcode search, then the normal show flow runs with
// the holding preselected.
func (e *Engine) ShowBarcode(ctx context.Context, in Input, barcode string) Outcome {
	start := time.Now()
	outcome := e.showBarcode(ctx, in, barcode)
	e.observe(in, outcome, time.Since(start))
	return outcome
}

func (e *Engine) showBarcode(ctx context.Context, in Input, barcode string) Outcome {
	if in.Service == "" || barcode == "" || len(barcode) > 32 {
		return e.errorOutcome(in.Service, "Invalid request")
	}

	raw, err := e.bibs.LookupBarcode(ctx, barcode)
	if err != nil {
		if errors.Is(err, bib.ErrNotFound) {
			return e.errorOutcome(in.Service,
				fmt.Sprintf("Cannot find any record for barcode %s", barcode))
		}
		e.logger.Error().Err(err).Str("barcode", barcode).Msg("barcode lookup failed")
		return e.errorOutcome(in.Service,
			fmt.Sprintf("Cannot retrieve record for barcode %s", barcode))
	}
	record := bib.NewRecord(raw, e.locations)

	holding := record.HoldingByBarcode(barcode)
	if holding == nil {
		return e.errorOutcome(in.Service,
			fmt.Sprintf("Cannot find any holding within bib %s with the barcode %s", record.ID(), barcode))
	}

	in.BibID = record.ID()
	if in.Params == nil {
		in.Params = url.Values{}
	}
	in.Params.Set("mfhd_id", holding.MFHDID)
	in.Params.Set("barcode", barcode)
	return e.show(ctx, in)
}

// Submit runs the POST flow: service-specific submit handling, the audit
// log write, notification emails, then confirmation locals.
func (e *Engine) Submit(ctx context.Context, in Input) Outcome {
	start := time.Now()
	outcome := e.submit(ctx, in)
	e.observe(in, outcome, time.Since(start))
	return outcome
}

func (e *Engine) submit(ctx context.Context, in Input) Outcome {
	if err := validate.Struct(in); err != nil {
		return e.errorOutcome(in.Service, "Invalid request")
	}

	svc, out := e.resolve(ctx, in)
	if svc == nil {
		return out
	}
	def := svc.Definition

	if blocked := e.cumcBlock(in); blocked != nil {
		return *blocked
	}

	if elig := svc.Strategy.PatronEligible(in.User); !elig.OK {
		e.recordDenied(def.Key, "patron")
		return e.errorOutcome(def.Key, elig.Reason)
	}

	record, out := e.loadRecord(ctx, in, def)
	if record == nil {
		return out
	}

	req := services.NewRequest(def, record, in.User, in.Params, e.resolver)

	if err := svc.Strategy.Submit(ctx, req); err != nil {
		e.logger.Error().Err(err).Str("service", def.Key).Msg("submit failed")
		if e.metrics != nil {
			e.metrics.RecordSubmissionFailed(def.Key, errorType(err))
		}
		return e.errorOutcome(def.Key, patronMessage(err, def.Label))
	}

	// A lost audit row or a failed email never rolls back a placed
	// request; both are logged and the patron still gets confirmation.
	e.audit(ctx, in, def, record, "confirm")

	if err := svc.Strategy.SendEmails(ctx, req); err != nil {
		e.logger.Error().Err(err).Str("service", def.Key).Msg("request emails failed")
		if e.metrics != nil {
			e.metrics.RecordEmailFailed()
		}
	}

	locals, err := svc.Strategy.ConfirmationLocals(ctx, req)
	if err != nil {
		e.logger.Error().Err(err).Str("service", def.Key).Msg("confirmation locals failed")
		return e.errorOutcome(def.Key, patronMessage(err, def.Label))
	}

	if e.metrics != nil {
		e.metrics.RecordSubmission(def.Key)
	}
	return Outcome{Kind: OutcomeConfirm, Service: def.Key, Locals: locals}
}

// resolve finds the service and applies the authentication gate. The
// returned service is nil when the Outcome already answers the request.
func (e *Engine) resolve(_ context.Context, in Input) (*services.Service, Outcome) {
	svc, err := e.catalog.Resolve(in.Service)
	if err != nil {
		e.logger.Warn().Str("service", in.Service).Msg("unknown service")
		return nil, e.errorOutcome(in.Service,
			fmt.Sprintf("Cannot find configuration for: %s", in.Service))
	}

	if svc.Definition.Authenticate && in.User == nil {
		return nil, e.errorOutcome(in.Service,
			fmt.Sprintf("Service %s requires login", svc.Definition.Label))
	}

	return svc, Outcome{}
}

// cumcBlock answers non-nil when the patron must use the medical-campus
// request system instead.
func (e *Engine) cumcBlock(in Input) *Outcome {
	if in.User == nil || e.cumc.Affil == "" || e.cumc.URL == "" {
		return nil
	}
	if !in.User.HasAffil(e.cumc.Affil) {
		return nil
	}
	e.logger.Info().Str("patron", in.User.Username).Msg("cumc block")
	return &Outcome{Kind: OutcomeRedirect, Service: in.Service, Location: e.cumc.URL}
}

// loadRecord fetches and parses the bib record. The returned record is
// nil when the Outcome already answers the request.
func (e *Engine) loadRecord(ctx context.Context, in Input, def *services.Definition) (*bib.Record, Outcome) {
	raw, err := e.bibs.LookupBib(ctx, in.BibID)
	if err != nil {
		if errors.Is(err, bib.ErrNotFound) {
			return nil, e.errorOutcome(def.Key,
				fmt.Sprintf("Cannot find bib record for id %s", in.BibID))
		}
		e.logger.Error().Err(err).Str("bib_id", in.BibID).Msg("bib lookup failed")
		return nil, e.errorOutcome(def.Key,
			fmt.Sprintf("Cannot retrieve bib record for id %s", in.BibID))
	}
	return bib.NewRecord(raw, e.locations), Outcome{}
}

// audit writes one request log row. Failures are reported and swallowed.
func (e *Engine) audit(ctx context.Context, in Input, def *services.Definition, record *bib.Record, outcome string) {
	if e.logs == nil {
		return
	}

	login := ""
	if in.User != nil {
		login = in.User.Username
	}

	logdata, err := json.Marshal(map[string]string{
		"bib_id": record.ID(),
		"title":  record.Title(),
		"author": record.Author(),
		"user":   login,
	})
	if err != nil {
		logdata = []byte("{}")
	}

	row := &repository.RequestLog{
		Set:       def.Label,
		Outcome:   outcome,
		BibID:     record.ID(),
		Title:     record.Title(),
		Author:    record.Author(),
		User:      login,
		ClientIP:  in.ClientIP,
		UserAgent: in.UserAgent,
		Logdata:   logdata,
	}
	if err := e.logs.Create(ctx, row); err != nil {
		e.logger.Error().Err(err).Str("service", def.Key).Msg("request log write failed")
		if e.metrics != nil {
			e.metrics.RecordAuditWriteFailed()
		}
	}
}

func (e *Engine) recordDenied(service, gate string) {
	if e.metrics != nil {
		e.metrics.RecordEligibilityDenied(service, gate)
	}
}

func (e *Engine) errorOutcome(service, message string) Outcome {
	return Outcome{Kind: OutcomeError, Service: service, Message: message}
}

func (e *Engine) observe(in Input, out Outcome, elapsed time.Duration) {
	if e.metrics != nil {
		e.metrics.RecordRequest(in.Service, string(out.Kind), elapsed.Seconds())
	}
}

// patronMessage turns an internal error into text fit for the error page.
func patronMessage(err error, label string) string {
	var apiErr *bib.ExternalAPIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var cfgErr *bib.ConfigurationError
	if errors.As(err, &cfgErr) {
		return fmt.Sprintf("Service %s is not configured correctly", label)
	}
	return fmt.Sprintf("Service %s is currently unavailable", label)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, bib.ErrNotFound):
		return "not_found"
	case errors.Is(err, bib.ErrConfiguration):
		return "configuration"
	default:
		var apiErr *bib.ExternalAPIError
		if errors.As(err, &apiErr) {
			return "external_api"
		}
		return "internal"
	}
}
