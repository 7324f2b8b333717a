package workflow

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culsys/valet-service/internal/bib"
	"github.com/culsys/valet-service/internal/marc"
	"github.com/culsys/valet-service/internal/repository"
	"github.com/culsys/valet-service/internal/services"
)

func testMARCRecord() *marc.Record {
	raw := marc.NewRecord("00000cam a2200000 a 4500")
	raw.AddControlField("001", "4567890")
	raw.AddDataField(marc.DataField{Tag: "245", Subfields: []marc.Subfield{
		{Code: "a", Value: "Structures :"}, {Code: "b", Value: "a study."},
	}})
	raw.AddDataField(marc.DataField{Tag: "100", Subfields: []marc.Subfield{
		{Code: "a", Value: "Salvadori, Mario"},
	}})
	raw.AddDataField(marc.DataField{Tag: "852", Subfields: []marc.Subfield{
		{Code: "0", Value: "h1"}, {Code: "a", Value: "Butler Library"},
		{Code: "b", Value: "glx"}, {Code: "h", Value: "AB123 .C45"},
	}})
	return raw
}

// testBoundWithRecord carries a barcoded item so the barcode entry point
// has something to resolve.
func testBoundWithRecord() *marc.Record {
	raw := marc.NewRecord("00000cam a2200000 a 4500")
	raw.AddControlField("001", "778899")
	raw.AddDataField(marc.DataField{Tag: "245", Subfields: []marc.Subfield{
		{Code: "a", Value: "Pamphlets bound together."},
	}})
	raw.AddDataField(marc.DataField{Tag: "852", Subfields: []marc.Subfield{
		{Code: "0", Value: "h9"}, {Code: "a", Value: "Butler Library"},
		{Code: "b", Value: "glx"}, {Code: "h", Value: "B823.2 .P36"},
	}})
	raw.AddDataField(marc.DataField{Tag: "876", Subfields: []marc.Subfield{
		{Code: "0", Value: "h9"}, {Code: "a", Value: "item-9"},
		{Code: "p", Value: "RB00412"},
	}})
	return raw
}

type fakeBibs struct {
	records   map[string]*marc.Record
	byBarcode map[string]*marc.Record
}

func (f *fakeBibs) LookupBib(_ context.Context, bibID string) (*marc.Record, error) {
	record, ok := f.records[bibID]
	if !ok {
		return nil, bib.NewNotFoundError("bib", bibID)
	}
	return record, nil
}

func (f *fakeBibs) LookupBarcode(_ context.Context, barcode string) (*marc.Record, error) {
	record, ok := f.byBarcode[barcode]
	if !ok {
		return nil, bib.NewNotFoundError("item", barcode)
	}
	return record, nil
}

type fakeLogs struct {
	rows []*repository.RequestLog
	err  error
}

func (f *fakeLogs) Create(_ context.Context, row *repository.RequestLog) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeLogs) GetByID(context.Context, uuid.UUID) (*repository.RequestLog, error) {
	return nil, nil
}

func (f *fakeLogs) ListBySet(context.Context, string, int, int) ([]*repository.RequestLog, error) {
	return nil, nil
}

func (f *fakeLogs) CountBySet(context.Context, time.Time) (map[string]int64, error) {
	return nil, nil
}

func testEngine(t *testing.T, logs repository.RequestLogRepository) *Engine {
	t.Helper()

	defs := []*services.Definition{
		{Key: "research", Label: "Research Request", Type: services.TypeForm},
		{Key: "docdel", Label: "Document Delivery", Type: services.TypeForm, Authenticate: true},
		{Key: "campus_scan_test", Label: "Scan & Deliver", Type: services.TypeForm,
			PermittedAffils: []string{"columbia"}},
		{Key: "elink", Label: "E-Link", Type: services.TypeBounce,
			VendorEndpoint: "https://vendor.example.com/open"},
		{Key: "broken_bounce", Label: "Broken Bounce", Type: services.TypeBounce},
	}

	return NewEngine(Config{
		Catalog: services.NewCatalog(defs, services.Deps{}),
		Bibs: &fakeBibs{
			records: map[string]*marc.Record{
				"4567890": testMARCRecord(),
				"778899":  testBoundWithRecord(),
			},
			byBarcode: map[string]*marc.Record{
				"RB00412": testBoundWithRecord(),
				"RBSTRAY": testMARCRecord(),
			},
		},
		Logs:    logs,
		CUMC:    CUMCBlock{Affil: "cumc", URL: "https://cumc.example.com/requests"},
		Logger:  zerolog.Nop(),
	})
}

func TestShowRendersForm(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Show(context.Background(), Input{Service: "research", BibID: "4567890"})

	assert.Equal(t, OutcomeForm, out.Kind)
	assert.Equal(t, "research", out.Service)

	record, ok := out.Locals["bib_record"].(*bib.Record)
	require.True(t, ok)
	assert.Equal(t, "4567890", record.ID())
}

func TestShowUnknownService(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Show(context.Background(), Input{Service: "nonesuch", BibID: "4567890"})

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Message, "Cannot find configuration for: nonesuch")
}

func TestShowRequiresLogin(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Show(context.Background(), Input{Service: "docdel", BibID: "4567890"})

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Message, "requires login")
}

func TestShowAffilGate(t *testing.T) {
	engine := testEngine(t, nil)

	barnard := &services.User{Username: "bc1", Affils: []string{"barnard"}}
	out := engine.Show(context.Background(), Input{Service: "campus_scan_test", BibID: "4567890", User: barnard})
	assert.Equal(t, OutcomeError, out.Kind)

	columbia := &services.User{Username: "cu1", Affils: []string{"columbia"}}
	out = engine.Show(context.Background(), Input{Service: "campus_scan_test", BibID: "4567890", User: columbia})
	assert.Equal(t, OutcomeForm, out.Kind)
}

func TestShowCUMCBlock(t *testing.T) {
	engine := testEngine(t, nil)

	blocked := &services.User{Username: "md1", Affils: []string{"cumc"}}
	out := engine.Show(context.Background(), Input{Service: "research", BibID: "4567890", User: blocked})

	assert.Equal(t, OutcomeRedirect, out.Kind)
	assert.Equal(t, "https://cumc.example.com/requests", out.Location)
}

func TestShowBibNotFound(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Show(context.Background(), Input{Service: "research", BibID: "999"})

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Message, "Cannot find bib record for id 999")
}

func TestShowBarcodeRendersForm(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.ShowBarcode(context.Background(), Input{Service: "research"}, "RB00412")

	assert.Equal(t, OutcomeForm, out.Kind)
	record, ok := out.Locals["bib_record"].(*bib.Record)
	require.True(t, ok)
	assert.Equal(t, "778899", record.ID())
}

func TestShowBarcodeUnknownBarcode(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.ShowBarcode(context.Background(), Input{Service: "research"}, "NOPE001")

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Message, "Cannot find any record for barcode NOPE001")
}

func TestShowBarcodeHoldingNotFound(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.ShowBarcode(context.Background(), Input{Service: "research"}, "RBSTRAY")

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Message, "Cannot find any holding within bib 4567890 with the barcode RBSTRAY")
}

func TestShowBarcodeRejectsBlankBarcode(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.ShowBarcode(context.Background(), Input{Service: "research"}, "")

	assert.Equal(t, OutcomeError, out.Kind)
}

func TestShowBounceRedirectsAndLogs(t *testing.T) {
	logs := &fakeLogs{}
	engine := testEngine(t, logs)

	params := url.Values{"issn": []string{"1234-5678"}}
	out := engine.Show(context.Background(), Input{
		Service:  "elink",
		BibID:    "4567890",
		Params:   params,
		ClientIP: "128.59.1.1",
	})

	assert.Equal(t, OutcomeRedirect, out.Kind)
	assert.Equal(t, "https://vendor.example.com/open?issn=1234-5678", out.Location)

	require.Len(t, logs.rows, 1)
	row := logs.rows[0]
	assert.Equal(t, "E-Link", row.Set)
	assert.Equal(t, "bounce", row.Outcome)
	assert.Equal(t, "4567890", row.BibID)
	assert.Equal(t, "128.59.1.1", row.ClientIP)
}

func TestShowBounceWithoutURL(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Show(context.Background(), Input{Service: "broken_bounce", BibID: "4567890"})

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Contains(t, out.Message, "Cannot determine bounce url")
}

func TestSubmitConfirmsAndLogs(t *testing.T) {
	logs := &fakeLogs{}
	engine := testEngine(t, logs)

	user := &services.User{Username: "abc123", Email: "abc123@columbia.edu"}
	out := engine.Submit(context.Background(), Input{
		Service:   "research",
		BibID:     "4567890",
		User:      user,
		Params:    url.Values{"note": []string{"please hold"}},
		ClientIP:  "160.39.2.2",
		UserAgent: "test-agent",
	})

	assert.Equal(t, OutcomeConfirm, out.Kind)
	assert.NotNil(t, out.Locals["bib_record"])

	require.Len(t, logs.rows, 1)
	row := logs.rows[0]
	assert.Equal(t, "Research Request", row.Set)
	assert.Equal(t, "confirm", row.Outcome)
	assert.Equal(t, "abc123", row.User)
	assert.Equal(t, "test-agent", row.UserAgent)

	var logdata map[string]string
	require.NoError(t, json.Unmarshal(row.Logdata, &logdata))
	assert.Equal(t, "4567890", logdata["bib_id"])
	assert.Equal(t, "abc123", logdata["user"])
	assert.Contains(t, logdata["title"], "Structures")
}

func TestSubmitAuditFailureDoesNotBlock(t *testing.T) {
	logs := &fakeLogs{err: context.DeadlineExceeded}
	engine := testEngine(t, logs)

	out := engine.Submit(context.Background(), Input{Service: "research", BibID: "4567890"})

	assert.Equal(t, OutcomeConfirm, out.Kind)
}

func TestShowRejectsMissingBibID(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Show(context.Background(), Input{Service: "research"})

	assert.Equal(t, OutcomeError, out.Kind)
	assert.Equal(t, "Invalid request", out.Message)
}

func TestSubmitUnknownService(t *testing.T) {
	engine := testEngine(t, nil)

	out := engine.Submit(context.Background(), Input{Service: "nonesuch", BibID: "4567890"})

	assert.Equal(t, OutcomeError, out.Kind)
}
