package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/culsys/valet-service/internal/services"
	"github.com/culsys/valet-service/internal/workflow"
)

// fakeEngine records the inputs it was called with and answers canned
// outcomes.
type fakeEngine struct {
	showOutcome   workflow.Outcome
	submitOutcome workflow.Outcome
	lastBarcode   string
	lastInput     workflow.Input
}

func (f *fakeEngine) Show(_ context.Context, in workflow.Input) workflow.Outcome {
	f.lastInput = in
	return f.showOutcome
}

func (f *fakeEngine) ShowBarcode(_ context.Context, in workflow.Input, barcode string) workflow.Outcome {
	f.lastInput = in
	f.lastBarcode = barcode
	return f.showOutcome
}

func (f *fakeEngine) Submit(_ context.Context, in workflow.Input) workflow.Outcome {
	f.lastInput = in
	return f.submitOutcome
}

func newTestServer(engine RequestEngine) *Server {
	return NewServer(
		Config{Address: "127.0.0.1:0", MetricsEnabled: true},
		engine,
		nil,
		zerolog.Nop(),
		RemoteUserMiddleware(nil, zerolog.Nop()),
	)
}

func TestShowRendersFormOutcome(t *testing.T) {
	engine := &fakeEngine{showOutcome: workflow.Outcome{
		Kind:    workflow.OutcomeForm,
		Service: "paging",
		Locals:  services.Locals{"note": "hello"},
	}}
	server := newTestServer(engine)

	req := httptest.NewRequest("GET", "/paging/4567890?extra=1", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body outcomeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "form", body.Kind)
	assert.Equal(t, "paging", body.Service)
	assert.Equal(t, "hello", body.Locals["note"])

	assert.Equal(t, "paging", engine.lastInput.Service)
	assert.Equal(t, "4567890", engine.lastInput.BibID)
	assert.Equal(t, "1", engine.lastInput.Params.Get("extra"))
	assert.Nil(t, engine.lastInput.User)
}

func TestShowHoldingRouteSetsMfhdParam(t *testing.T) {
	engine := &fakeEngine{showOutcome: workflow.Outcome{Kind: workflow.OutcomeForm}}
	server := newTestServer(engine)

	req := httptest.NewRequest("GET", "/campus_paging/4567890/998877", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "998877", engine.lastInput.Params.Get("mfhd_id"))
}

func TestShowBarcodeRouteResolvesByBarcode(t *testing.T) {
	engine := &fakeEngine{showOutcome: workflow.Outcome{Kind: workflow.OutcomeForm}}
	server := newTestServer(engine)

	req := httptest.NewRequest("GET", "/aeon/barcode/RB00412", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "aeon", engine.lastInput.Service)
	assert.Equal(t, "RB00412", engine.lastBarcode)
	assert.Empty(t, engine.lastInput.BibID)
}

func TestShowRedirectOutcome(t *testing.T) {
	engine := &fakeEngine{showOutcome: workflow.Outcome{
		Kind:     workflow.OutcomeRedirect,
		Service:  "borrow_direct",
		Location: "https://reshare.example.com/Search?type=ISN&lookfor=1234-5678",
	}}
	server := newTestServer(engine)

	req := httptest.NewRequest("GET", "/borrow_direct/4567890", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://reshare.example.com/Search?type=ISN&lookfor=1234-5678",
		rr.Header().Get("Location"))
}

func TestShowErrorOutcome(t *testing.T) {
	engine := &fakeEngine{showOutcome: workflow.Outcome{
		Kind:    workflow.OutcomeError,
		Service: "recall",
		Message: "Bib ID 123 is not eligible for service Recall",
	}}
	server := newTestServer(engine)

	req := httptest.NewRequest("GET", "/recall/123", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	var body outcomeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "not eligible")
}

func TestSubmitPassesFormParams(t *testing.T) {
	engine := &fakeEngine{submitOutcome: workflow.Outcome{
		Kind:    workflow.OutcomeConfirm,
		Service: "bearstor",
		Locals:  services.Locals{"staff_email": "bearstor@columbia.edu"},
	}}
	server := newTestServer(engine)

	form := url.Values{"itemBarcodes": []string{"BC100"}, "note": []string{"please hold"}}
	req := httptest.NewRequest("POST", "/bearstor/4567890", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body outcomeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "confirm", body.Kind)

	assert.Equal(t, "BC100", engine.lastInput.Params.Get("itemBarcodes"))
	assert.Equal(t, "please hold", engine.lastInput.Params.Get("note"))
}

func TestSubmitRejectsUnparseableForm(t *testing.T) {
	engine := &fakeEngine{}
	server := newTestServer(engine)

	req := httptest.NewRequest("POST", "/bearstor/4567890", strings.NewReader("%zz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRemoteUserReachesEngine(t *testing.T) {
	engine := &fakeEngine{showOutcome: workflow.Outcome{Kind: workflow.OutcomeForm}}
	server := newTestServer(engine)

	req := httptest.NewRequest("GET", "/paging/4567890", nil)
	req.Header.Set("X-Remote-User", "abc123")
	req.Header.Set("X-Remote-Affils", "CUL; columbia")
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	require.NotNil(t, engine.lastInput.User)
	assert.Equal(t, "abc123", engine.lastInput.User.Username)
	assert.Equal(t, "abc123@columbia.edu", engine.lastInput.User.Email)
	assert.Equal(t, []string{"CUL", "columbia"}, engine.lastInput.User.Affils)
}

func TestHealthz(t *testing.T) {
	server := newTestServer(&fakeEngine{})

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestReadyzWithoutDatabase(t *testing.T) {
	server := newTestServer(&fakeEngine{})

	req := httptest.NewRequest("GET", "/readyz", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(&fakeEngine{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}
