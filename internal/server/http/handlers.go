package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/culsys/valet-service/internal/workflow"
)

// maxFormSize caps posted form bodies.
const maxFormSize = 1 << 20

// showHandler handles GET /{service}/{id} and GET /{service}/{id}/{mfhdID}:
// the patron asks for a request form or gets bounced to an external system.
func (s *Server) showHandler(w http.ResponseWriter, r *http.Request) {
	in := s.inputFromRequest(r)

	out := s.engine.Show(r.Context(), in)
	s.writeOutcome(w, r, out)
}

// showBarcodeHandler handles GET /{service}/barcode/{barcode}: the
// bound-with entry point, where the caller knows an item barcode but not
// the bib id.
func (s *Server) showBarcodeHandler(w http.ResponseWriter, r *http.Request) {
	in := s.inputFromRequest(r)

	out := s.engine.ShowBarcode(r.Context(), in, chi.URLParam(r, "barcode"))
	s.writeOutcome(w, r, out)
}

// submitHandler handles POST /{service}/{id}: the posted request form.
func (s *Server) submitHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "cannot parse form")
		return
	}

	in := s.inputFromRequest(r)
	in.Params = r.Form

	out := s.engine.Submit(r.Context(), in)
	s.writeOutcome(w, r, out)
}

// inputFromRequest assembles the engine input from route params, query
// parameters, and the authenticated patron.
func (s *Server) inputFromRequest(r *http.Request) workflow.Input {
	params := r.URL.Query()
	if mfhdID := chi.URLParam(r, "mfhdID"); mfhdID != "" {
		params.Set("mfhd_id", mfhdID)
	}

	return workflow.Input{
		Service:   chi.URLParam(r, "service"),
		BibID:     chi.URLParam(r, "id"),
		User:      UserFromContext(r.Context()),
		Params:    params,
		ClientIP:  r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
}

// writeOutcome translates an engine outcome to the wire: forms and
// confirmations are JSON, bounces are redirects, failures are the
// patron-facing error body.
func (s *Server) writeOutcome(w http.ResponseWriter, r *http.Request, out workflow.Outcome) {
	switch out.Kind {
	case workflow.OutcomeForm:
		writeJSON(w, http.StatusOK, outcomeResponse{
			Kind:    string(out.Kind),
			Service: out.Service,
			Locals:  out.Locals,
		})

	case workflow.OutcomeConfirm:
		writeJSON(w, http.StatusOK, outcomeResponse{
			Kind:    string(out.Kind),
			Service: out.Service,
			Locals:  out.Locals,
		})

	case workflow.OutcomeRedirect:
		http.Redirect(w, r, out.Location, http.StatusFound)

	case workflow.OutcomeError:
		writeJSON(w, http.StatusUnprocessableEntity, outcomeResponse{
			Kind:    string(out.Kind),
			Service: out.Service,
			Error:   out.Message,
		})

	default:
		s.logger.Error().Str("kind", string(out.Kind)).Msg("unhandled outcome kind")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
