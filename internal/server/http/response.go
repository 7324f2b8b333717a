package httpserver

import (
	"github.com/culsys/valet-service/internal/services"
)

// outcomeResponse is the JSON body for form, confirmation, and error
// outcomes. Redirect outcomes never reach the body; they answer with a
// Location header.
type outcomeResponse struct {
	Kind    string          `json:"kind"`
	Service string          `json:"service"`
	Locals  services.Locals `json:"locals,omitempty"`
	Error   string          `json:"error,omitempty"`
}
