package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/culsys/valet-service/internal/observability"
	"github.com/culsys/valet-service/internal/services"
)

type contextKey string

const ctxKeyUser contextKey = "user"

// Headers the fronting single sign-on proxy sets after authenticating
// the patron. Empty X-Remote-User means nobody is logged in.
const (
	headerRemoteUser   = "X-Remote-User"
	headerRemoteEmail  = "X-Remote-Email"
	headerRemoteAffils = "X-Remote-Affils"
	headerRemoteGroups = "X-Remote-Groups"
)

// BarcodeSource looks up the patron's active item barcode in the ILS.
type BarcodeSource interface {
	GetUserBarcode(ctx context.Context, username string) (string, error)
}

// RemoteUserMiddleware builds the patron from the SSO proxy's headers and
// stores it in the request context. barcodes may be nil; lookup failures
// leave the barcode empty rather than failing the request.
func RemoteUserMiddleware(barcodes BarcodeSource, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username := r.Header.Get(headerRemoteUser)
			if username == "" {
				next.ServeHTTP(w, r)
				return
			}

			user := &services.User{
				Username:     username,
				Email:        r.Header.Get(headerRemoteEmail),
				Affils:       splitHeaderList(r.Header.Get(headerRemoteAffils)),
				PatronGroups: splitHeaderList(r.Header.Get(headerRemoteGroups)),
			}
			if user.Email == "" {
				user.Email = username + "@columbia.edu"
			}

			if barcodes != nil {
				barcode, err := barcodes.GetUserBarcode(r.Context(), username)
				if err != nil {
					logger.Warn().Err(err).Str("patron", username).Msg("barcode lookup failed")
				} else {
					user.Barcode = barcode
				}
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			ctx = observability.WithPatron(ctx, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext returns the authenticated patron, nil when nobody is
// logged in.
func UserFromContext(ctx context.Context) *services.User {
	if user, ok := ctx.Value(ctxKeyUser).(*services.User); ok {
		return user
	}
	return nil
}

// requestIDHeaderMiddleware echoes the request ID back to the client and
// stores it for log correlation.
func requestIDHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		if requestID != "" {
			w.Header().Set("X-Request-ID", requestID)
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// splitHeaderList parses a semicolon-separated header value.
func splitHeaderList(value string) []string {
	if value == "" {
		return nil
	}
	var items []string
	for _, item := range strings.Split(value, ";") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}
