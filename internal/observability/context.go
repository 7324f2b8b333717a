package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	serviceKey   contextKey = "service"
	bibIDKey     contextKey = "bib_id"
	patronKey    contextKey = "patron"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithService adds the service key to the context.
func WithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, serviceKey, service)
}

// ServiceFromContext retrieves the service key from context.
// Returns empty string if not present.
func ServiceFromContext(ctx context.Context) string {
	if v := ctx.Value(serviceKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// WithBibID adds a bibliographic record identifier to the context.
func WithBibID(ctx context.Context, bibID string) context.Context {
	return context.WithValue(ctx, bibIDKey, bibID)
}

// BibIDFromContext retrieves the bibliographic record identifier from context.
// Returns empty string if not present.
func BibIDFromContext(ctx context.Context) string {
	if v := ctx.Value(bibIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithPatron adds the patron login to the context.
func WithPatron(ctx context.Context, login string) context.Context {
	return context.WithValue(ctx, patronKey, login)
}

// PatronFromContext retrieves the patron login from context.
// Returns empty string if not present.
func PatronFromContext(ctx context.Context) string {
	if v := ctx.Value(patronKey); v != nil {
		if login, ok := v.(string); ok {
			return login
		}
	}
	return ""
}

// RequestContext contains all the context data for a request flow.
type RequestContext struct {
	RequestID string
	Service   string
	BibID     string
	Patron    string
}

// WithRequestContextFull adds all request context to the context.
func WithRequestContextFull(ctx context.Context, rc RequestContext) context.Context {
	if rc.RequestID != "" {
		ctx = WithRequestID(ctx, rc.RequestID)
	}
	if rc.Service != "" {
		ctx = WithService(ctx, rc.Service)
	}
	if rc.BibID != "" {
		ctx = WithBibID(ctx, rc.BibID)
	}
	if rc.Patron != "" {
		ctx = WithPatron(ctx, rc.Patron)
	}
	return ctx
}

// RequestContextFromContext extracts all request context from the context.
func RequestContextFromContext(ctx context.Context) RequestContext {
	return RequestContext{
		RequestID: RequestIDFromContext(ctx),
		Service:   ServiceFromContext(ctx),
		BibID:     BibIDFromContext(ctx),
		Patron:    PatronFromContext(ctx),
	}
}
