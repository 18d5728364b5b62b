package auth

import (
	"net/http"
	"strings"
)

// ErrorWriter renders an authentication failure.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*Middleware)

// WithPublicPaths replaces the paths served without a token.
func WithPublicPaths(paths ...string) MiddlewareOption {
	return func(m *Middleware) {
		m.public = make(map[string]struct{}, len(paths))
		for _, p := range paths {
			m.public[p] = struct{}{}
		}
	}
}

// WithErrorWriter overrides how 401 responses are rendered.
func WithErrorWriter(fn ErrorWriter) MiddlewareOption {
	return func(m *Middleware) {
		if fn != nil {
			m.onError = fn
		}
	}
}

// Middleware attaches the verified Principal to every request that is not public.
type Middleware struct {
	verifier *Verifier
	public   map[string]struct{}
	onError  ErrorWriter
}

// NewMiddleware constructs Middleware. /healthz and /metrics are public unless overridden.
func NewMiddleware(v *Verifier, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		verifier: v,
		public:   map[string]struct{}{"/healthz": {}, "/metrics": {}},
		onError: func(w http.ResponseWriter, _ *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusUnauthorized)
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wrap authenticates requests before handing them to next.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := m.public[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}

		raw, err := bearerToken(r)
		if err != nil {
			m.onError(w, r, err)
			return
		}
		p, err := m.verifier.Verify(raw)
		if err != nil {
			m.onError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), p)))
	})
}

// bearerToken reads the Authorization header. Browsers cannot set headers on a WebSocket
// upgrade, so access_token in the query is accepted when the header is absent.
func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get("access_token"); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrInvalidToken
	}
	return token, nil
}
