package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Headers set by the identity provider in front of the api.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(Identity)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

// Identity puts the caller from the identity headers into the request
// context. A missing or malformed user id leaves the request anonymous.
func Identity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, err := uuid.Parse(r.Header.Get(HeaderUserID)); err == nil && id != uuid.Nil {
			u := identity.User{ID: id, Role: identity.ParseRole(r.Header.Get(HeaderUserRole))}
			r = r.WithContext(identity.WithUser(r.Context(), u))
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			log.Info().
				Str("req_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", time.Since(start)).
				Msg("http request")
		}()
		next.ServeHTTP(ww, r)
	})
}
