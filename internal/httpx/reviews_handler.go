package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/reviews"
	"github.com/go-chi/chi/v5"
)

type ReviewsHandler struct {
	Reviews *reviews.Service
}

func (h *ReviewsHandler) Register(r chi.Router) {
	r.Get("/products/{id}/reviews", h.list)
	r.Get("/products/{id}/reviews/summary", h.summary)
	r.Post("/products/{id}/reviews", h.create)
}

func (h *ReviewsHandler) list(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	rs, err := h.Reviews.List(r.Context(), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (h *ReviewsHandler) summary(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	s, err := h.Reviews.Summary(r.Context(), pid)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *ReviewsHandler) create(w http.ResponseWriter, r *http.Request) {
	pid, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in reviews.Input
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	rv, err := h.Reviews.Create(r.Context(), identity.FromContext(r.Context()).ID, pid, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}
