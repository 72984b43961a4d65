package httpx

import (
	"errors"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

type PrescriptionsHandler struct {
	Prescriptions *prescription.Service
	MaxBytes      int64
}

type reviewReq struct {
	Status prescription.Status `json:"status"`
	Notes  string              `json:"notes"`
}

func (h *PrescriptionsHandler) Register(r chi.Router) {
	r.Post("/prescriptions", h.upload)
	r.Get("/prescriptions", h.listMine)
	r.Get("/prescriptions/{id}", h.get)
	r.Get("/prescriptions/{id}/file", h.file)

	r.Get("/admin/prescriptions", h.listForReview)
	r.Put("/admin/prescriptions/{id}/review", h.review)
}

// upload takes multipart fields file, doctor_name, doctor_phone and
// prescription_date (YYYY-MM-DD).
func (h *PrescriptionsHandler) upload(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	// slack for the other form fields
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes+64<<10)
	if err := r.ParseMultipartForm(h.MaxBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, r, prescription.ErrFileTooLarge)
			return
		}
		writeError(w, r, badRequest("invalid multipart form: %v", err))
		return
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, badRequest("file is required"))
		return
	}
	defer f.Close()
	content, err := io.ReadAll(io.LimitReader(f, h.MaxBytes+1))
	if err != nil {
		writeError(w, r, badRequest("read file: %v", err))
		return
	}

	var date time.Time
	if v := r.FormValue("prescription_date"); v != "" {
		if date, err = time.Parse(dateLayout, v); err != nil {
			writeError(w, r, badRequest("prescription_date must be YYYY-MM-DD"))
			return
		}
	}

	p, err := h.Prescriptions.Upload(r.Context(), u.ID, prescription.UploadInput{
		DoctorName:       r.FormValue("doctor_name"),
		DoctorPhone:      r.FormValue("doctor_phone"),
		PrescriptionDate: date,
		Content:          content,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *PrescriptionsHandler) listMine(w http.ResponseWriter, r *http.Request) {
	ps, err := h.Prescriptions.ListMine(r.Context(), identity.FromContext(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *PrescriptionsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Prescriptions.Get(r.Context(), identity.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PrescriptionsHandler) file(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, p, err := h.Prescriptions.OpenFile(r.Context(), identity.FromContext(r.Context()), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()
	w.Header().Set("Cache-Control", "private, no-store")
	http.ServeContent(w, r, path.Base(p.FileURL), p.UpdatedAt, f)
}

func (h *PrescriptionsHandler) listForReview(w http.ResponseWriter, r *http.Request) {
	status := prescription.Status(r.URL.Query().Get("status"))
	ps, err := h.Prescriptions.ListForReview(r.Context(), identity.FromContext(r.Context()), status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *PrescriptionsHandler) review(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req reviewReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Prescriptions.Review(r.Context(), identity.FromContext(r.Context()), id, req.Status, req.Notes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
