package httpx

import (
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-pharmacy-store/internal/bulkimport"
	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/go-chi/chi/v5"
)

const maxCSVBytes = 1 << 20

type BulkImportHandler struct {
	Resolver *bulkimport.Resolver
	Carts    *cart.Service
	Quotes   Quoter
}

type resolveResp struct {
	Rows []bulkimport.Resolution `json:"rows"`
}

type commitReq struct {
	Rows []bulkimport.Row `json:"rows"`
}

type commitResp struct {
	bulkimport.CommitResult
	Cart cartView `json:"cart"`
}

func (h *BulkImportHandler) Register(r chi.Router) {
	r.Post("/bulk-import/resolve", h.resolve)
	r.Post("/bulk-import/commit", h.commit)
}

// resolve accepts the csv as a multipart "file" field or as a text/csv body.
// Nothing is written.
func (h *BulkImportHandler) resolve(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	body, err := csvBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer body.Close()

	rows, err := bulkimport.Parse(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.Resolver.Resolve(r.Context(), rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resolveResp{Rows: res})
}

// commit re-resolves the submitted rows against the live catalog before
// adding them, so a client-side status is never trusted.
func (h *BulkImportHandler) commit(w http.ResponseWriter, r *http.Request) {
	u, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req commitReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	rows := req.Rows[:0]
	for _, row := range req.Rows {
		row.SKU = strings.TrimSpace(row.SKU)
		if row.SKU != "" {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		writeError(w, r, bulkimport.ErrNoRows)
		return
	}
	if len(rows) > bulkimport.MaxRows {
		writeError(w, r, bulkimport.ErrTooManyRows)
		return
	}

	res, err := h.Resolver.Resolve(r.Context(), rows)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sess, err := h.Carts.Session(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := bulkimport.Commit(r.Context(), sess, res)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commitResp{CommitResult: out, Cart: viewCart(sess, h.Quotes)})
}

func csvBody(w http.ResponseWriter, r *http.Request) (io.ReadCloser, error) {
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mt != "multipart/form-data" {
		return http.MaxBytesReader(w, r.Body, maxCSVBytes), nil
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxCSVBytes+64<<10)
	if err := r.ParseMultipartForm(maxCSVBytes); err != nil {
		return nil, badRequest("invalid multipart form: %v", err)
	}
	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, badRequest("file is required")
	}
	return f, nil
}
