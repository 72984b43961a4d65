package httpx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const similarLimit = 4

type CatalogHandler struct {
	Products catalog.Repository
}

func (h *CatalogHandler) Register(r chi.Router) {
	r.Get("/products", h.listProducts)
	r.Get("/products/{id}", h.getProduct)
	r.Get("/products/{id}/similar", h.similar)
	r.Get("/categories", h.categories)

	r.Post("/admin/products", h.createProduct)
	r.Put("/admin/products/{id}", h.updateProduct)
	r.Put("/admin/products/{id}/active", h.setActive)
	r.Post("/admin/products/{id}/stock", h.adjustStock)
}

func (h *CatalogHandler) listProducts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		Search:       q.Get("search"),
		CategorySlug: q.Get("category"),
		Type:         catalog.ProductType(q.Get("type")),
		FeaturedOnly: q.Get("featured") == "true" || q.Get("featured") == "1",
		Sort:         catalog.Sort(q.Get("sort")),
		Limit:        intQuery(r, "limit", 0),
		Offset:       intQuery(r, "offset", 0),
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, r, badRequest("unknown product type %q", f.Type))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Products.List(ctx, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// getProduct accepts either the product id or its slug.
func (h *CatalogHandler) getProduct(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "id")
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var (
		p   *catalog.Product
		err error
	)
	if id, perr := uuid.Parse(ref); perr == nil {
		p, err = h.Products.GetByID(ctx, id)
	} else {
		p, err = h.Products.GetBySlug(ctx, strings.ToLower(ref))
	}
	if err == nil && !p.IsActive {
		err = catalog.ErrNotFound
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) similar(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Products.GetByID(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ps, err := h.Products.Similar(ctx, p, similarLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (h *CatalogHandler) categories(w http.ResponseWriter, r *http.Request) {
	cs, err := h.Products.Categories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (h *CatalogHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = uuid.Nil
	if err := p.Check(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Products.Create(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	log.Info().Stringer("product_id", p.ID).Str("sku", p.SKU).Msg("http: product created")
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) updateProduct(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var p catalog.Product
	if err := decodeJSON(w, r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	p.ID = id
	if err := p.Check(); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Products.Update(r.Context(), &p); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type setActiveReq struct {
	Active bool `json:"active"`
}

func (h *CatalogHandler) setActive(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setActiveReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Products.SetActive(r.Context(), id, req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adjustStockReq struct {
	Delta int `json:"delta"`
}

func (h *CatalogHandler) adjustStock(w http.ResponseWriter, r *http.Request) {
	if !requireAdmin(w, r) {
		return
	}
	id, err := uuidParam(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req adjustStockReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.Products.AdjustStock(r.Context(), id, req.Delta)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
