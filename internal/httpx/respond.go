package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-pharmacy-store/internal/bulkimport"
	"github.com/ariefcatur/go-pharmacy-store/internal/cart"
	"github.com/ariefcatur/go-pharmacy-store/internal/catalog"
	"github.com/ariefcatur/go-pharmacy-store/internal/compare"
	"github.com/ariefcatur/go-pharmacy-store/internal/identity"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/ariefcatur/go-pharmacy-store/internal/reviews"
	"github.com/ariefcatur/go-pharmacy-store/internal/wishlist"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxJSONBody = 1 << 20

var errBadRequest = errors.New("bad request")

type errorBody struct {
	Error     string            `json:"error"`
	Message   string            `json:"message"`
	Shortages []orders.Shortage `json:"shortages,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// codes maps sentinel errors to a status and a stable machine code. Order
// matters: the first errors.Is match wins.
var codes = []struct {
	err    error
	status int
	code   string
}{
	{identity.ErrAuthRequired, http.StatusUnauthorized, "auth_required"},
	{identity.ErrForbidden, http.StatusForbidden, "forbidden"},
	{errBadRequest, http.StatusBadRequest, "bad_request"},

	{catalog.ErrNotFound, http.StatusNotFound, "product_not_found"},
	{catalog.ErrDuplicate, http.StatusConflict, "product_duplicate"},
	{catalog.ErrInvalidProduct, http.StatusUnprocessableEntity, "invalid_product"},
	{catalog.ErrNegativeStock, http.StatusConflict, "negative_stock"},

	{prescription.ErrRequired, http.StatusUnprocessableEntity, "prescription_required"},
	{prescription.ErrRejected, http.StatusUnprocessableEntity, "prescription_rejected"},
	{prescription.ErrNotVerified, http.StatusUnprocessableEntity, "prescription_not_verified"},
	{prescription.ErrNotFound, http.StatusNotFound, "prescription_not_found"},
	{prescription.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{prescription.ErrFileTooLarge, http.StatusRequestEntityTooLarge, "file_too_large"},
	{prescription.ErrUnsupportedFile, http.StatusUnsupportedMediaType, "unsupported_file"},
	{prescription.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_prescription"},

	{cart.ErrInvalidQuantity, http.StatusUnprocessableEntity, "invalid_quantity"},
	{cart.ErrProductUnavailable, http.StatusUnprocessableEntity, "product_unavailable"},
	{cart.ErrLineNotFound, http.StatusNotFound, "cart_line_not_found"},

	{orders.ErrNotFound, http.StatusNotFound, "order_not_found"},
	{orders.ErrEmptyCart, http.StatusUnprocessableEntity, "empty_cart"},
	{orders.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{orders.ErrInvalidPaymentMethod, http.StatusUnprocessableEntity, "invalid_payment_method"},
	{orders.ErrInvalidAddress, http.StatusUnprocessableEntity, "invalid_address"},
	{orders.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{orders.ErrOnHold, http.StatusConflict, "order_on_hold"},
	{orders.ErrPaymentSettled, http.StatusConflict, "payment_settled"},
	{orders.ErrIdempotencyConflict, http.StatusConflict, "idempotency_conflict"},
	{orders.ErrProductUnavailable, http.StatusConflict, "product_unavailable"},

	{bulkimport.ErrMissingColumn, http.StatusUnprocessableEntity, "missing_column"},
	{bulkimport.ErrNoRows, http.StatusUnprocessableEntity, "no_rows"},
	{bulkimport.ErrTooManyRows, http.StatusUnprocessableEntity, "too_many_rows"},

	{wishlist.ErrNotFound, http.StatusNotFound, "wishlist_not_found"},
	{wishlist.ErrAlreadyListed, http.StatusConflict, "already_listed"},
	{wishlist.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{wishlist.ErrInvalidName, http.StatusUnprocessableEntity, "invalid_name"},

	{compare.ErrAlreadyCompared, http.StatusConflict, "already_compared"},
	{compare.ErrCompareFull, http.StatusConflict, "compare_full"},

	{reviews.ErrAlreadyReviewed, http.StatusConflict, "already_reviewed"},
	{reviews.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{reviews.ErrInvalidReview, http.StatusUnprocessableEntity, "invalid_review"},
}

// writeError renders err as {"error": code, "message": text}. Unknown errors
// are logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Message: err.Error()}
	status := http.StatusInternalServerError
	for _, c := range codes {
		if errors.Is(err, c.err) {
			status, body.Error = c.status, c.code
			break
		}
	}
	var short *orders.InsufficientStockError
	if errors.As(err, &short) {
		body.Shortages = short.Shortages
	}
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("req_id", middleware.GetReqID(r.Context())).Str("path", r.URL.Path).Msg("http: internal error")
		body = errorBody{Error: "internal", Message: "internal server error"}
	}
	writeJSON(w, status, body)
}

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON rejects bodies over 1 MiB and unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid json: %v", err)
	}
	return nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, badRequest("%s must be a uuid", name)
	}
	return id, nil
}

func intQuery(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// requireUser answers 401 and returns false for anonymous requests.
func requireUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	u := identity.FromContext(r.Context())
	if !u.Authenticated() {
		writeError(w, r, identity.ErrAuthRequired)
		return u, false
	}
	return u, true
}

// requireAdmin is the guard for catalog writes.
func requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	u, ok := requireUser(w, r)
	if !ok {
		return false
	}
	if !u.IsAdmin() {
		writeError(w, r, identity.ErrForbidden)
		return false
	}
	return true
}
