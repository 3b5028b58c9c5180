package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/core/service"
)

// Services bundles what the transports call into.
type Services struct {
	Ledger    *service.LedgerService
	Audit     *service.AuditService
	Transfers *service.TransferService
	Carts     *service.CartService
	Checkout  *service.CheckoutService
	Catalog   *service.CatalogService
}

type HTTPHandler struct {
	svc    Services
	logger *zap.Logger
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type warningResponse struct {
	Result  interface{} `json:"result"`
	Warning string      `json:"warning"`
}

func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/parts", h.SearchParts).Methods(http.MethodGet)
	api.HandleFunc("/parts", h.RegisterPart).Methods(http.MethodPost)
	api.HandleFunc("/locations", h.ListLocations).Methods(http.MethodGet)
	api.HandleFunc("/locations/{location_id}", h.RegisterLocation).Methods(http.MethodPut)
	api.HandleFunc("/parts/{part_id}", h.GetPart).Methods(http.MethodGet)
	api.HandleFunc("/parts/{part_id}/stock", h.NetworkStock).Methods(http.MethodGet)

	api.HandleFunc("/stock/{part_id}/{location_id}", h.GetQuantity).Methods(http.MethodGet)
	api.HandleFunc("/stock/adjust", h.AdjustStock).Methods(http.MethodPost)
	api.HandleFunc("/stock/delta", h.ApplyDelta).Methods(http.MethodPost)
	api.HandleFunc("/stock/move", h.MoveStock).Methods(http.MethodPost)
	api.HandleFunc("/adjustments", h.ListAdjustments).Methods(http.MethodGet)

	api.HandleFunc("/logistics/transfer", h.RequestTransfer).Methods(http.MethodPost)
	api.HandleFunc("/logistics/transfers", h.ListTransfers).Methods(http.MethodGet)
	api.HandleFunc("/logistics/transfers/{transfer_id}", h.GetTransfer).Methods(http.MethodGet)
	api.HandleFunc("/logistics/transfers/{transfer_id}/status", h.UpdateTransferStatus).Methods(http.MethodPatch, http.MethodPost)
	api.HandleFunc("/logistics/transfers/{transfer_id}/{action}", h.TransferAction).Methods(http.MethodPost)

	api.HandleFunc("/cart", h.GetCart).Methods(http.MethodGet)
	api.HandleFunc("/cart", h.ClearCart).Methods(http.MethodDelete)
	api.HandleFunc("/cart/items", h.AddCartItem).Methods(http.MethodPost)
	api.HandleFunc("/cart/items/{part_id}", h.SetCartQuantity).Methods(http.MethodPut)
	api.HandleFunc("/cart/items/{part_id}", h.RemoveCartItem).Methods(http.MethodDelete)
	api.HandleFunc("/cart/checkout", h.SendToCashier).Methods(http.MethodPost)

	api.HandleFunc("/sales/pending", h.CreatePendingSale).Methods(http.MethodPost)
	api.HandleFunc("/sales/pending", h.ListPendingSales).Methods(http.MethodGet)
	api.HandleFunc("/sales/{sale_id}", h.GetSale).Methods(http.MethodGet)
	api.HandleFunc("/sales/{sale_id}/finalize", h.FinalizeSale).Methods(http.MethodPost)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Catalog

func (h *HTTPHandler) SearchParts(w http.ResponseWriter, r *http.Request) {
	parts, err := h.svc.Catalog.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, parts)
}

type registerPartRequest struct {
	ID    domain.PartID   `json:"id"`
	Name  string          `json:"name"`
	Code  string          `json:"code"`
	Brand string          `json:"brand"`
	Price decimal.Decimal `json:"price"`
	Image string          `json:"image"`
}

func (h *HTTPHandler) RegisterPart(w http.ResponseWriter, r *http.Request) {
	var req registerPartRequest
	if !h.decode(w, r, &req) {
		return
	}
	part, err := h.svc.Catalog.RegisterPart(r.Context(), domain.Part{
		ID:    req.ID,
		Name:  req.Name,
		Code:  req.Code,
		Brand: req.Brand,
		Price: req.Price,
		Image: req.Image,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, part)
}

func (h *HTTPHandler) ListLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := h.svc.Catalog.Locations(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, locations)
}

func (h *HTTPHandler) RegisterLocation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	loc, err := domain.ParseLocationID(mux.Vars(r)["location_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	location := domain.Location{ID: loc, Name: req.Name}
	if err := h.svc.Catalog.RegisterLocation(r.Context(), location); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, location)
}

func (h *HTTPHandler) GetPart(w http.ResponseWriter, r *http.Request) {
	part, err := h.svc.Catalog.GetPart(r.Context(), domain.PartID(mux.Vars(r)["part_id"]))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, part)
}

func (h *HTTPHandler) NetworkStock(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Ledger.NetworkStock(r.Context(), domain.PartID(mux.Vars(r)["part_id"]))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Ledger

func (h *HTTPHandler) GetQuantity(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	loc, err := domain.ParseLocationID(vars["location_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	key := domain.StockKey{PartID: domain.PartID(vars["part_id"]), LocationID: loc}

	qty, err := h.svc.Ledger.GetQuantity(r.Context(), key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"part_id":     key.PartID,
		"location_id": key.LocationID,
		"quantity":    qty,
	})
}

type adjustStockRequest struct {
	PartID      domain.PartID     `json:"part_id"`
	LocationID  domain.LocationID `json:"location_id"`
	ActorName   string            `json:"actor_name"`
	OldQuantity *int              `json:"old_quantity"`
	NewQuantity *int              `json:"new_quantity"`
	Reason      string            `json:"reason"`
}

type adjustmentResponse struct {
	domain.AdjustmentLogEntry
	Difference  int    `json:"difference"`
	CountStatus string `json:"count_status"`
}

func newAdjustmentResponse(e domain.AdjustmentLogEntry) adjustmentResponse {
	return adjustmentResponse{AdjustmentLogEntry: e, Difference: e.Difference(), CountStatus: e.CountStatus()}
}

// AdjustStock records a physical count. old_quantity is what the operator
// saw; a moved ledger answers 409 and the count must be redone.
func (h *HTTPHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.NewQuantity == nil {
		h.writeError(w, domain.NewValidationError("new_quantity", "is required"))
		return
	}

	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.ActorName != "" {
		sess.Actor = req.ActorName
	}
	if req.LocationID.Valid() {
		sess.LocationID = req.LocationID
	}

	entry, err := h.svc.Ledger.Correct(r.Context(), sess, service.Correction{
		Key:      domain.StockKey{PartID: req.PartID, LocationID: sess.LocationID},
		Expected: req.OldQuantity,
		Counted:  *req.NewQuantity,
		Reason:   req.Reason,
	})
	if auditWarning(err) {
		writeJSON(w, http.StatusMultiStatus, warningResponse{Result: newAdjustmentResponse(entry), Warning: err.Error()})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAdjustmentResponse(entry))
}

type applyDeltaRequest struct {
	PartID     domain.PartID     `json:"part_id"`
	LocationID domain.LocationID `json:"location_id"`
	Delta      int               `json:"delta"`
	Reason     string            `json:"reason"`
}

func (h *HTTPHandler) ApplyDelta(w http.ResponseWriter, r *http.Request) {
	var req applyDeltaRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.LocationID.Valid() {
		sess.LocationID = req.LocationID
	}
	key := domain.StockKey{PartID: req.PartID, LocationID: sess.LocationID}

	qty, err := h.svc.Ledger.ManualAdjust(r.Context(), sess, key, req.Delta, req.Reason)
	result := map[string]interface{}{"part_id": key.PartID, "location_id": key.LocationID, "quantity": qty}
	if auditWarning(err) {
		writeJSON(w, http.StatusMultiStatus, warningResponse{Result: result, Warning: err.Error()})
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type moveStockRequest struct {
	PartID domain.PartID     `json:"part_id"`
	From   domain.LocationID `json:"from_location"`
	To     domain.LocationID `json:"to_location"`
	Amount int               `json:"amount"`
}

func (h *HTTPHandler) MoveStock(w http.ResponseWriter, r *http.Request) {
	var req moveStockRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.svc.Ledger.MoveQuantity(r.Context(), sess, req.PartID, req.From, req.To, req.Amount); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *HTTPHandler) ListAdjustments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc, err := h.queryLocation(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var window domain.DateRange
	if window.From, err = parseTimeParam("from", q.Get("from")); err != nil {
		h.writeError(w, err)
		return
	}
	if window.To, err = parseUntilParam("to", q.Get("to")); err != nil {
		h.writeError(w, err)
		return
	}

	entries, err := h.svc.Audit.ListAdjustments(r.Context(), loc, window)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]adjustmentResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, newAdjustmentResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

// Transfers

type transferRequest struct {
	PartID              domain.PartID     `json:"part_id"`
	OriginLocation      domain.LocationID `json:"origin_location"`
	DestinationLocation domain.LocationID `json:"destination_location"`
	Quantity            int               `json:"quantity"`
	Mode                string            `json:"mode"`
	Requester           string            `json:"requester"`
}

func (h *HTTPHandler) RequestTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	mode, err := domain.ParseTransferMode(req.Mode)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Requester != "" {
		sess.Actor = req.Requester
	}
	if !sess.LocationID.Valid() {
		sess.LocationID = req.DestinationLocation
	}

	transfer, err := h.svc.Transfers.RequestTransfer(r.Context(), sess, service.TransferRequest{
		PartID:         req.PartID,
		Origin:         req.OriginLocation,
		Destination:    req.DestinationLocation,
		Quantity:       req.Quantity,
		Mode:           mode,
		IdempotencyKey: r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, transfer)
}

// ListTransfers answers 304 when the caller's version is still current.
func (h *HTTPHandler) ListTransfers(w http.ResponseWriter, r *http.Request) {
	loc, err := h.queryLocation(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, changed, err := h.svc.Transfers.PollTransfers(r.Context(), loc, lastSeenVersion(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSnapshot(w, snap.Version, changed, snap)
}

func (h *HTTPHandler) GetTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := h.svc.Transfers.Get(r.Context(), mux.Vars(r)["transfer_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

type transferStatusRequest struct {
	Status string `json:"status"`
	Actor  string `json:"actor"`
}

func (h *HTTPHandler) UpdateTransferStatus(w http.ResponseWriter, r *http.Request) {
	var req transferStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	status, err := domain.ParseTransferStatus(req.Status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.Actor != "" {
		sess.Actor = req.Actor
	}

	transfer, err := h.svc.Transfers.UpdateStatus(r.Context(), sess, mux.Vars(r)["transfer_id"], status)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

func (h *HTTPHandler) TransferAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var transfer *domain.Transfer
	id := vars["transfer_id"]
	switch domain.TransferAction(vars["action"]) {
	case domain.ActionApprove:
		transfer, err = h.svc.Transfers.Approve(r.Context(), sess, id)
	case domain.ActionReject:
		transfer, err = h.svc.Transfers.Reject(r.Context(), sess, id)
	case domain.ActionShip:
		transfer, err = h.svc.Transfers.Ship(r.Context(), sess, id)
	case domain.ActionConfirmReceipt:
		transfer, err = h.svc.Transfers.ConfirmReceipt(r.Context(), sess, id)
	default:
		err = domain.NewValidationError("action", "unknown transfer action "+vars["action"])
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transfer)
}

// Cart

type cartItemRequest struct {
	PartID   domain.PartID `json:"part_id"`
	Quantity int           `json:"quantity"`
}

type sendToCashierRequest struct {
	ClientName      string          `json:"client_name"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
}

func (h *HTTPHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess domain.Session) (interface{}, error) {
		return h.svc.Carts.Get(r.Context(), sess)
	})
}

func (h *HTTPHandler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(sess domain.Session) (interface{}, error) {
		return h.svc.Carts.AddItem(r.Context(), sess, req.PartID)
	})
}

func (h *HTTPHandler) SetCartQuantity(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.withSession(w, r, func(sess domain.Session) (interface{}, error) {
		return h.svc.Carts.SetQuantity(r.Context(), sess, domain.PartID(mux.Vars(r)["part_id"]), req.Quantity)
	})
}

func (h *HTTPHandler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess domain.Session) (interface{}, error) {
		return h.svc.Carts.RemoveItem(r.Context(), sess, domain.PartID(mux.Vars(r)["part_id"]))
	})
}

func (h *HTTPHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(sess domain.Session) (interface{}, error) {
		return map[string]bool{"success": true}, h.svc.Carts.Clear(r.Context(), sess)
	})
}

func (h *HTTPHandler) SendToCashier(w http.ResponseWriter, r *http.Request) {
	var req sendToCashierRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sale, err := h.svc.Carts.SendToCashier(r.Context(), sess, req.ClientName, req.DiscountPercent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

// Sales

type pendingSaleRequest struct {
	LocationID      domain.LocationID `json:"location_id"`
	Seller          string            `json:"seller_name"`
	ClientName      string            `json:"client_name"`
	DiscountPercent decimal.Decimal   `json:"discount_percent"`
	Items           []domain.SaleLine `json:"items"`
	Subtotal        *decimal.Decimal  `json:"subtotal"`
	Total           *decimal.Decimal  `json:"total"`
}

type finalizeRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *HTTPHandler) CreatePendingSale(w http.ResponseWriter, r *http.Request) {
	var req pendingSaleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if req.LocationID.Valid() {
		sess.LocationID = req.LocationID
	}
	if req.Seller != "" {
		sess.Actor = req.Seller
	}

	sale, err := h.svc.Checkout.CreatePendingSale(r.Context(), sess, service.SaleRequest{
		ClientName:      req.ClientName,
		DiscountPercent: req.DiscountPercent,
		Items:           req.Items,
		Subtotal:        req.Subtotal,
		Total:           req.Total,
		IdempotencyKey:  r.Header.Get(headerIdempotencyKey),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sale)
}

func (h *HTTPHandler) ListPendingSales(w http.ResponseWriter, r *http.Request) {
	loc, err := h.queryLocation(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	snap, changed, err := h.svc.Checkout.PollPendingSales(r.Context(), loc, lastSeenVersion(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSnapshot(w, snap.Version, changed, snap)
}

func (h *HTTPHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.svc.Checkout.Get(r.Context(), mux.Vars(r)["sale_id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

func (h *HTTPHandler) FinalizeSale(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	sale, err := h.svc.Checkout.Finalize(r.Context(), sess, mux.Vars(r)["sale_id"], method)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// helpers

func (h *HTTPHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(domain.Session) (interface{}, error)) {
	sess, err := sessionFrom(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := fn(sess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// queryLocation prefers ?location_id= and falls back to the session header.
func (h *HTTPHandler) queryLocation(r *http.Request) (domain.LocationID, error) {
	raw := r.URL.Query().Get("location_id")
	if raw == "" {
		raw = r.Header.Get(headerLocation)
	}
	return domain.ParseLocationID(raw)
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var verr *domain.ValidationError
		if errors.As(err, &verr) {
			h.writeError(w, verr)
			return false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "validation_error", Message: "invalid request body"})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	m := classify(err)
	message := err.Error()
	if m.status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	writeJSON(w, m.status, errorResponse{Error: m.name, Message: message})
}

func lastSeenVersion(r *http.Request) string {
	if v := r.URL.Query().Get("version"); v != "" {
		return v
	}
	return strings.Trim(r.Header.Get("If-None-Match"), `"`)
}

func writeSnapshot(w http.ResponseWriter, version string, changed bool, body interface{}) {
	w.Header().Set("ETag", `"`+version+`"`)
	if !changed {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

const dateLayout = "2006-01-02"

func parseTimeParam(field, raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return t, nil
	}
	return time.Time{}, domain.NewValidationError(field, "must be RFC3339 or YYYY-MM-DD")
}

// parseUntilParam reads an exclusive upper bound. A bare date means the
// whole day, so the bound moves to the next midnight.
func parseUntilParam(field, raw string) (time.Time, error) {
	t, err := parseTimeParam(field, raw)
	if err != nil || t.IsZero() {
		return t, err
	}
	if _, dateErr := time.Parse(dateLayout, raw); dateErr == nil {
		return t.AddDate(0, 0, 1), nil
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
