package handler

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/rl1809/parts-stock/internal/core/domain"
	"github.com/rl1809/parts-stock/internal/core/service"
)

const StockServiceName = "partsstock.v1.StockService"

type SearchPartsRequest struct {
	Query string `json:"query"`
}

type SearchPartsResponse struct {
	Parts []domain.Part `json:"parts"`
}

type NetworkStockRequest struct {
	PartID domain.PartID `json:"part_id"`
}

type RequestTransferRequest struct {
	PartID              domain.PartID     `json:"part_id"`
	OriginLocation      domain.LocationID `json:"origin_location"`
	DestinationLocation domain.LocationID `json:"destination_location"`
	Quantity            int               `json:"quantity"`
	Mode                string            `json:"mode"`
	Requester           string            `json:"requester"`
}

type UpdateTransferStatusRequest struct {
	TransferID string `json:"transfer_id"`
	Status     string `json:"status"`
	Actor      string `json:"actor"`
}

type PollRequest struct {
	LocationID  domain.LocationID `json:"location_id"`
	LastVersion string            `json:"last_version"`
}

type TransfersResponse struct {
	Changed  bool                             `json:"changed"`
	Snapshot domain.Snapshot[domain.Transfer] `json:"snapshot"`
}

type AdjustStockRequest struct {
	PartID      domain.PartID     `json:"part_id"`
	LocationID  domain.LocationID `json:"location_id"`
	ActorName   string            `json:"actor_name"`
	OldQuantity *int              `json:"old_quantity"`
	NewQuantity int               `json:"new_quantity"`
	Reason      string            `json:"reason"`
}

type AdjustStockResponse struct {
	Entry       domain.AdjustmentLogEntry `json:"entry"`
	CountStatus string                    `json:"count_status"`
	Warning     string                    `json:"warning,omitempty"`
}

type ListAdjustmentsRequest struct {
	LocationID domain.LocationID `json:"location_id"`
	From       string            `json:"from"`
	To         string            `json:"to"`
}

type ListAdjustmentsResponse struct {
	Entries []domain.AdjustmentLogEntry `json:"entries"`
}

type CreatePendingSaleRequest struct {
	LocationID      domain.LocationID `json:"location_id"`
	Seller          string            `json:"seller_name"`
	ClientName      string            `json:"client_name"`
	DiscountPercent decimal.Decimal   `json:"discount_percent"`
	Items           []domain.SaleLine `json:"items"`
	Subtotal        *decimal.Decimal  `json:"subtotal"`
	Total           *decimal.Decimal  `json:"total"`
}

type PendingSalesResponse struct {
	Changed  bool                                `json:"changed"`
	Snapshot domain.Snapshot[domain.PendingSale] `json:"snapshot"`
}

type FinalizeSaleRequest struct {
	SaleID        string `json:"sale_id"`
	PaymentMethod string `json:"payment_method"`
}

// StockServiceServer is the RPC surface served over the JSON codec.
type StockServiceServer interface {
	SearchParts(context.Context, *SearchPartsRequest) (*SearchPartsResponse, error)
	GetNetworkStock(context.Context, *NetworkStockRequest) (*domain.NetworkStock, error)
	RequestTransfer(context.Context, *RequestTransferRequest) (*domain.Transfer, error)
	UpdateTransferStatus(context.Context, *UpdateTransferStatusRequest) (*domain.Transfer, error)
	ListTransfers(context.Context, *PollRequest) (*TransfersResponse, error)
	AdjustStock(context.Context, *AdjustStockRequest) (*AdjustStockResponse, error)
	ListAdjustments(context.Context, *ListAdjustmentsRequest) (*ListAdjustmentsResponse, error)
	CreatePendingSale(context.Context, *CreatePendingSaleRequest) (*domain.PendingSale, error)
	ListPendingSales(context.Context, *PollRequest) (*PendingSalesResponse, error)
	FinalizeSale(context.Context, *FinalizeSaleRequest) (*domain.PendingSale, error)
}

type GRPCHandler struct {
	svc    Services
	logger *zap.Logger
}

func NewGRPCHandler(svc Services, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{svc: svc, logger: logger}
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&StockServiceDesc, srv)
}

func (h *GRPCHandler) SearchParts(ctx context.Context, req *SearchPartsRequest) (*SearchPartsResponse, error) {
	parts, err := h.svc.Catalog.Search(ctx, req.Query)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &SearchPartsResponse{Parts: parts}, nil
}

func (h *GRPCHandler) GetNetworkStock(ctx context.Context, req *NetworkStockRequest) (*domain.NetworkStock, error) {
	report, err := h.svc.Ledger.NetworkStock(ctx, req.PartID)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &report, nil
}

func (h *GRPCHandler) RequestTransfer(ctx context.Context, req *RequestTransferRequest) (*domain.Transfer, error) {
	mode, err := domain.ParseTransferMode(req.Mode)
	if err != nil {
		return nil, h.toStatus(err)
	}
	sess, err := sessionFromMetadata(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if req.Requester != "" {
		sess.Actor = req.Requester
	}
	if !sess.LocationID.Valid() {
		sess.LocationID = req.DestinationLocation
	}

	transfer, err := h.svc.Transfers.RequestTransfer(ctx, sess, service.TransferRequest{
		PartID:         req.PartID,
		Origin:         req.OriginLocation,
		Destination:    req.DestinationLocation,
		Quantity:       req.Quantity,
		Mode:           mode,
		IdempotencyKey: firstMetadata(ctx, "idempotency-key"),
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return transfer, nil
}

func (h *GRPCHandler) UpdateTransferStatus(ctx context.Context, req *UpdateTransferStatusRequest) (*domain.Transfer, error) {
	target, err := domain.ParseTransferStatus(req.Status)
	if err != nil {
		return nil, h.toStatus(err)
	}
	sess, err := sessionFromMetadata(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if req.Actor != "" {
		sess.Actor = req.Actor
	}

	transfer, err := h.svc.Transfers.UpdateStatus(ctx, sess, req.TransferID, target)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return transfer, nil
}

func (h *GRPCHandler) ListTransfers(ctx context.Context, req *PollRequest) (*TransfersResponse, error) {
	snap, changed, err := h.svc.Transfers.PollTransfers(ctx, req.LocationID, req.LastVersion)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if !changed {
		snap.Items = nil
	}
	return &TransfersResponse{Changed: changed, Snapshot: snap}, nil
}

func (h *GRPCHandler) AdjustStock(ctx context.Context, req *AdjustStockRequest) (*AdjustStockResponse, error) {
	sess, err := sessionFromMetadata(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if req.ActorName != "" {
		sess.Actor = req.ActorName
	}
	if req.LocationID.Valid() {
		sess.LocationID = req.LocationID
	}

	entry, err := h.svc.Ledger.Correct(ctx, sess, service.Correction{
		Key:      domain.StockKey{PartID: req.PartID, LocationID: sess.LocationID},
		Expected: req.OldQuantity,
		Counted:  req.NewQuantity,
		Reason:   req.Reason,
	})
	resp := &AdjustStockResponse{Entry: entry, CountStatus: entry.CountStatus()}
	if auditWarning(err) {
		resp.Warning = err.Error()
		return resp, nil
	}
	if err != nil {
		return nil, h.toStatus(err)
	}
	return resp, nil
}

func (h *GRPCHandler) ListAdjustments(ctx context.Context, req *ListAdjustmentsRequest) (*ListAdjustmentsResponse, error) {
	var (
		window domain.DateRange
		err    error
	)
	if window.From, err = parseTimeParam("from", req.From); err != nil {
		return nil, h.toStatus(err)
	}
	if window.To, err = parseUntilParam("to", req.To); err != nil {
		return nil, h.toStatus(err)
	}

	entries, err := h.svc.Audit.ListAdjustments(ctx, req.LocationID, window)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return &ListAdjustmentsResponse{Entries: entries}, nil
}

func (h *GRPCHandler) CreatePendingSale(ctx context.Context, req *CreatePendingSaleRequest) (*domain.PendingSale, error) {
	sess, err := sessionFromMetadata(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if req.LocationID.Valid() {
		sess.LocationID = req.LocationID
	}
	if req.Seller != "" {
		sess.Actor = req.Seller
	}

	sale, err := h.svc.Checkout.CreatePendingSale(ctx, sess, service.SaleRequest{
		ClientName:      req.ClientName,
		DiscountPercent: req.DiscountPercent,
		Items:           req.Items,
		Subtotal:        req.Subtotal,
		Total:           req.Total,
		IdempotencyKey:  firstMetadata(ctx, "idempotency-key"),
	})
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sale, nil
}

func (h *GRPCHandler) ListPendingSales(ctx context.Context, req *PollRequest) (*PendingSalesResponse, error) {
	snap, changed, err := h.svc.Checkout.PollPendingSales(ctx, req.LocationID, req.LastVersion)
	if err != nil {
		return nil, h.toStatus(err)
	}
	if !changed {
		snap.Items = nil
	}
	return &PendingSalesResponse{Changed: changed, Snapshot: snap}, nil
}

func (h *GRPCHandler) FinalizeSale(ctx context.Context, req *FinalizeSaleRequest) (*domain.PendingSale, error) {
	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return nil, h.toStatus(err)
	}
	sess, err := sessionFromMetadata(ctx)
	if err != nil {
		return nil, h.toStatus(err)
	}

	sale, err := h.svc.Checkout.Finalize(ctx, sess, req.SaleID, method)
	if err != nil {
		return nil, h.toStatus(err)
	}
	return sale, nil
}

func (h *GRPCHandler) toStatus(err error) error {
	m := classify(err)
	if m.name == "internal" {
		h.logger.Error("rpc failed", zap.Error(err))
		return status.Error(m.code, "internal error")
	}
	return status.Error(m.code, err.Error())
}

// sessionFromMetadata reads the same identity the HTTP headers carry.
func sessionFromMetadata(ctx context.Context) (domain.Session, error) {
	sess := domain.Session{
		ID:    firstMetadata(ctx, "x-session-id"),
		Actor: firstMetadata(ctx, "x-actor"),
	}
	if raw := firstMetadata(ctx, "x-location-id"); raw != "" {
		loc, err := domain.ParseLocationID(raw)
		if err != nil {
			return sess, err
		}
		sess.LocationID = loc
	}
	return sess, nil
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(key); len(vals) > 0 {
		return strings.TrimSpace(vals[0])
	}
	return ""
}

// unary adapts a typed method to grpc.MethodDesc without generated stubs.
func unary[Req, Resp any](name string, call func(StockServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StockServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + StockServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(StockServiceServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var StockServiceDesc = grpc.ServiceDesc{
	ServiceName: StockServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("SearchParts", StockServiceServer.SearchParts),
		unary("GetNetworkStock", StockServiceServer.GetNetworkStock),
		unary("RequestTransfer", StockServiceServer.RequestTransfer),
		unary("UpdateTransferStatus", StockServiceServer.UpdateTransferStatus),
		unary("ListTransfers", StockServiceServer.ListTransfers),
		unary("AdjustStock", StockServiceServer.AdjustStock),
		unary("ListAdjustments", StockServiceServer.ListAdjustments),
		unary("CreatePendingSale", StockServiceServer.CreatePendingSale),
		unary("ListPendingSales", StockServiceServer.ListPendingSales),
		unary("FinalizeSale", StockServiceServer.FinalizeSale),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "partsstock/v1/stock.json",
}
