package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

type errorMapping struct {
	target error
	status int
	code   codes.Code
	name   string
}

// Order matters: ErrStockConflict wraps ErrInsufficientStock.
var errorMappings = []errorMapping{
	{domain.ErrStockConflict, http.StatusConflict, codes.Aborted, "stock_conflict"},
	{domain.ErrInsufficientStock, http.StatusConflict, codes.FailedPrecondition, "insufficient_stock"},
	{domain.ErrInvalidTransition, http.StatusConflict, codes.FailedPrecondition, "invalid_transition"},
	{domain.ErrVersionConflict, http.StatusConflict, codes.Aborted, "version_conflict"},
	{domain.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists, "duplicate_request"},
	{domain.ErrEmptyCart, http.StatusUnprocessableEntity, codes.FailedPrecondition, "empty_cart"},
	{domain.ErrLimitReached, http.StatusUnprocessableEntity, codes.FailedPrecondition, "limit_reached"},
	{domain.ErrOutOfStock, http.StatusUnprocessableEntity, codes.FailedPrecondition, "out_of_stock"},
	{domain.ErrValidation, http.StatusBadRequest, codes.InvalidArgument, "validation_error"},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "not_found"},
}

func classify(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{status: http.StatusInternalServerError, code: codes.Internal, name: "internal"}
}

// auditWarning reports a committed mutation whose audit entry was lost.
func auditWarning(err error) bool {
	return err != nil && errors.Is(err, domain.ErrAuditLogWriteFailed)
}
