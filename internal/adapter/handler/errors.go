package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/stock-guard/internal/core/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    codes.Code
	message string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{domain.ErrInvalidAmount, http.StatusBadRequest, codes.InvalidArgument, "invalid amount"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, codes.InvalidArgument, "invalid quantity"},
	{domain.ErrNotFound, http.StatusNotFound, codes.NotFound, "stock not found"},
	{domain.ErrDuplicateRequest, http.StatusConflict, codes.AlreadyExists, "duplicate request"},
	{domain.ErrInsufficientStock, http.StatusGone, codes.FailedPrecondition, "sold out"},
	{domain.ErrRetryExhausted, http.StatusServiceUnavailable, codes.Aborted, "too much contention, retry later"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, codes.DeadlineExceeded, "deadline exceeded"},
	{context.Canceled, http.StatusServiceUnavailable, codes.Canceled, "request canceled"},
}

func mapError(err error) errorMapping {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m
		}
	}
	return errorMapping{err, http.StatusInternalServerError, codes.Internal, "internal error"}
}
