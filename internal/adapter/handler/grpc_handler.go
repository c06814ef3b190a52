package handler

import (
	"context"
	"math"

	"github.com/go-logr/logr"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/stock-guard/internal/core/service"
)

type GRPCHandler struct {
	stockService *service.StockService
	log          logr.Logger
}

func NewGRPCHandler(stockService *service.StockService, log logr.Logger) *GRPCHandler {
	return &GRPCHandler{stockService: stockService, log: log}
}

var _ StockServiceServer = (*GRPCHandler)(nil)

func (h *GRPCHandler) Initialize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := stringField(req, "key", true)
	if err != nil {
		return nil, err
	}
	quantity, err := intField(req, "quantity")
	if err != nil {
		return nil, err
	}

	if err := h.stockService.Initialize(ctx, key, quantity); err != nil {
		return nil, h.statusError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"success":  true,
		"message":  "stock initialized",
		"key":      key,
		"quantity": quantity,
	})
}

func (h *GRPCHandler) Decrease(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := stringField(req, "key", true)
	if err != nil {
		return nil, err
	}
	requestID, err := stringField(req, "request_id", false)
	if err != nil {
		return nil, err
	}
	amount, err := intField(req, "amount")
	if err != nil {
		return nil, err
	}

	if err := h.stockService.Decrease(ctx, requestID, key, amount); err != nil {
		return nil, h.statusError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"success":  true,
		"message":  "stock decreased",
		"key":      key,
		"strategy": string(h.stockService.Strategy()),
	})
}

func (h *GRPCHandler) GetQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	key, err := stringField(req, "key", true)
	if err != nil {
		return nil, err
	}

	q, err := h.stockService.CurrentQuantity(ctx, key)
	if err != nil {
		return nil, h.statusError(err)
	}
	return structpb.NewStruct(map[string]interface{}{
		"key":      key,
		"quantity": q,
		"strategy": string(h.stockService.Strategy()),
	})
}

func (h *GRPCHandler) statusError(err error) error {
	m := mapError(err)
	if m.code == codes.Internal {
		h.log.Error(err, "rpc failed")
	}
	return status.Error(m.code, m.message)
}

func stringField(req *structpb.Struct, name string, required bool) (string, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		if required {
			return "", status.Errorf(codes.InvalidArgument, "missing %s", name)
		}
		return "", nil
	}
	s, isString := v.GetKind().(*structpb.Value_StringValue)
	if !isString {
		return "", status.Errorf(codes.InvalidArgument, "%s must be a string", name)
	}
	if required && s.StringValue == "" {
		return "", status.Errorf(codes.InvalidArgument, "missing %s", name)
	}
	return s.StringValue, nil
}

// intField reads a whole number; structpb carries every number as a double.
func intField(req *structpb.Struct, name string) (int64, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, status.Errorf(codes.InvalidArgument, "missing %s", name)
	}
	n, isNumber := v.GetKind().(*structpb.Value_NumberValue)
	if !isNumber || n.NumberValue != math.Trunc(n.NumberValue) || math.Abs(n.NumberValue) > 1<<53 {
		return 0, status.Errorf(codes.InvalidArgument, "%s must be an integer", name)
	}
	return int64(n.NumberValue), nil
}
