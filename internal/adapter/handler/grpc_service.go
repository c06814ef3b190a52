package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	stockServiceName = "stock.v1.StockService"

	InitializeMethod  = "/" + stockServiceName + "/Initialize"
	DecreaseMethod    = "/" + stockServiceName + "/Decrease"
	GetQuantityMethod = "/" + stockServiceName + "/GetQuantity"
)

// StockServiceServer carries requests and replies as structpb.Struct so the
// service needs no generated stubs.
type StockServiceServer interface {
	Initialize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Decrease(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterStockServiceServer(s grpc.ServiceRegistrar, srv StockServiceServer) {
	s.RegisterService(&StockServiceDesc, srv)
}

type unaryCall func(StockServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StockServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(StockServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var StockServiceDesc = grpc.ServiceDesc{
	ServiceName: stockServiceName,
	HandlerType: (*StockServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Initialize",
			Handler:    unaryHandler(InitializeMethod, StockServiceServer.Initialize),
		},
		{
			MethodName: "Decrease",
			Handler:    unaryHandler(DecreaseMethod, StockServiceServer.Decrease),
		},
		{
			MethodName: "GetQuantity",
			Handler:    unaryHandler(GetQuantityMethod, StockServiceServer.GetQuantity),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "stock/v1/stock.proto",
}

// StockServiceClient calls StockServiceDesc over an existing connection.
type StockServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewStockServiceClient(cc grpc.ClientConnInterface) *StockServiceClient {
	return &StockServiceClient{cc: cc}
}

func (c *StockServiceClient) Initialize(ctx context.Context, key string, quantity int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, InitializeMethod, map[string]interface{}{"key": key, "quantity": quantity}, opts)
}

func (c *StockServiceClient) Decrease(ctx context.Context, requestID, key string, amount int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, DecreaseMethod, map[string]interface{}{"request_id": requestID, "key": key, "amount": amount}, opts)
}

func (c *StockServiceClient) GetQuantity(ctx context.Context, key string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, GetQuantityMethod, map[string]interface{}{"key": key}, opts)
}

func (c *StockServiceClient) invoke(ctx context.Context, method string, fields map[string]interface{}, opts []grpc.CallOption) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
