// ABOUTME: gRPC OrderService with a hand-written service descriptor and client
// ABOUTME: GetAuthorizedOrder requires the order permission, GetNormalOrder is public

package gateway

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/2389/authgate/internal/auth"
	"github.com/2389/authgate/internal/login"
)

const orderServiceName = "authgate.v1.OrderService"

// Full method names for OrderService.
const (
	OrderService_GetAuthorizedOrder_FullMethodName = "/" + orderServiceName + "/GetAuthorizedOrder"
	OrderService_GetNormalOrder_FullMethodName     = "/" + orderServiceName + "/GetNormalOrder"
)

// Order responses shared by the HTTP and gRPC surfaces.
const (
	AuthorizedOrderMessage = "get authorized order"
	NormalOrderMessage     = "get normal order"
)

// orderMethodPolicy declares which OrderService methods need which permissions.
func orderMethodPolicy() auth.MethodPolicy {
	return auth.MethodPolicy{
		OrderService_GetAuthorizedOrder_FullMethodName: auth.Require(login.PermissionOrder),
	}
}

// OrderServiceServer is the server API for OrderService.
type OrderServiceServer interface {
	GetAuthorizedOrder(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
	GetNormalOrder(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error)
}

// RegisterOrderServiceServer registers srv on s.
func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&orderServiceDesc, srv)
}

func orderGetAuthorizedOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetAuthorizedOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: OrderService_GetAuthorizedOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).GetAuthorizedOrder(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func orderGetNormalOrderHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(OrderServiceServer).GetNormalOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: OrderService_GetNormalOrder_FullMethodName,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(OrderServiceServer).GetNormalOrder(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: orderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAuthorizedOrder", Handler: orderGetAuthorizedOrderHandler},
		{MethodName: "GetNormalOrder", Handler: orderGetNormalOrderHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "authgate/v1/order.proto",
}

// OrderServiceClient is the client API for OrderService.
type OrderServiceClient interface {
	GetAuthorizedOrder(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
	GetNormalOrder(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error)
}

type orderServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOrderServiceClient creates an OrderService client over cc.
func NewOrderServiceClient(cc grpc.ClientConnInterface) OrderServiceClient {
	return &orderServiceClient{cc: cc}
}

func (c *orderServiceClient) GetAuthorizedOrder(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, OrderService_GetAuthorizedOrder_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *orderServiceClient) GetNormalOrder(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, OrderService_GetNormalOrder_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// orderServer implements OrderServiceServer. Authorization happens in the
// interceptor, so handlers only read the identity.
type orderServer struct {
	logger *slog.Logger
}

func newOrderServer(logger *slog.Logger) *orderServer {
	return &orderServer{logger: logger}
}

// GetAuthorizedOrder returns the protected order. Only reachable with the
// order permission.
func (s *orderServer) GetAuthorizedOrder(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	identity := auth.MustFromContext(ctx)
	s.logger.Debug("authorized order", "username", identity.Username)
	return wrapperspb.String(AuthorizedOrderMessage), nil
}

// GetNormalOrder returns the public order.
func (s *orderServer) GetNormalOrder(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(NormalOrderMessage), nil
}
