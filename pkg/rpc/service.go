package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the gRPC service name clients and servers register under.
const ServiceName = "cliodb.Treestore"

// TreestoreServer is the interface internal/server's Server implements.
// There is deliberately no generated TreestoreServiceServer base struct to
// embed (no .proto, no protoc) — this interface plays that role.
type TreestoreServer interface {
	Transact(ctx context.Context, req *TxRequest) (*TxReply, error)
	Query(ctx context.Context, req *QueryRequest) (*QueryReply, error)
}

func transactHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(TxRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TreestoreServer).Transact(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Transact"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TreestoreServer).Transact(ctx, req.(*TxRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func queryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(QueryRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TreestoreServer).Query(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Query"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TreestoreServer).Query(ctx, req.(*QueryRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// ServiceDesc is what a generated <service>_grpc.pb.go would otherwise
// provide; RegisterTreestoreServer below is the generated-style
// registration helper built around it.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TreestoreServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Transact", Handler: transactHandler},
		{MethodName: "Query", Handler: queryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "cliodb.proto",
}

// RegisterTreestoreServer registers impl with s, the way a generated
// RegisterTreestoreServiceServer function would.
func RegisterTreestoreServer(s grpc.ServiceRegistrar, impl TreestoreServer) {
	s.RegisterService(&ServiceDesc, impl)
}
