package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	Rows_Upsert_FullMethodName     = "/offsync.Rows/Upsert"
	Rows_SoftDelete_FullMethodName = "/offsync.Rows/SoftDelete"
	Rows_Fetch_FullMethodName      = "/offsync.Rows/Fetch"
	Rows_Ping_FullMethodName       = "/offsync.Rows/Ping"
)

// RowsClient is the client API for the Rows service.
type RowsClient interface {
	Upsert(ctx context.Context, in *UpsertRequest, opts ...grpc.CallOption) (*UpsertResponse, error)
	SoftDelete(ctx context.Context, in *SoftDeleteRequest, opts ...grpc.CallOption) (*SoftDeleteResponse, error)
	Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (*FetchResponse, error)
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
}

type rowsClient struct {
	cc grpc.ClientConnInterface
}

func NewRowsClient(cc grpc.ClientConnInterface) RowsClient {
	return &rowsClient{cc}
}

func (c *rowsClient) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *rowsClient) Upsert(ctx context.Context, in *UpsertRequest, opts ...grpc.CallOption) (*UpsertResponse, error) {
	out := new(UpsertResponse)
	if err := c.invoke(ctx, Rows_Upsert_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rowsClient) SoftDelete(ctx context.Context, in *SoftDeleteRequest, opts ...grpc.CallOption) (*SoftDeleteResponse, error) {
	out := new(SoftDeleteResponse)
	if err := c.invoke(ctx, Rows_SoftDelete_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rowsClient) Fetch(ctx context.Context, in *FetchRequest, opts ...grpc.CallOption) (*FetchResponse, error) {
	out := new(FetchResponse)
	if err := c.invoke(ctx, Rows_Fetch_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rowsClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	out := new(PingResponse)
	if err := c.invoke(ctx, Rows_Ping_FullMethodName, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// RowsServer is the server API for the Rows service. Implementations should
// embed UnimplementedRowsServer.
type RowsServer interface {
	Upsert(context.Context, *UpsertRequest) (*UpsertResponse, error)
	SoftDelete(context.Context, *SoftDeleteRequest) (*SoftDeleteResponse, error)
	Fetch(context.Context, *FetchRequest) (*FetchResponse, error)
	Ping(context.Context, *PingRequest) (*PingResponse, error)
}

type UnimplementedRowsServer struct{}

func (UnimplementedRowsServer) Upsert(context.Context, *UpsertRequest) (*UpsertResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Upsert not implemented")
}
func (UnimplementedRowsServer) SoftDelete(context.Context, *SoftDeleteRequest) (*SoftDeleteResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SoftDelete not implemented")
}
func (UnimplementedRowsServer) Fetch(context.Context, *FetchRequest) (*FetchResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Fetch not implemented")
}
func (UnimplementedRowsServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Ping not implemented")
}

func RegisterRowsServer(s grpc.ServiceRegistrar, srv RowsServer) {
	s.RegisterService(&Rows_ServiceDesc, srv)
}

func _Rows_Upsert_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(UpsertRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RowsServer).Upsert(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Rows_Upsert_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RowsServer).Upsert(ctx, req.(*UpsertRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Rows_SoftDelete_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SoftDeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RowsServer).SoftDelete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Rows_SoftDelete_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RowsServer).SoftDelete(ctx, req.(*SoftDeleteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Rows_Fetch_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(FetchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RowsServer).Fetch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Rows_Fetch_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RowsServer).Fetch(ctx, req.(*FetchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Rows_Ping_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(RowsServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Rows_Ping_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(RowsServer).Ping(ctx, req.(*PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Rows_ServiceDesc is the grpc.ServiceDesc for the Rows service.
var Rows_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "offsync.Rows",
	HandlerType: (*RowsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Upsert", Handler: _Rows_Upsert_Handler},
		{MethodName: "SoftDelete", Handler: _Rows_SoftDelete_Handler},
		{MethodName: "Fetch", Handler: _Rows_Fetch_Handler},
		{MethodName: "Ping", Handler: _Rows_Ping_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "offsync/rows.json",
}
