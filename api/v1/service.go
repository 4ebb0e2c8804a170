package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	PrimeService_ServiceName       = "primegen.v1.PrimeService"
	PrimeService_Generate_FullName = "/primegen.v1.PrimeService/Generate"
	PrimeService_Check_FullName    = "/primegen.v1.PrimeService/Check"
)

// PrimeServiceServer is the server API for the PrimeService gRPC service.
type PrimeServiceServer interface {
	// Generate streams each probable prime to the caller as soon as it is found.
	Generate(*structpb.Struct, PrimeService_GenerateServer) error
	// Check returns a primality verdict for the decimal value.
	Check(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedPrimeServiceServer can be embedded to have forward compatible implementations.
type UnimplementedPrimeServiceServer struct{}

func (UnimplementedPrimeServiceServer) Generate(*structpb.Struct, PrimeService_GenerateServer) error {
	return status.Error(codes.Unimplemented, "method Generate not implemented")
}

func (UnimplementedPrimeServiceServer) Check(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Check not implemented")
}

// RegisterPrimeServiceServer registers the PrimeService on a gRPC server.
func RegisterPrimeServiceServer(s grpc.ServiceRegistrar, srv PrimeServiceServer) {
	s.RegisterService(&PrimeService_ServiceDesc, srv)
}

// PrimeService_GenerateServer is the server side of a Generate stream.
type PrimeService_GenerateServer interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type primeServiceGenerateServer struct {
	grpc.ServerStream
}

func (x *primeServiceGenerateServer) Send(m *structpb.Struct) error {
	return x.ServerStream.SendMsg(m)
}

// PrimeServiceClient is the client API for the PrimeService gRPC service.
type PrimeServiceClient interface {
	Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (PrimeService_GenerateClient, error)
	Check(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type primeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPrimeServiceClient(cc grpc.ClientConnInterface) PrimeServiceClient {
	return &primeServiceClient{cc: cc}
}

func (c *primeServiceClient) Generate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (PrimeService_GenerateClient, error) {
	stream, err := c.cc.NewStream(ctx, &PrimeService_ServiceDesc.Streams[0], PrimeService_Generate_FullName, opts...)
	if err != nil {
		return nil, err
	}
	x := &primeServiceGenerateClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

func (c *primeServiceClient) Check(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, PrimeService_Check_FullName, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PrimeService_GenerateClient is the client side of a Generate stream.
type PrimeService_GenerateClient interface {
	Recv() (*structpb.Struct, error)
	grpc.ClientStream
}

type primeServiceGenerateClient struct {
	grpc.ClientStream
}

func (x *primeServiceGenerateClient) Recv() (*structpb.Struct, error) {
	m := new(structpb.Struct)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _PrimeService_Generate_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(structpb.Struct)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(PrimeServiceServer).Generate(m, &primeServiceGenerateServer{stream})
}

func _PrimeService_Check_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PrimeServiceServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PrimeService_Check_FullName}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PrimeServiceServer).Check(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// PrimeService_ServiceDesc is the grpc.ServiceDesc for PrimeService.
var PrimeService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: PrimeService_ServiceName,
	HandlerType: (*PrimeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Check", Handler: _PrimeService_Check_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Generate", Handler: _PrimeService_Generate_Handler, ServerStreams: true},
	},
	Metadata: "primegen.proto",
}
