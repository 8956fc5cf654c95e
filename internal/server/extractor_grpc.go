package server

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Every method takes and returns a google.protobuf.Struct so the service
// needs no generated message types.
const (
	ServiceName = "extractor.v1.ExtractorService"

	methodExtract   = "/" + ServiceName + "/Extract"
	methodStructure = "/" + ServiceName + "/Structure"
	methodNormalize = "/" + ServiceName + "/Normalize"
	methodJob       = "/" + ServiceName + "/Job"
	methodHistory   = "/" + ServiceName + "/History"
	methodExport    = "/" + ServiceName + "/Export"
)

// ExtractorServiceServer is the server API for extractor.v1.ExtractorService.
type ExtractorServiceServer interface {
	// Extract runs the full flow on an uploaded file, or enqueues it.
	Extract(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Structure skips text extraction and structures the given text.
	Structure(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Normalize returns the canonical shape of any historical result payload.
	Normalize(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Job(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Export(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedExtractorServiceServer can be embedded for forward compatibility.
type UnimplementedExtractorServiceServer struct{}

func (UnimplementedExtractorServiceServer) Extract(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Extract not implemented")
}
func (UnimplementedExtractorServiceServer) Structure(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Structure not implemented")
}
func (UnimplementedExtractorServiceServer) Normalize(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Normalize not implemented")
}
func (UnimplementedExtractorServiceServer) Job(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Job not implemented")
}
func (UnimplementedExtractorServiceServer) History(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method History not implemented")
}
func (UnimplementedExtractorServiceServer) Export(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Export not implemented")
}

func RegisterExtractorServiceServer(s grpc.ServiceRegistrar, srv ExtractorServiceServer) {
	s.RegisterService(&ExtractorService_ServiceDesc, srv)
}

func unaryHandler(method string, call func(ExtractorServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExtractorServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExtractorServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ExtractorService_ServiceDesc is the grpc.ServiceDesc for ExtractorService.
var ExtractorService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExtractorServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Extract", Handler: unaryHandler(methodExtract, ExtractorServiceServer.Extract)},
		{MethodName: "Structure", Handler: unaryHandler(methodStructure, ExtractorServiceServer.Structure)},
		{MethodName: "Normalize", Handler: unaryHandler(methodNormalize, ExtractorServiceServer.Normalize)},
		{MethodName: "Job", Handler: unaryHandler(methodJob, ExtractorServiceServer.Job)},
		{MethodName: "History", Handler: unaryHandler(methodHistory, ExtractorServiceServer.History)},
		{MethodName: "Export", Handler: unaryHandler(methodExport, ExtractorServiceServer.Export)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "extractor/v1/extractor.proto",
}

// ExtractorServiceClient is the client API for ExtractorService.
type ExtractorServiceClient interface {
	Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Structure(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Normalize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Job(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Export(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type extractorServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewExtractorServiceClient(cc grpc.ClientConnInterface) ExtractorServiceClient {
	return &extractorServiceClient{cc}
}

func (c *extractorServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *extractorServiceClient) Extract(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodExtract, in, opts...)
}
func (c *extractorServiceClient) Structure(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodStructure, in, opts...)
}
func (c *extractorServiceClient) Normalize(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodNormalize, in, opts...)
}
func (c *extractorServiceClient) Job(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodJob, in, opts...)
}
func (c *extractorServiceClient) History(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodHistory, in, opts...)
}
func (c *extractorServiceClient) Export(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodExport, in, opts...)
}
