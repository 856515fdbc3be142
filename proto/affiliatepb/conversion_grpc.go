// Package affiliatepb holds the gRPC bindings of affiliate/v1/conversion.proto.
// Messages are google.protobuf.Struct so billing back-ends can post the same
// payload they send to the HTTP webhook.
package affiliatepb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ConversionService_ServiceName = "affiliate.v1.ConversionService"

	ConversionService_TrackConversion_FullMethodName = "/affiliate.v1.ConversionService/TrackConversion"
	ConversionService_GetAffiliate_FullMethodName    = "/affiliate.v1.ConversionService/GetAffiliate"
	ConversionService_TrackRecurring_FullMethodName  = "/affiliate.v1.ConversionService/TrackRecurring"
)

type ConversionServiceClient interface {
	TrackConversion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetAffiliate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	TrackRecurring(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type conversionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewConversionServiceClient(cc grpc.ClientConnInterface) ConversionServiceClient {
	return &conversionServiceClient{cc}
}

func (c *conversionServiceClient) TrackConversion(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ConversionService_TrackConversion_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *conversionServiceClient) GetAffiliate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ConversionService_GetAffiliate_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *conversionServiceClient) TrackRecurring(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, ConversionService_TrackRecurring_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// ConversionServiceServer must embed UnimplementedConversionServiceServer.
type ConversionServiceServer interface {
	TrackConversion(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetAffiliate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	TrackRecurring(context.Context, *structpb.Struct) (*structpb.Struct, error)
	mustEmbedUnimplementedConversionServiceServer()
}

type UnimplementedConversionServiceServer struct{}

func (UnimplementedConversionServiceServer) TrackConversion(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method TrackConversion not implemented")
}

func (UnimplementedConversionServiceServer) GetAffiliate(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetAffiliate not implemented")
}

func (UnimplementedConversionServiceServer) TrackRecurring(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method TrackRecurring not implemented")
}

func (UnimplementedConversionServiceServer) mustEmbedUnimplementedConversionServiceServer() {}

func RegisterConversionServiceServer(s grpc.ServiceRegistrar, srv ConversionServiceServer) {
	s.RegisterService(&ConversionService_ServiceDesc, srv)
}

func _ConversionService_TrackConversion_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversionServiceServer).TrackConversion(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ConversionService_TrackConversion_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConversionServiceServer).TrackConversion(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConversionService_GetAffiliate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversionServiceServer).GetAffiliate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ConversionService_GetAffiliate_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConversionServiceServer).GetAffiliate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _ConversionService_TrackRecurring_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConversionServiceServer).TrackRecurring(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: ConversionService_TrackRecurring_FullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ConversionServiceServer).TrackRecurring(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var ConversionService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ConversionService_ServiceName,
	HandlerType: (*ConversionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "TrackConversion",
			Handler:    _ConversionService_TrackConversion_Handler,
		},
		{
			MethodName: "GetAffiliate",
			Handler:    _ConversionService_GetAffiliate_Handler,
		},
		{
			MethodName: "TrackRecurring",
			Handler:    _ConversionService_TrackRecurring_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "affiliate/v1/conversion.proto",
}
