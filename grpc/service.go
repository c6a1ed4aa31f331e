package grpc

import (
	"context"

	"google.golang.org/grpc"
)

// APIVersion is the version of the sensorhub service schema. It is part of every service name so
// peers built against different schemas fail with Unimplemented instead of misreading messages.
const APIVersion = "v1"

// ServiceName returns the fully qualified name of a sensorhub service.
func ServiceName(service string) string {
	return "sensorhub." + APIVersion + "." + service
}

// FullMethod returns the "/service/method" path used to invoke a method.
func FullMethod(serviceName, method string) string {
	return "/" + serviceName + "/" + method
}

// UnaryMethod declares a unary method of a service whose implementation has type ServerT.
// The request is decoded into a new RequestT and passed to call along with the service
// implementation registered on the server.
func UnaryMethod[ServerT, RequestT, ResponseT any](
	serviceName, method string,
	call func(srv ServerT, ctx context.Context, req *RequestT) (*ResponseT, error),
) grpc.MethodDesc {
	fullMethod := FullMethod(serviceName, method)
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(
			srv interface{},
			ctx context.Context,
			dec func(interface{}) error,
			interceptor grpc.UnaryServerInterceptor,
		) (interface{}, error) {
			in := new(RequestT)
			if err := dec(in); err != nil {
				return nil, err
			}
			impl := srv.(ServerT)
			if interceptor == nil {
				return call(impl, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(impl, ctx, req.(*RequestT))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Invoke calls a unary method on conn and decodes the response into a new ResponseT.
func Invoke[ResponseT any](
	ctx context.Context,
	conn grpc.ClientConnInterface,
	serviceName, method string,
	req interface{},
) (*ResponseT, error) {
	out := new(ResponseT)
	if err := conn.Invoke(ctx, FullMethod(serviceName, method), req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Empty is the request or response of methods that carry no data.
type Empty struct{}
