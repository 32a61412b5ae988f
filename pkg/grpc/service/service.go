package service

import (
	"context"
	"errors"
	"time"

	"github.com/KevoDB/ingest/pkg/common/log"
	"github.com/KevoDB/ingest/pkg/engine"
	"github.com/KevoDB/ingest/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "kevo.ingest.v1.Ingest"

// Error details attached to Unavailable statuses caused by a closed write path
const (
	ErrorDomain  = "kevo.ingest"
	ReasonClosed = "WRITE_PATH_CLOSED"
)

// Full method names
const (
	PutMethod   = "/" + ServiceName + "/Put"
	FlushMethod = "/" + ServiceName + "/Flush"
	StatsMethod = "/" + ServiceName + "/Stats"
)

// WritePath is the part of the engine the service exposes
type WritePath interface {
	Put(key, value []byte) error
	Flush() error
	Stats() map[string]interface{}
}

// IngestServer is the server API of the ingest service
type IngestServer interface {
	Put(ctx context.Context, req *PutRequest) (*emptypb.Empty, error)
	Flush(ctx context.Context, req *emptypb.Empty) (*emptypb.Empty, error)
	Stats(ctx context.Context, req *emptypb.Empty) (*structpb.Struct, error)
}

// IngestServiceServer implements IngestServer on top of a write path
type IngestServiceServer struct {
	writePath    WritePath
	logger       log.Logger
	maxKeySize   int // Maximum allowed key size
	maxValueSize int // Maximum allowed value size
}

var _ IngestServer = (*IngestServiceServer)(nil)

// NewIngestServiceServer creates a new IngestServiceServer
func NewIngestServiceServer(writePath WritePath, logger log.Logger) *IngestServiceServer {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	return &IngestServiceServer{
		writePath:    writePath,
		logger:       logger.WithField("component", telemetry.ComponentService),
		maxKeySize:   4096,             // 4KB
		maxValueSize: 10 * 1024 * 1024, // 10MB
	}
}

// toStatus maps write path errors onto gRPC status codes
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, engine.ErrClosed):
		st := status.New(codes.Unavailable, err.Error())
		if detailed, derr := st.WithDetails(&errdetails.ErrorInfo{Reason: ReasonClosed, Domain: ErrorDomain}); derr == nil {
			st = detailed
		}
		return st.Err()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Put stores a key-value pair. It blocks for as long as the write path stalls.
func (s *IngestServiceServer) Put(ctx context.Context, req *PutRequest) (*emptypb.Empty, error) {
	if len(req.Key) == 0 || len(req.Key) > s.maxKeySize {
		return nil, status.Errorf(codes.InvalidArgument, "invalid key size %d", len(req.Key))
	}
	if len(req.Value) > s.maxValueSize {
		return nil, status.Errorf(codes.InvalidArgument, "value too large: %d bytes", len(req.Value))
	}
	if err := ctx.Err(); err != nil {
		return nil, toStatus(err)
	}

	if err := s.writePath.Put(req.Key, req.Value); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Flush freezes the active memtable
func (s *IngestServiceServer) Flush(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	if err := s.writePath.Flush(); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Stats returns write path statistics
func (s *IngestServiceServer) Stats(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	result, err := structpb.NewStruct(s.writePath.Stats())
	if err != nil {
		s.logger.Error("failed to encode stats: %v", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return result, nil
}

// UnaryServerInterceptor traces and times every call and logs failures
func UnaryServerInterceptor(logger log.Logger, tel telemetry.Telemetry) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = log.GetDefaultLogger()
	}
	if tel == nil {
		tel = telemetry.NewNoop()
	}
	logger = logger.WithField("component", telemetry.ComponentService)

	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, span := tel.StartSpan(ctx, info.FullMethod,
			attribute.String(telemetry.AttrComponent, telemetry.ComponentService))
		defer span.End()

		start := time.Now()
		resp, err := handler(ctx, req)

		outcome := telemetry.StatusSuccess
		if err != nil {
			outcome = telemetry.StatusError
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
			logger.WithFields(map[string]interface{}{
				"method": info.FullMethod,
				"code":   status.Code(err).String(),
			}).Warn("request failed: %v", err)
		}
		telemetry.RecordDuration(ctx, tel, "kevo.ingest.rpc.duration", start,
			attribute.String(telemetry.AttrOperationName, info.FullMethod),
			attribute.String(telemetry.AttrStatus, outcome),
		)
		return resp, err
	}
}

func putHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PutMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).Put(ctx, req.(*PutRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func flushHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Flush(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FlushMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).Flush(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func statsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IngestServer).Stats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: StatsMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IngestServer).Stats(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// IngestServiceDesc describes the ingest service to grpc.Server
var IngestServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IngestServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Flush", Handler: flushHandler},
		{MethodName: "Stats", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kevo/ingest/v1/ingest.proto",
}

// RegisterIngestServer registers srv with s
func RegisterIngestServer(s grpc.ServiceRegistrar, srv IngestServer) {
	s.RegisterService(&IngestServiceDesc, srv)
}

// IngestClient is the client API of the ingest service
type IngestClient interface {
	Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Flush(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type ingestClient struct {
	cc grpc.ClientConnInterface
}

// NewIngestClient returns a client that sends every call with the ingest codec
func NewIngestClient(cc grpc.ClientConnInterface) IngestClient {
	return &ingestClient{cc: cc}
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
}

func (c *ingestClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, PutMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ingestClient) Flush(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, FlushMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ingestClient) Stats(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatsMethod, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
