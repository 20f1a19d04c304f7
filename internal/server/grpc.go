package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/joseph-ayodele/calendar-converter/internal/backend"
	"github.com/joseph-ayodele/calendar-converter/internal/common"
	"github.com/joseph-ayodele/calendar-converter/internal/ics"
)

const (
	ConverterServiceName = "calendarconverter.v1.ConverterService"

	// DocumentKindKey carries the document kind for ConvertDocument.
	DocumentKindKey = "x-document-kind"
	requestIDKey    = "x-request-id"
)

// ConverterServiceServer uses well-known types so no generated code is needed:
// text arrives as StringValue, documents as BytesValue with the kind in
// metadata, and the artifact goes back as a Struct.
type ConverterServiceServer interface {
	ConvertText(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ConvertDocument(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
}

var ConverterServiceDesc = grpc.ServiceDesc{
	ServiceName: ConverterServiceName,
	HandlerType: (*ConverterServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ConvertText", Handler: convertTextHandler},
		{MethodName: "ConvertDocument", Handler: convertDocumentHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "calendarconverter/v1/converter.proto",
}

func RegisterConverterServiceServer(s grpc.ServiceRegistrar, srv ConverterServiceServer) {
	s.RegisterService(&ConverterServiceDesc, srv)
}

func convertTextHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConverterServiceServer).ConvertText(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ConverterServiceName + "/ConvertText"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConverterServiceServer).ConvertText(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func convertDocumentHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ConverterServiceServer).ConvertDocument(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ConverterServiceName + "/ConvertDocument"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ConverterServiceServer).ConvertDocument(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

// ConverterClient is the client side of ConverterServiceDesc.
type ConverterClient struct {
	cc grpc.ClientConnInterface
}

func NewConverterClient(cc grpc.ClientConnInterface) *ConverterClient {
	return &ConverterClient{cc: cc}
}

func (c *ConverterClient) ConvertText(ctx context.Context, text string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+ConverterServiceName+"/ConvertText", wrapperspb.String(text), out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ConverterClient) ConvertDocument(ctx context.Context, content []byte, kind string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, DocumentKindKey, kind)
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, "/"+ConverterServiceName+"/ConvertDocument", wrapperspb.Bytes(content), out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GRPCConverter adapts the pipeline to ConverterServiceServer.
type GRPCConverter struct {
	conv   Converter
	logger *slog.Logger
}

func NewGRPCConverter(conv Converter, logger *slog.Logger) *GRPCConverter {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCConverter{conv: conv, logger: logger}
}

func (s *GRPCConverter) ConvertText(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	ctx = withIncomingRequestID(ctx)
	art, err := s.conv.ConvertText(ctx, req.GetValue())
	if err != nil {
		s.logger.Warn("grpc.convert.failed", "req_id", common.RequestIDFromContext(ctx), "method", "ConvertText")
		return nil, common.GRPCStatus(err)
	}
	return artifactStruct(art)
}

func (s *GRPCConverter) ConvertDocument(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	ctx = withIncomingRequestID(ctx)
	kind := firstMetadata(ctx, DocumentKindKey)
	if kind == "" {
		return nil, common.InvalidArgumentError(DocumentKindKey + " metadata is required")
	}
	art, err := s.conv.ConvertDocument(ctx, req.GetValue(), kind)
	if err != nil {
		s.logger.Warn("grpc.convert.failed", "req_id", common.RequestIDFromContext(ctx), "method", "ConvertDocument")
		return nil, common.GRPCStatus(err)
	}
	return artifactStruct(art)
}

func artifactStruct(art ics.CalendarArtifact) (*structpb.Struct, error) {
	b, err := json.Marshal(art.Event)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode event")
	}
	var ev map[string]any
	if err := json.Unmarshal(b, &ev); err != nil {
		return nil, status.Error(codes.Internal, "encode event")
	}
	out, err := structpb.NewStruct(map[string]any{
		"ics_content": art.Content,
		"filename":    art.Filename,
		"uid":         art.UID,
		"event":       ev,
	})
	if err != nil {
		return nil, status.Error(codes.Internal, "encode response")
	}
	return out, nil
}

func withIncomingRequestID(ctx context.Context) context.Context {
	rid := firstMetadata(ctx, requestIDKey)
	if rid == "" {
		rid = uuid.NewString()
	}
	return common.WithRequestID(ctx, rid)
}

func firstMetadata(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get(key); len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

// BackendServiceName is the health service name for one backend.
func BackendServiceName(name string) string {
	return "backend/" + name
}

// HealthObserver mirrors availability snapshots into the gRPC health server.
// The converter service is SERVING while at least one backend is reachable.
func HealthObserver(hs *health.Server) backend.Observer {
	return func(snap backend.Snapshot) {
		anyUp := false
		for _, st := range snap.Backends {
			s := healthpb.HealthCheckResponse_NOT_SERVING
			if st.Reachable {
				s = healthpb.HealthCheckResponse_SERVING
				anyUp = true
			}
			hs.SetServingStatus(BackendServiceName(st.Name), s)
		}
		if anyUp {
			hs.SetServingStatus(ConverterServiceName, healthpb.HealthCheckResponse_SERVING)
		} else {
			hs.SetServingStatus(ConverterServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
		}
	}
}

// NewGRPCServer registers the converter and health services.
func NewGRPCServer(conv Converter, hs *health.Server, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	s := grpc.NewServer(opts...)
	RegisterConverterServiceServer(s, NewGRPCConverter(conv, logger))
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}
