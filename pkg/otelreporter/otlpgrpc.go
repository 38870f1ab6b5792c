package otelreporter

import (
	"context"

	"google.golang.org/grpc"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"
)

// grpcOTLPTraceClient adapts a bare grpc.ClientConnInterface to
// otlptrace.Client, letting callers reuse an existing gRPC client
// connection (and its dial options, credentials, interceptors)
// instead of pulling in the heavier otlptracegrpc package, which
// dials its own connection internally.
type grpcOTLPTraceClient struct {
	client coltracepb.TraceServiceClient
}

// NewGRPCOTLPTraceClient creates an OTLP trace client backed by conn.
func NewGRPCOTLPTraceClient(conn grpc.ClientConnInterface) otlptrace.Client {
	return grpcOTLPTraceClient{
		client: coltracepb.NewTraceServiceClient(conn),
	}
}

func (c grpcOTLPTraceClient) Start(ctx context.Context) error {
	return nil
}

func (c grpcOTLPTraceClient) Stop(ctx context.Context) error {
	return nil
}

func (c grpcOTLPTraceClient) UploadTraces(ctx context.Context, protoSpans []*tracepb.ResourceSpans) error {
	_, err := c.client.Export(ctx, &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: protoSpans,
	})
	return err
}

// NewOTLPGRPCExporter creates a SpanExporter that uploads over an
// existing gRPC connection via NewGRPCOTLPTraceClient.
func NewOTLPGRPCExporter(ctx context.Context, conn grpc.ClientConnInterface) (sdktrace.SpanExporter, error) {
	return otlptrace.New(ctx, NewGRPCOTLPTraceClient(conn))
}
