package otelreporter

import (
	"go.opentelemetry.io/otel/exporters/jaeger"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// JaegerConfiguration holds the options needed to reach a Jaeger
// collector's HTTP Thrift endpoint.
type JaegerConfiguration struct {
	CollectorEndpoint string
	Username          string
	Password          string
}

// NewJaegerExporter creates a SpanExporter that uploads to a Jaeger
// collector.
func NewJaegerExporter(configuration *JaegerConfiguration) (sdktrace.SpanExporter, error) {
	opts := []jaeger.CollectorEndpointOption{
		jaeger.WithEndpoint(configuration.CollectorEndpoint),
	}
	if configuration.Username != "" {
		opts = append(opts, jaeger.WithUsername(configuration.Username), jaeger.WithPassword(configuration.Password))
	}
	return jaeger.New(jaeger.WithCollectorEndpoint(opts...))
}
