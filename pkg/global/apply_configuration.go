package global

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	// The pprof package does not provide a function for registering
	// its endpoints against an arbitrary mux. Load it to force
	// registration against the default mux, so we can forward
	// traffic to that mux instead.
	_ "net/http/pprof"

	"github.com/buildbarn/bb-disttrace/pkg/blackholereporter"
	"github.com/buildbarn/bb-disttrace/pkg/clock"
	"github.com/buildbarn/bb-disttrace/pkg/global/registrydiag"
	httpconfig "github.com/buildbarn/bb-disttrace/pkg/http"
	"github.com/buildbarn/bb-disttrace/pkg/honeyreporter"
	"github.com/buildbarn/bb-disttrace/pkg/otelreporter"
	"github.com/buildbarn/bb-disttrace/pkg/spanhost"
	"github.com/buildbarn/bb-disttrace/pkg/stdoutreporter"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/api"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/layer"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/reporter"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"github.com/buildbarn/bb-disttrace/pkg/tracesampler"
	"github.com/buildbarn/bb-disttrace/pkg/util"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DiagnosticsHTTPServerConfiguration controls the optional HTTP server
// exposing health, readiness, metrics and the registry diagnostics
// page for the running process.
type DiagnosticsHTTPServerConfiguration struct {
	// ListenAddress is the address the diagnostics server listens on,
	// e.g. ":9003". If empty, no diagnostics server is started.
	ListenAddress string
	// EnablePrometheus exposes /metrics.
	EnablePrometheus bool
	// EnablePprof exposes /debug/pprof/.
	EnablePprof bool
	// EnableActiveTraces exposes /active_traces, a live snapshot of
	// the trace-context registry (registrydiag).
	EnableActiveTraces bool
}

// PrometheusPushgatewayConfiguration configures periodic metric
// pushes to a Prometheus Pushgateway, as an alternative to scraping.
type PrometheusPushgatewayConfiguration struct {
	URL          string
	Job          string
	Grouping     map[string]string
	PushInterval time.Duration
	HTTPClient   httpconfig.ClientConfiguration
}

// OTLPGRPCSpanExporterConfiguration configures a trace exporter that
// uploads over an existing gRPC connection.
type OTLPGRPCSpanExporterConfiguration struct {
	// Endpoint is the target address passed to grpc.NewClient, e.g.
	// "otel-collector:4317".
	Endpoint string
}

// TracingBackendConfiguration selects and configures exactly one
// tracing reporter backend. Exactly one of the non-nil fields is
// honoured; BlackHole is the implicit default.
type TracingBackendConfiguration struct {
	BlackHole *struct{}
	Stdout    *stdoutreporter.Configuration
	OTLPGRPC  *OTLPGRPCSpanExporterConfiguration
	Jaeger    *otelreporter.JaegerConfiguration
	Honeycomb *honeyreporter.Configuration
}

// DeterministicSamplerConfiguration configures the trace-id-hash
// sampler of spec.md §4.7. A Rate of 0 disables sampling (reports
// everything); omit this struct entirely for the same effect.
type DeterministicSamplerConfiguration struct {
	// Rate is the acceptance denominator: 1 reports every trace, N
	// reports roughly 1/N of traces.
	Rate uint32
}

// RateLimitedSamplerConfiguration configures the epoch-based sampler
// ported from the teacher's maximum rate sampler.
type RateLimitedSamplerConfiguration struct {
	SamplesPerEpoch int
	EpochDuration   time.Duration
}

// TracingConfiguration controls the whole trace-context subsystem:
// which reporter backend finished spans/events are sent to, the
// service name attached to every record, and the sampling gates
// applied on top of the reporter.
type TracingConfiguration struct {
	// ServiceName is attached to every SpanRecord/EventRecord.
	ServiceName string
	// Backend selects the reporter. The zero value (all fields nil)
	// uses blackholereporter.
	Backend TracingBackendConfiguration
	// Deterministic, if set, gates reporting on a hash of the trace ID.
	Deterministic *DeterministicSamplerConfiguration
	// RateLimited, if set, additionally caps reports per epoch.
	RateLimited *RateLimitedSamplerConfiguration
}

// Configuration holds every option ApplyConfiguration understands.
// It is unmarshalled from a Jsonnet document by
// pkg/util.UnmarshalConfigurationFromFile, the one deliberate
// deviation from the teacher's Protobuf+protojson configuration format
// (see DESIGN.md): there is no wire-format stability requirement here,
// so a plain Go struct without field tags, decoded by encoding/json
// through its field names, replaces the generated message.
type Configuration struct {
	// LogPaths are additional files every log line is duplicated to,
	// besides os.Stderr.
	LogPaths []string
	// MutexProfileFraction configures runtime.SetMutexProfileFraction.
	MutexProfileFraction int
	// DiagnosticsHTTPServer configures the optional diagnostics server.
	DiagnosticsHTTPServer *DiagnosticsHTTPServerConfiguration
	// PrometheusPushgateway, if set, periodically pushes metrics
	// rather than waiting to be scraped.
	PrometheusPushgateway *PrometheusPushgatewayConfiguration
	// Tracing configures the trace-context subsystem.
	Tracing TracingConfiguration
}

// DiagnosticsServer is returned by ApplyConfiguration. The caller uses
// it to report whether the application has finished starting up.
type DiagnosticsServer struct {
	config  *DiagnosticsHTTPServerConfiguration
	handler http.Handler
	ready   bool
	server  *http.Server
}

// Serve runs the diagnostics HTTP server, if configured, until
// terminationContext is cancelled.
func (ds *DiagnosticsServer) Serve(terminationContext context.Context) error {
	if ds.config == nil || ds.config.ListenAddress == "" {
		<-terminationContext.Done()
		return nil
	}

	ds.server = &http.Server{
		Addr:    ds.config.ListenAddress,
		Handler: ds.handler,
	}
	go func() {
		<-terminationContext.Done()
		ds.ready = false
		ds.server.Shutdown(terminationContext)
	}()
	if err := ds.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// SetReady marks the application healthy and ready to receive traffic.
func (ds *DiagnosticsServer) SetReady() {
	ds.ready = true
}

// SetNotServing marks the application healthy but not ready.
func (ds *DiagnosticsServer) SetNotServing() {
	ds.ready = false
}

// TracingHandle bundles together everything ApplyConfiguration wires
// up for the trace-context subsystem, so that application code can
// open root spans and shut reporters down cleanly.
type TracingHandle struct {
	Host     *spanhost.Host
	Registry *tracectx.Registry
	// Layer drives the span/event lifecycle callbacks
	// (OnNewSpan/OnRecord/OnEvent/OnClose) that application code calls
	// around its own span tree; it is the same value installed as the
	// process-wide ambient Dispatcher.
	Layer *layer.Layer[visitor.FieldMap]
	// Shutdown releases the chosen reporter backend: for the OTLP and
	// Jaeger backends it shuts the TracerProvider down (flushing its
	// batcher), for Honeycomb it sends any buffered records. The OTLP
	// gRPC client connection is not closed. It is always non-nil;
	// backends with nothing to release use a no-op.
	Shutdown func(ctx context.Context) error
}

// Ambient returns the api.AmbientLookup wired against this handle's
// Host, for use with pkg/tracectx/api's RegisterDistTracingRoot and
// CurrentDistTraceCtx.
func (h *TracingHandle) Ambient() api.AmbientLookup {
	return api.AmbientLookup{
		CurrentSpan:       spanhost.CurrentSpan,
		CurrentDispatcher: spanhost.CurrentDispatcher,
	}
}

// ApplyConfiguration applies process-wide configuration: logging,
// mutex profiling, a Prometheus Pushgateway pusher, the trace-context
// subsystem (registry, lifecycle layer, reporter backend, sampling),
// and a diagnostics HTTP server. It installs the resulting layer as
// the process-wide ambient Dispatcher (pkg/spanhost.SetDispatcher), so
// that pkg/tracectx/api's free functions work anywhere in the process
// from this point on.
func ApplyConfiguration(configuration *Configuration) (*DiagnosticsServer, *TracingHandle, error) {
	// Logging.
	logWriters := append(make([]io.Writer, 0, len(configuration.LogPaths)+1), os.Stderr)
	for _, logPath := range configuration.LogPaths {
		w, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o666)
		if err != nil {
			return nil, nil, util.StatusWrapf(err, "Failed to open log path %#v", logPath)
		}
		logWriters = append(logWriters, w)
	}
	log.SetOutput(io.MultiWriter(logWriters...))

	// Mutex profiling.
	runtime.SetMutexProfileFraction(configuration.MutexProfileFraction)

	// Prometheus Pushgateway.
	if pushgateway := configuration.PrometheusPushgateway; pushgateway != nil {
		pusher := push.New(pushgateway.URL, pushgateway.Job)
		pusher.Gatherer(prometheus.DefaultGatherer)
		for key, value := range pushgateway.Grouping {
			pusher.Grouping(key, value)
		}
		roundTripper, err := httpconfig.NewRoundTripperFromConfiguration(&pushgateway.HTTPClient)
		if err != nil {
			return nil, nil, util.StatusWrap(err, "Failed to create Prometheus Pushgateway HTTP client")
		}
		pusher.Client(&http.Client{
			Transport: httpconfig.NewMetricsRoundTripper(roundTripper, "Pushgateway"),
		})

		pushInterval := pushgateway.PushInterval
		if pushInterval <= 0 {
			pushInterval = 10 * time.Second
		}
		go func() {
			for {
				if err := pusher.Push(); err != nil {
					log.Print("Failed to push metrics to Prometheus Pushgateway: ", err)
				}
				time.Sleep(pushInterval)
			}
		}()
	}

	// Trace-context subsystem.
	tracingHandle, err := applyTracingConfiguration(&configuration.Tracing)
	if err != nil {
		return nil, nil, util.StatusWrap(err, "Failed to apply tracing configuration")
	}

	// Diagnostics HTTP server.
	router := mux.NewRouter()
	diagnosticsServer := &DiagnosticsServer{
		config:  configuration.DiagnosticsHTTPServer,
		handler: router,
	}
	router.HandleFunc("/-/healthy", func(http.ResponseWriter, *http.Request) {})
	router.HandleFunc("/-/ready", func(w http.ResponseWriter, _ *http.Request) {
		if diagnosticsServer.ready {
			w.WriteHeader(http.StatusOK)
		} else {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		}
	})
	if dhs := configuration.DiagnosticsHTTPServer; dhs != nil {
		if dhs.EnablePrometheus {
			router.Handle("/metrics", promhttp.Handler())
		}
		if dhs.EnablePprof {
			router.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)
		}
		if dhs.EnableActiveTraces {
			router.Handle("/active_traces", registrydiag.New(tracingHandle.Host, tracingHandle.Registry))
		}
	}

	return diagnosticsServer, tracingHandle, nil
}

func applyTracingConfiguration(configuration *TracingConfiguration) (*TracingHandle, error) {
	rep, shutdown, err := newReporterFromConfiguration(&configuration.Backend)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to create reporter")
	}
	rep = applySamplers(rep, configuration)

	var newInstanceNonce ident.InstanceNonceGenerator = processInstanceNonce
	nonce, err := newInstanceNonce()
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to generate process instance nonce")
	}

	host := spanhost.NewHost()
	l := layer.New[visitor.FieldMap](host, rep, nonce, configuration.ServiceName, clock.SystemClock, spanhost.CurrentSpan)
	spanhost.SetDispatcher(l)

	return &TracingHandle{
		Host:     host,
		Registry: l.Registry(),
		Layer:    l,
		Shutdown: shutdown,
	}, nil
}

func applySamplers(rep reporter.Reporter[visitor.FieldMap], configuration *TracingConfiguration) reporter.Reporter[visitor.FieldMap] {
	if rl := configuration.RateLimited; rl != nil {
		rep = reporter.WithSampler(rep, tracesampler.NewRateLimited(clock.SystemClock, rl.SamplesPerEpoch, rl.EpochDuration))
	}
	if det := configuration.Deterministic; det != nil && det.Rate != 0 {
		rep = reporter.WithSampler(rep, tracesampler.Deterministic{Rate: det.Rate})
	}
	return rep
}

// processInstanceNonce generates the single nonce every SpanID this
// process's registry promotes will carry, distinguishing this
// process's span handles from those of a prior instance reusing the
// same handle numbering (spec §6).
func processInstanceNonce() (uint64, error) {
	generated, err := uuid.NewRandom()
	if err != nil {
		return 0, err
	}
	nonce := uint64(0)
	for _, b := range generated[:8] {
		nonce = nonce<<8 | uint64(b)
	}
	return nonce, nil
}

func newReporterFromConfiguration(configuration *TracingBackendConfiguration) (reporter.Reporter[visitor.FieldMap], func(ctx context.Context) error, error) {
	noopShutdown := func(context.Context) error { return nil }

	switch {
	case configuration.Stdout != nil:
		return stdoutreporter.New(*configuration.Stdout), noopShutdown, nil

	case configuration.OTLPGRPC != nil:
		conn, err := grpc.NewClient(configuration.OTLPGRPC.Endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, util.StatusWrap(err, "Failed to dial OTLP gRPC endpoint")
		}
		exporter, err := otelreporter.NewOTLPGRPCExporter(context.Background(), conn)
		if err != nil {
			return nil, nil, util.StatusWrap(err, "Failed to create OTLP span exporter")
		}
		tp := otelreporter.NewTracerProvider(exporter, nil)
		return otelreporter.NewReporter(tp, "disttrace"), func(ctx context.Context) error {
			return otelreporter.Shutdown(ctx, tp)
		}, nil

	case configuration.Jaeger != nil:
		exporter, err := otelreporter.NewJaegerExporter(configuration.Jaeger)
		if err != nil {
			return nil, nil, util.StatusWrap(err, "Failed to create Jaeger span exporter")
		}
		tp := otelreporter.NewTracerProvider(exporter, nil)
		return otelreporter.NewReporter(tp, "disttrace"), func(ctx context.Context) error {
			return otelreporter.Shutdown(ctx, tp)
		}, nil

	case configuration.Honeycomb != nil:
		rep, err := honeyreporter.New(*configuration.Honeycomb, util.DefaultErrorLogger)
		if err != nil {
			return nil, nil, util.StatusWrap(err, "Failed to create Honeycomb reporter")
		}
		return rep, func(ctx context.Context) error {
			rep.Flush(ctx)
			return nil
		}, nil

	case configuration.BlackHole != nil:
		return blackholereporter.New(), noopShutdown, nil

	default:
		return blackholereporter.New(), noopShutdown, nil
	}
}
