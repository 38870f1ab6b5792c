package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/buildbarn/bb-disttrace/pkg/global"
	"github.com/buildbarn/bb-disttrace/pkg/program"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/api"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/ident"
	"github.com/buildbarn/bb-disttrace/pkg/util"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// disttrace_example demonstrates the trace-context subsystem end to
// end: it opens a local span tree, registers its root as a
// distributed-trace root, emits an event, closes the tree so the
// configured reporter backend observes it, and simulates a
// cross-process hop by externalising the current span's identifiers
// onto the carrier field names a real RPC transport would use and
// registering a second local root from them (seed scenario S5).
func main() {
	program.RunMain(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
		if len(os.Args) != 2 {
			return status.Error(codes.InvalidArgument, "Usage: disttrace_example disttrace_example.jsonnet")
		}
		var configuration global.Configuration
		if err := util.UnmarshalConfigurationFromFile(os.Args[1], &configuration); err != nil {
			return util.StatusWrapf(err, "Failed to read configuration from %s", os.Args[1])
		}

		diagnosticsServer, tracingHandle, err := global.ApplyConfiguration(&configuration)
		if err != nil {
			return util.StatusWrap(err, "Failed to apply configuration")
		}

		siblingsGroup.Go(func(ctx context.Context, siblingsGroup, dependenciesGroup program.Group) error {
			return diagnosticsServer.Serve(ctx)
		})

		if err := runDemoTrace(ctx, tracingHandle); err != nil {
			return util.StatusWrap(err, "Failed to run demo trace")
		}

		diagnosticsServer.SetReady()
		log.Print("disttrace_example is ready")

		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return tracingHandle.Shutdown(shutdownCtx)
	})
}

func runDemoTrace(ctx context.Context, tracingHandle *global.TracingHandle) error {
	ambient := tracingHandle.Ambient()

	ctx, rootHandle := tracingHandle.Host.Open(ctx, "demo-request")
	tracingHandle.Layer.OnNewSpan(rootHandle, "demo-request", "disttrace_example", nil, nil)

	traceID, err := ident.NewTraceID()
	if err != nil {
		return util.StatusWrap(err, "Failed to generate trace ID")
	}
	if err := api.RegisterDistTracingRoot(ctx, ambient, traceID, nil); err != nil {
		return util.StatusWrap(err, "Failed to register local root")
	}

	ctx, childHandle := tracingHandle.Host.Open(ctx, "demo-work")
	tracingHandle.Layer.OnNewSpan(childHandle, "demo-work", "disttrace_example", nil, nil)

	gotTraceID, childSpanID, err := api.CurrentDistTraceCtx(ctx, ambient)
	if err != nil {
		return util.StatusWrap(err, "Failed to resolve current trace context")
	}
	log.Printf("resolved trace %s at span %s", gotTraceID, childSpanID)

	tracingHandle.Layer.OnEvent(ctx, nil, false, "demo-event", "disttrace_example", nil, nil)

	// Externalise the child span's identifiers onto the carrier field
	// names a real RPC transport would set on outgoing metadata.
	carrier := map[string]string{
		ident.HeaderTraceID: gotTraceID.String(),
		ident.HeaderSpanID:  childSpanID.String(),
	}

	tracingHandle.Layer.OnClose(childHandle)
	tracingHandle.Host.Close(childHandle)

	// The receiving side of a cross-process hop parses the carrier and
	// registers a fresh local root whose remote parent is the span
	// that sent the request.
	remoteTraceID, err := ident.ParseTraceID(carrier[ident.HeaderTraceID])
	if err != nil {
		return util.StatusWrap(err, "Failed to parse carrier trace ID")
	}
	remoteParentSpan, err := ident.ParseSpanID(carrier[ident.HeaderSpanID])
	if err != nil {
		return util.StatusWrap(err, "Failed to parse carrier span ID")
	}

	downstreamCtx, downstreamHandle := tracingHandle.Host.Open(context.Background(), "demo-downstream")
	tracingHandle.Layer.OnNewSpan(downstreamHandle, "demo-downstream", "disttrace_example", nil, nil)
	if err := api.RegisterDistTracingRoot(downstreamCtx, ambient, remoteTraceID, &remoteParentSpan); err != nil {
		return util.StatusWrap(err, "Failed to register downstream root")
	}
	tracingHandle.Layer.OnClose(downstreamHandle)
	tracingHandle.Host.Close(downstreamHandle)

	tracingHandle.Layer.OnClose(rootHandle)
	tracingHandle.Host.Close(rootHandle)

	return nil
}
