// Package honeyreporter implements a reporter backend for a hosted
// observability ingest endpoint reached over HTTP: it batches
// SpanRecords and EventRecords and POSTs each batch as one JSON
// document, reusing pkg/http's client configuration and round-tripper
// wrapping (API-key header injection, proxying) rather than rolling
// its own HTTP transport setup.
package honeyreporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	bbhttp "github.com/buildbarn/bb-disttrace/pkg/http"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/record"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx/visitor"
	"github.com/buildbarn/bb-disttrace/pkg/util"
)

// Configuration controls how Reporter batches and where it sends
// records.
type Configuration struct {
	// IngestURL is the endpoint records are POSTed to.
	IngestURL string
	// DatasetName is attached to every outgoing batch.
	DatasetName string
	// HTTPClient configures the outgoing HTTP connection (API key
	// header, proxy, ...). See pkg/http.NewRoundTripperFromConfiguration.
	HTTPClient bbhttp.ClientConfiguration
	// BatchSize is the number of records buffered before a flush is
	// triggered.
	BatchSize int
	// FlushInterval is not read by Reporter: buffered records are sent
	// only when BatchSize is reached or Flush is called, never on a
	// timer.
	FlushInterval time.Duration
}

type batchEntry struct {
	Kind string `json:"kind"`
	Data any    `json:"data"`
}

// Reporter batches records in memory and sends them to
// Configuration.IngestURL when BatchSize records are buffered, or when
// Flush is called; there is no time-based flush. A full batch is sent
// on its own goroutine, so ReportSpan and ReportEvent do not wait for
// the HTTP request. Transmit failures are logged through errorLogger
// and the batch is dropped, per spec §7 — this reporter never retries.
type Reporter struct {
	ingestURL   string
	datasetName string
	batchSize   int
	httpClient  *http.Client
	errorLogger util.ErrorLogger

	mu      sync.Mutex
	pending []batchEntry
}

// New creates a Reporter. errorLogger may be nil, defaulting to
// util.DefaultErrorLogger.
func New(configuration Configuration, errorLogger util.ErrorLogger) (*Reporter, error) {
	if errorLogger == nil {
		errorLogger = util.DefaultErrorLogger
	}
	roundTripper, err := bbhttp.NewRoundTripperFromConfiguration(&configuration.HTTPClient)
	if err != nil {
		return nil, util.StatusWrap(err, "Failed to construct HTTP round tripper")
	}
	batchSize := configuration.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reporter{
		ingestURL:   configuration.IngestURL,
		datasetName: configuration.DatasetName,
		batchSize:   batchSize,
		httpClient:  &http.Client{Transport: roundTripper},
		errorLogger: errorLogger,
	}, nil
}

func (r *Reporter) NewVisitor() visitor.FieldMap {
	return visitor.NewFieldMap()
}

func (r *Reporter) ReportSpan(rec record.SpanRecord[visitor.FieldMap]) {
	fields := rec.Visitor
	fields["trace.trace_id"] = rec.TraceID.String()
	fields["trace.span_id"] = rec.SpanID.String()
	if rec.ParentID != nil {
		fields["trace.parent_id"] = rec.ParentID.String()
	}
	fields["service_name"] = rec.ServiceName
	fields["name"] = rec.Name
	fields["target"] = rec.Target
	fields["Timestamp"] = rec.InitTime.UTC()
	fields["duration_ms"] = rec.Elapsed.Milliseconds()
	r.enqueue(batchEntry{Kind: "span", Data: fields})
}

func (r *Reporter) ReportEvent(rec record.EventRecord[visitor.FieldMap]) {
	fields := rec.Visitor
	fields["trace.trace_id"] = rec.TraceID.String()
	fields["trace.parent_id"] = rec.ParentID.String()
	fields["service_name"] = rec.ServiceName
	fields["name"] = rec.Name
	fields["target"] = rec.Target
	fields["Timestamp"] = rec.InitTime.UTC()
	r.enqueue(batchEntry{Kind: "event", Data: fields})
}

func (r *Reporter) enqueue(entry batchEntry) {
	r.mu.Lock()
	r.pending = append(r.pending, entry)
	flush := len(r.pending) >= r.batchSize
	var batch []batchEntry
	if flush {
		batch = r.pending
		r.pending = nil
	}
	r.mu.Unlock()

	if flush {
		go r.send(batch)
	}
}

// Flush sends any buffered records immediately, regardless of
// BatchSize, and returns once that request has finished. Nothing in
// this package calls it on a timer; pkg/global calls it when the
// tracing backend is shut down.
func (r *Reporter) Flush(ctx context.Context) {
	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()
	if len(batch) > 0 {
		r.send(batch)
	}
}

func (r *Reporter) send(batch []batchEntry) {
	body, err := json.Marshal(struct {
		Dataset string       `json:"dataset"`
		Records []batchEntry `json:"records"`
	}{Dataset: r.datasetName, Records: batch})
	if err != nil {
		r.errorLogger.Log(util.StatusWrap(err, "Failed to marshal batch"))
		return
	}

	req, err := http.NewRequest(http.MethodPost, r.ingestURL, bytes.NewReader(body))
	if err != nil {
		r.errorLogger.Log(util.StatusWrap(err, "Failed to construct ingest request"))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.errorLogger.Log(util.StatusWrap(err, "Failed to transmit batch"))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		r.errorLogger.Log(fmt.Errorf("ingest endpoint returned status %s", resp.Status))
	}
}
