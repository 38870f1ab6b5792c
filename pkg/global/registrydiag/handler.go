// Package registrydiag provides a HTTP handler that renders the
// current state of a trace-context registry and its host's open
// spans, adapted from the teacher's pattern of walking a live span
// tree under a single mutex and rendering it through a html/template
// (pkg/otel/active_spans_reporting_http_handler.go), generalised from
// OpenTelemetry spans to this module's own SpanHandle/TraceCtx model.
package registrydiag

import (
	"html/template"
	"net/http"
	"sort"

	"github.com/buildbarn/bb-disttrace/pkg/spanhost"
	"github.com/buildbarn/bb-disttrace/pkg/tracectx"
)

const pageTemplate = `<!DOCTYPE html>
<html>
<head><title>Trace context registry</title></head>
<body>
<h1>Trace context registry</h1>
<p>{{.RegisteredCount}} span(s) registered as distributed-trace roots.</p>
<table border="1" cellpadding="4">
<tr><th>Handle</th><th>Parent</th><th>Name</th><th>Trace ID</th><th>Remote parent</th></tr>
{{range .Spans}}<tr>
<td>{{.Handle}}</td>
<td>{{.Parent}}</td>
<td>{{.Name}}</td>
<td>{{.TraceID}}</td>
<td>{{.RemoteParent}}</td>
</tr>{{end}}
</table>
</body>
</html>
`

var pageTmpl = template.Must(template.New("registrydiag").Parse(pageTemplate))

type spanRow struct {
	Handle       tracectx.SpanHandle
	Parent       tracectx.SpanHandle
	Name         string
	TraceID      string
	RemoteParent string
}

type pageData struct {
	RegisteredCount int
	Spans           []spanRow
}

// Handler serves a single diagnostics page listing every span the
// associated Host currently has open, annotated with whichever
// registered TraceCtx (if any) is directly recorded on it. It does not
// run the resolution algorithm (that would mutate extension caches as
// a side effect of a GET request); it only shows directly registered
// contexts.
type Handler struct {
	host     *spanhost.Host
	registry *tracectx.Registry
}

var _ http.Handler = (*Handler)(nil)

// New creates a Handler over host's open spans and registry's
// directly-registered contexts.
func New(host *spanhost.Host, registry *tracectx.Registry) *Handler {
	return &Handler{host: host, registry: registry}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	infos := h.host.Snapshot()
	sort.Slice(infos, func(i, j int) bool { return infos[i].Handle < infos[j].Handle })

	rows := make([]spanRow, 0, len(infos))
	for _, info := range infos {
		row := spanRow{Handle: info.Handle, Parent: info.Parent, Name: info.Name, TraceID: "-", RemoteParent: "-"}
		if ctx, ok := h.registry.Lookup(info.Handle); ok {
			row.TraceID = ctx.TraceID.String()
			if ctx.RemoteParentSpan != nil {
				row.RemoteParent = ctx.RemoteParentSpan.String()
			}
		}
		rows = append(rows, row)
	}

	data := pageData{RegisteredCount: h.registry.Size(), Spans: rows}
	if err := pageTmpl.Execute(w, data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
