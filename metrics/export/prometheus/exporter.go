package prometheus

import (
	"bufio"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is implemented by *otpgate.Engine.
type Source interface {
	MetricsSnapshot() otpgate.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine counters in the Prometheus text exposition format.
type Exporter struct {
	source Source
}

func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves the current snapshot. Mount it on /metrics.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_ = e.Write(w)
	})
}

// Render returns the exposition as a string. An engine with metrics disabled renders
// nothing.
func (e *Exporter) Render() string {
	var b strings.Builder
	_ = e.Write(&b)
	return b.String()
}

// Write renders one snapshot to w.
func (e *Exporter) Write(w io.Writer) error {
	if e == nil || e.source == nil {
		return nil
	}

	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return nil
	}

	bw := bufio.NewWriterSize(w, 4096)
	for _, def := range internaldefs.CounterDefs {
		writeCounter(bw, def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snapshot.Histograms[def.ID]))
		writeHistogram(bw, def.Name, def.Help, cumulative)
	}
	writeCounter(bw, internaldefs.AuditDroppedName, "Audit events dropped by backpressure or lost to a failing sink.", dropped)
	return bw.Flush()
}

func writeHeader(w *bufio.Writer, name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func writeCounter(w *bufio.Writer, name, help string, value uint64) {
	writeHeader(w, name, help, "counter")
	w.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

// writeHistogram emits buckets and count. The engine keeps no sample sum, so _sum is
// always 0.
func writeHistogram(w *bufio.Writer, name, help string, cumulative [8]uint64) {
	writeHeader(w, name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.WriteString(name + `_bucket{le="` + le + `"} ` + strconv.FormatUint(cumulative[i], 10) + "\n")
	}
	w.WriteString(name + "_count " + strconv.FormatUint(cumulative[len(cumulative)-1], 10) + "\n")
	w.WriteString(name + "_sum 0\n")
}

var helpEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`)

func escapeHelp(help string) string {
	return helpEscaper.Replace(help)
}
