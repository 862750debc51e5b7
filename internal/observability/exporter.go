package observability

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// Exporter serves a registry in the Prometheus text exposition format.
type Exporter struct {
	registry *Registry
}

func NewExporter(registry *Registry) *Exporter {
	return &Exporter{registry: registry}
}

func (e *Exporter) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(e.Format()))
}

// Format renders counters, gauges and histograms in name order.
func (e *Exporter) Format() string {
	r := e.registry
	r.mu.RLock()
	defer r.mu.RUnlock()

	var b strings.Builder
	for _, name := range sortedKeys(r.counters) {
		c := r.counters[name]
		writeHeader(&b, c.name, c.help, "counter")
		fmt.Fprintf(&b, "%s %s\n", c.name, formatFloat(c.Value()))
	}
	for _, name := range sortedKeys(r.gauges) {
		g := r.gauges[name]
		writeHeader(&b, g.name, g.help, "gauge")
		fmt.Fprintf(&b, "%s %s\n", g.name, formatFloat(g.Value()))
	}
	for _, name := range sortedKeys(r.histograms) {
		h := r.histograms[name]
		bounds, buckets, sum, count := h.Snapshot()
		writeHeader(&b, h.name, h.help, "histogram")
		for i, bound := range bounds {
			fmt.Fprintf(&b, "%s_bucket{le=%q} %d\n", h.name, formatFloat(bound), buckets[i])
		}
		fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", h.name, count)
		fmt.Fprintf(&b, "%s_sum %s\n", h.name, formatFloat(sum))
		fmt.Fprintf(&b, "%s_count %d\n", h.name, count)
	}
	return b.String()
}

func writeHeader(b *strings.Builder, name, help, kind string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	case math.IsNaN(v):
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
