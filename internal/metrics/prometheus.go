package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
)

const metricPrefix = "lobby_signaling_relay_"

// GaugeFunc reports point-in-time values (room and connection counts) that
// are exposed as gauges next to the event counters.
type GaugeFunc func() map[string]int

var labelEscaper = strings.NewReplacer("\\", "\\\\", "\"", "\\\"", "\n", "\\n")

// PrometheusHandler exposes m in Prometheus' text exposition format. Every
// counter is a sample of a single metric with an `event` label. gauges may be
// nil.
func PrometheusHandler(m *Metrics, gauges GaugeFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			http.Error(w, "metrics not configured", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		writeCounters(w, m.Snapshot())
		if gauges != nil {
			writeGauges(w, gauges())
		}
	})
}

func writeCounters(w io.Writer, snap map[string]uint64) {
	name := metricPrefix + "events_total"
	_, _ = fmt.Fprintf(w, "# HELP %s Signaling relay event counters.\n", name)
	_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for _, k := range sortedKeys(snap) {
		_, _ = fmt.Fprintf(w, "%s{event=\"%s\"} %d\n", name, labelEscaper.Replace(k), snap[k])
	}
}

func writeGauges(w io.Writer, values map[string]int) {
	for _, k := range sortedKeys(values) {
		name := metricPrefix + k
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, values[k])
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
