package metrics

import (
	"cmp"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"
)

// expo renders the Prometheus text format.
type expo struct {
	sb strings.Builder
}

func (e *expo) family(name, typ, help string) {
	fmt.Fprintf(&e.sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, typ)
}

func (e *expo) sample(name, labels string, value string) {
	if labels != "" {
		fmt.Fprintf(&e.sb, "%s{%s} %s\n", name, labels, value)
		return
	}
	fmt.Fprintf(&e.sb, "%s %s\n", name, value)
}

func (e *expo) histogram(name, labels string, h *Histogram) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sep := ""
	if labels != "" {
		sep = ","
	}
	for i, b := range h.bounds {
		e.sample(name+"_bucket", fmt.Sprintf("%s%sle=%q", labels, sep, strconv.FormatFloat(b, 'g', -1, 64)), strconv.FormatUint(h.buckets[i], 10))
	}
	e.sample(name+"_bucket", labels+sep+`le="+Inf"`, strconv.FormatUint(h.count, 10))
	e.sample(name+"_sum", labels, formatFloat(h.sum))
	e.sample(name+"_count", labels, strconv.FormatUint(h.count, 10))
}

func (e *expo) gap() { e.sb.WriteByte('\n') }

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func routeLabels(r route) string {
	return fmt.Sprintf("endpoint=%q,method=%q", r.endpoint, r.method)
}

func compareRoutes(a, b route) int {
	return cmp.Or(cmp.Compare(a.endpoint, b.endpoint), cmp.Compare(a.method, b.method))
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		w.Write([]byte(m.render()))
	}
}

func (m *Metrics) render() string {
	var e expo

	e.family("reelfetch_uptime_seconds", "gauge", "Time since the server started")
	e.sample("reelfetch_uptime_seconds", "", formatFloat(time.Since(m.startTime).Seconds()))
	e.gap()

	e.family("reelfetch_progress_subscribers_active", "gauge", "Attached SSE and websocket progress viewers")
	e.sample("reelfetch_progress_subscribers_active", "", strconv.FormatInt(m.listeners.Load(), 10))
	e.gap()

	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	if m.active != nil {
		active = m.active()
	}
	e.family("reelfetch_downloads_active", "gauge", "Download jobs not yet finished")
	e.sample("reelfetch_downloads_active", "", strconv.Itoa(active))
	e.gap()

	if len(m.requests) > 0 {
		routes := slices.SortedFunc(maps.Keys(m.requests), compareRoutes)

		e.family("reelfetch_http_requests_total", "counter", "Total HTTP requests")
		for _, rt := range routes {
			e.sample("reelfetch_http_requests_total", routeLabels(rt), strconv.FormatUint(m.requests[rt].Load(), 10))
		}
		e.gap()

		e.family("reelfetch_http_request_duration_seconds", "histogram", "HTTP request latency")
		for _, rt := range routes {
			e.histogram("reelfetch_http_request_duration_seconds", routeLabels(rt), m.latency[rt])
		}
		e.gap()
	}

	if len(m.errors) > 0 {
		keys := slices.SortedFunc(maps.Keys(m.errors), func(a, b routeStatus) int {
			return cmp.Or(compareRoutes(a.route, b.route), cmp.Compare(a.class, b.class))
		})
		e.family("reelfetch_http_errors_total", "counter", "Total HTTP errors by status class")
		for _, k := range keys {
			labels := fmt.Sprintf("%s,status_class=\"%dxx\"", routeLabels(k.route), k.class/100)
			e.sample("reelfetch_http_errors_total", labels, strconv.FormatUint(m.errors[k].Load(), 10))
		}
		e.gap()
	}

	if len(m.jobs) > 0 {
		e.family("reelfetch_job_duration_seconds", "histogram", "Download job duration by outcome")
		for _, outcome := range slices.Sorted(maps.Keys(m.jobs)) {
			e.histogram("reelfetch_job_duration_seconds", fmt.Sprintf("outcome=%q", outcome), m.jobs[outcome])
		}
		e.gap()
	}

	if len(m.gauges) > 0 {
		e.family("reelfetch_gauge", "gauge", "Gauges read at scrape time")
		for _, name := range slices.Sorted(maps.Keys(m.gauges)) {
			e.sample("reelfetch_gauge", fmt.Sprintf("name=%q", name), formatFloat(m.gauges[name]()))
		}
		e.gap()
	}

	if len(m.counters) > 0 {
		e.family("reelfetch_counter", "counter", "Named event counters")
		for _, name := range slices.Sorted(maps.Keys(m.counters)) {
			e.sample("reelfetch_counter", fmt.Sprintf("name=%q", name), strconv.FormatUint(m.counters[name].Load(), 10))
		}
	}

	return e.sb.String()
}
