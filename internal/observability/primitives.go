package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// scalar backs Counter and Gauge; only the exposition TYPE differs.
type scalar struct {
	name string
	help string
	kind string
	mu   sync.RWMutex
	val  float64
}

func (s *scalar) add(v float64) {
	s.mu.Lock()
	s.val += v
	s.mu.Unlock()
}

func (s *scalar) value() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.val
}

func (s *scalar) writePrometheus(w io.Writer) error {
	if err := writeHeader(w, s.name, s.help, s.kind); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %g\n", s.name, s.value())
	return err
}

type Counter struct{ s scalar }

func NewCounter(name, help string) *Counter {
	return &Counter{s: scalar{name: name, help: help, kind: "counter"}}
}

func (c *Counter) Inc() {
	if c == nil {
		return
	}
	c.s.add(1)
}

func (c *Counter) Add(v float64) {
	if c == nil || v < 0 {
		return
	}
	c.s.add(v)
}

func (c *Counter) Value() float64 {
	if c == nil {
		return 0
	}
	return c.s.value()
}

func (c *Counter) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.s.writePrometheus(w)
}

type Gauge struct{ s scalar }

func NewGauge(name, help string) *Gauge {
	return &Gauge{s: scalar{name: name, help: help, kind: "gauge"}}
}

func (g *Gauge) Set(v float64) {
	if g == nil {
		return
	}
	g.s.mu.Lock()
	g.s.val = v
	g.s.mu.Unlock()
}

func (g *Gauge) Inc() {
	if g == nil {
		return
	}
	g.s.add(1)
}

func (g *Gauge) Dec() {
	if g == nil {
		return
	}
	g.s.add(-1)
}

func (g *Gauge) Value() float64 {
	if g == nil {
		return 0
	}
	return g.s.value()
}

func (g *Gauge) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.s.writePrometheus(w)
}

// labeled backs CounterVec and GaugeVec, keyed by the rendered label set.
type labeled struct {
	name       string
	help       string
	kind       string
	labelNames []string
	mu         sync.RWMutex
	values     map[string]float64
}

func (l *labeled) writePrometheus(w io.Writer) error {
	if err := writeHeader(w, l.name, l.help, l.kind); err != nil {
		return err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, k := range sortedKeys(l.values) {
		if _, err := fmt.Fprintf(w, "%s%s %g\n", l.name, k, l.values[k]); err != nil {
			return err
		}
	}
	return nil
}

type CounterVec struct{ l labeled }

func NewCounterVec(name, help string, labels []string) *CounterVec {
	return &CounterVec{l: labeled{name: name, help: help, kind: "counter", labelNames: labels, values: map[string]float64{}}}
}

func (c *CounterVec) Inc(values ...string) { c.Add(1, values...) }

func (c *CounterVec) Add(v float64, values ...string) {
	if c == nil || v < 0 {
		return
	}
	lbl := labelString(c.l.labelNames, values)
	c.l.mu.Lock()
	c.l.values[lbl] += v
	c.l.mu.Unlock()
}

func (c *CounterVec) Value(values ...string) float64 {
	if c == nil {
		return 0
	}
	lbl := labelString(c.l.labelNames, values)
	c.l.mu.RLock()
	defer c.l.mu.RUnlock()
	return c.l.values[lbl]
}

func (c *CounterVec) WritePrometheus(w io.Writer) error {
	if c == nil {
		return nil
	}
	return c.l.writePrometheus(w)
}

type GaugeVec struct{ l labeled }

func NewGaugeVec(name, help string, labels []string) *GaugeVec {
	return &GaugeVec{l: labeled{name: name, help: help, kind: "gauge", labelNames: labels, values: map[string]float64{}}}
}

func (g *GaugeVec) Set(v float64, values ...string) {
	if g == nil {
		return
	}
	lbl := labelString(g.l.labelNames, values)
	g.l.mu.Lock()
	g.l.values[lbl] = v
	g.l.mu.Unlock()
}

func (g *GaugeVec) WritePrometheus(w io.Writer) error {
	if g == nil {
		return nil
	}
	return g.l.writePrometheus(w)
}

type HistogramVec struct {
	name       string
	help       string
	labelNames []string
	buckets    []float64
	mu         sync.RWMutex
	values     map[string]*histogram
}

type histogram struct {
	counts []uint64 // cumulative per bucket, last slot is +Inf
	sum    float64
	total  uint64
}

func NewHistogramVec(name, help string, labels []string, buckets []float64) *HistogramVec {
	if len(buckets) == 0 {
		buckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	}
	return &HistogramVec{name: name, help: help, labelNames: labels, buckets: buckets, values: map[string]*histogram{}}
}

func (h *HistogramVec) Observe(v float64, values ...string) {
	if h == nil {
		return
	}
	lbl := labelString(h.labelNames, values)
	h.mu.Lock()
	defer h.mu.Unlock()
	hist, ok := h.values[lbl]
	if !ok {
		hist = &histogram{counts: make([]uint64, len(h.buckets)+1)}
		h.values[lbl] = hist
	}
	hist.sum += v
	hist.total++
	for i, b := range h.buckets {
		if v <= b {
			hist.counts[i]++
		}
	}
	hist.counts[len(hist.counts)-1]++
}

func (h *HistogramVec) WritePrometheus(w io.Writer) error {
	if h == nil {
		return nil
	}
	if err := writeHeader(w, h.name, h.help, "histogram"); err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	keys := make([]string, 0, len(h.values))
	for k := range h.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := h.values[k]
		for i, b := range h.buckets {
			if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, fmt.Sprintf("%g", b)), v.counts[i]); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, withLe(k, "+Inf"), v.counts[len(v.counts)-1]); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s_sum%s %g\n%s_count%s %d\n", h.name, k, v.sum, h.name, k, v.total); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(w io.Writer, name, help, kind string) error {
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
	return err
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func labelString(names []string, values []string) string {
	if len(names) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("{")
	for i, name := range names {
		if i > 0 {
			b.WriteString(",")
		}
		val := "unknown"
		if i < len(values) && values[i] != "" {
			val = values[i]
		}
		b.WriteString(name)
		b.WriteString("=\"")
		b.WriteString(escapeLabel(val))
		b.WriteString("\"")
	}
	b.WriteString("}")
	return b.String()
}

func escapeLabel(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	v = strings.ReplaceAll(v, "\"", "\\\"")
	return strings.ReplaceAll(v, "\n", "\\n")
}

func withLe(labels string, le string) string {
	le = escapeLabel(le)
	if labels == "" || labels == "{}" {
		return "{le=\"" + le + "\"}"
	}
	return strings.TrimSuffix(labels, "}") + ",le=\"" + le + "\"}"
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	if len(status) < 3 {
		return false
	}
	return status[0] == '5'
}
