package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusObserver implements bcache.MetricsObserver and
// kalloc.MetricsObserver, so it can be passed to kcore.WithMetricsCollector.
type PrometheusObserver struct {
	lookups     *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	transfers   *prometheus.CounterVec
	transferDur *prometheus.HistogramVec
	allocs      *prometheus.CounterVec
	frees       *prometheus.CounterVec
	addRefs     prometheus.Counter
	freeFrames  prometheus.Gauge
}

// NewPrometheusObserver creates an observer and registers its collectors with
// reg. A nil reg registers with prometheus.DefaultRegisterer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &PrometheusObserver{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kcore_bcache_lookups_total",
			Help: "Block cache lookups by result",
		}, []string{"result"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kcore_bcache_evictions_total",
			Help: "Cached blocks evicted, by bucket",
		}, []string{"bucket"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kcore_disk_transfers_total",
			Help: "Disk transfers issued by the block cache",
		}, []string{"op", "status"}),
		transferDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kcore_disk_transfer_seconds",
			Help:    "Latency of disk transfers",
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 12),
		}, []string{"op"}),
		allocs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kcore_kalloc_allocs_total",
			Help: "Page allocations by result",
		}, []string{"result"}),
		frees: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kcore_kalloc_frees_total",
			Help: "Page frees, split by whether the frame was reclaimed",
		}, []string{"reclaimed"}),
		addRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kcore_kalloc_addrefs_total",
			Help: "References added to shared pages",
		}),
		freeFrames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "kcore_kalloc_free_frames",
			Help: "Frames on the free list, as last reported by SetFreeFrames",
		}),
	}

	for _, c := range []prometheus.Collector{
		o.lookups, o.evictions, o.transfers, o.transferDur,
		o.allocs, o.frees, o.addRefs, o.freeFrames,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return o, nil
}

// OnLookup implements bcache.MetricsObserver.
func (o *PrometheusObserver) OnLookup(hit bool) {
	if hit {
		o.lookups.WithLabelValues("hit").Inc()
	} else {
		o.lookups.WithLabelValues("miss").Inc()
	}
}

// OnEvict implements bcache.MetricsObserver.
func (o *PrometheusObserver) OnEvict(bucket int) {
	o.evictions.WithLabelValues(strconv.Itoa(bucket)).Inc()
}

// OnTransfer implements bcache.MetricsObserver.
func (o *PrometheusObserver) OnTransfer(write bool, d time.Duration, err error) {
	op := "read"
	if write {
		op = "write"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	o.transfers.WithLabelValues(op, status).Inc()
	o.transferDur.WithLabelValues(op).Observe(d.Seconds())
}

// OnAlloc implements kalloc.MetricsObserver.
func (o *PrometheusObserver) OnAlloc(ok bool) {
	if ok {
		o.allocs.WithLabelValues("success").Inc()
	} else {
		o.allocs.WithLabelValues("exhausted").Inc()
	}
}

// OnFree implements kalloc.MetricsObserver.
func (o *PrometheusObserver) OnFree(reclaimed bool) {
	o.frees.WithLabelValues(strconv.FormatBool(reclaimed)).Inc()
}

// OnAddRef implements kalloc.MetricsObserver.
func (o *PrometheusObserver) OnAddRef() {
	o.addRefs.Inc()
}

// SetFreeFrames records the current free-list length. The allocator does not
// push this value, so callers sample it (for example from kalloc.Stats).
func (o *PrometheusObserver) SetFreeFrames(n int) {
	o.freeFrames.Set(float64(n))
}
