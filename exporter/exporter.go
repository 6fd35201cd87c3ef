package exporter

import (
	"net/http"
	"sync"
	"time"

	"github.com/AndreZiviani/s3-price-ingester/prices"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const namespace = "aws_s3_pricing"

// Exporter implements the prometheus.Collector interface, and exports the outcome of price ingestion runs.
type Exporter struct {
	duration     prometheus.Gauge
	runErrors    prometheus.Gauge
	lastSuccess  prometheus.Gauge
	totalRuns    prometheus.Counter
	written      prometheus.Counter
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	priceMetrics map[string]*prometheus.GaugeVec
	metricsMtx   sync.RWMutex
}

// Run summarizes one ingestion run.
type Run struct {
	Duration time.Duration
	Written  int
	Records  []prices.PriceTierRecord
	Err      error
}

// NewExporter returns a new exporter of S3 price ingestion metrics.
func NewExporter() *Exporter {
	e := Exporter{
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "The duration of the last ingestion run.",
		}),
		runErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_error",
			Help:      "The error status of the last ingestion run.",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful ingestion run.",
		}),
		totalRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total S3 price ingestion runs.",
		}),
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_written_total",
			Help:      "Total price tiers upserted into the store.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Requests issued against the price list service.",
		}, []string{"code", "method"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_request_duration_seconds",
			Help:      "Latency of requests against the price list service.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}

	e.initGauges()
	return &e
}

func (e *Exporter) initGauges() {
	e.priceMetrics = map[string]*prometheus.GaugeVec{}
	e.priceMetrics["current_price"] = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "current_price",
		Help:      "Current USD price of a storage class tier.",
	}, []string{"storage_class", "begin_range", "end_range", "unit"})
}

// Describe outputs metric descriptions.
func (e *Exporter) Describe(ch chan<- *prometheus.Desc) {
	e.metricsMtx.RLock()
	defer e.metricsMtx.RUnlock()

	for _, m := range e.priceMetrics {
		m.Describe(ch)
	}
	ch <- e.duration.Desc()
	ch <- e.runErrors.Desc()
	ch <- e.lastSuccess.Desc()
	ch <- e.totalRuns.Desc()
	ch <- e.written.Desc()
	e.httpRequests.Describe(ch)
	e.httpDuration.Describe(ch)
}

// Collect outputs the metrics recorded by the last runs.
func (e *Exporter) Collect(ch chan<- prometheus.Metric) {
	e.metricsMtx.RLock()
	defer e.metricsMtx.RUnlock()

	e.duration.Collect(ch)
	e.runErrors.Collect(ch)
	e.lastSuccess.Collect(ch)
	e.totalRuns.Collect(ch)
	e.written.Collect(ch)
	e.httpRequests.Collect(ch)
	e.httpDuration.Collect(ch)

	for _, m := range e.priceMetrics {
		m.Collect(ch)
	}
}

// Observe records the outcome of a run. Prices are only replaced by a
// successful run.
func (e *Exporter) Observe(run Run) {
	e.metricsMtx.Lock()
	defer e.metricsMtx.Unlock()

	e.totalRuns.Inc()
	e.duration.Set(run.Duration.Seconds())
	e.written.Add(float64(run.Written))
	if run.Err != nil {
		e.runErrors.Set(1)
		return
	}
	e.runErrors.Set(0)
	e.lastSuccess.SetToCurrentTime()

	if run.Records == nil {
		return
	}
	e.initGauges()
	for _, r := range run.Records {
		value, err := decimal.NewFromString(r.Price)
		if err != nil {
			log.WithError(err).Errorf("error while parsing price [class=%s, begin=%s, end=%s]", r.StorageClass, r.BeginRange, r.EndRange)
			continue
		}
		log.Debugf("Setting metric: current_price{storage_class=%s, begin_range=%s, end_range=%s} = %s.", r.StorageClass, r.BeginRange, r.EndRange, value)
		e.priceMetrics["current_price"].With(prometheus.Labels{
			"storage_class": string(r.StorageClass),
			"begin_range":   r.BeginRange,
			"end_range":     r.EndRange,
			"unit":          r.Unit,
		}).Set(value.InexactFloat64())
	}
}

// InstrumentRoundTripper counts and times the requests sent through next.
func (e *Exporter) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(e.httpRequests,
		promhttp.InstrumentRoundTripperDuration(e.httpDuration, next))
}
