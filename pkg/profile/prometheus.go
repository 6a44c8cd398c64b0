package profile

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// PrometheusTracer exports operator counters as Prometheus metrics labeled by
// operator id.
type PrometheusTracer struct {
	dbHits     *prometheus.CounterVec
	rows       *prometheus.CounterVec
	openScopes *prometheus.GaugeVec
}

// NewPrometheusTracer registers the projection metrics with reg.
func NewPrometheusTracer(reg prometheus.Registerer) *PrometheusTracer {
	return &PrometheusTracer{
		dbHits: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nornicproj_operator_db_hits_total",
			Help: "Storage reads performed by compiled projection operators.",
		}, []string{"operator"}),
		rows: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "nornicproj_operator_rows_total",
			Help: "Rows processed by compiled projection operators.",
		}, []string{"operator"}),
		openScopes: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "nornicproj_operator_open_scopes",
			Help: "Instrumentation scopes currently open per operator.",
		}, []string{"operator"}),
	}
}

// OpenScope implements Tracer.
func (p *PrometheusTracer) OpenScope(op OperatorID) Scope {
	label := strconv.Itoa(int(op))
	open := p.openScopes.WithLabelValues(label)
	open.Inc()
	return &promScope{
		dbHits: p.dbHits.WithLabelValues(label),
		rows:   p.rows.WithLabelValues(label),
		open:   open,
	}
}

type promScope struct {
	dbHits prometheus.Counter
	rows   prometheus.Counter
	open   prometheus.Gauge
	closed bool
}

func (s *promScope) DBHit() { s.dbHits.Inc() }
func (s *promScope) Row()   { s.rows.Inc() }

// Close is not safe for concurrent use; a scope belongs to one call.
func (s *promScope) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.open.Dec()
}

// WriteMetrics writes every gathered metric family in the Prometheus text
// exposition format.
func WriteMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
