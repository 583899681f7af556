package metrics

import (
	"net/http"

	"github.com/ferreirogomes/custodia/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder agrupa os coletores Prometheus do serviço num registro próprio.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	royalties  prometheus.Counter
	volume     prometheus.Counter
	drift      *prometheus.CounterVec
}

// NewRecorder cria e registra os coletores sob o namespace informado.
func NewRecorder(namespace string) *Recorder {
	if namespace == "" {
		namespace = "custodia"
	}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "operations_total",
			Help:      "Operações de liquidação por operação e resultado.",
		}, []string{"op", "outcome"}),
		royalties: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "royalties_total",
			Help:      "Soma dos royalties pagos a criadores.",
		}),
		volume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "settlement",
			Name:      "volume_total",
			Help:      "Soma dos preços de vendas concluídas.",
		}),
		drift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "custody",
			Name:      "drift_total",
			Help:      "Divergências entre a custódia registrada e a conta na Solana.",
		}, []string{"reason"}),
	}
	r.registry.MustRegister(r.operations, r.royalties, r.volume, r.drift)
	r.registry.MustRegister(collectors.NewGoCollector())
	return r
}

// Observe registra o resultado de uma operação de liquidação. outcome é "ok"
// ou o tipo de falha.
func (r *Recorder) Observe(op, outcome string, s *models.Settlement) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(op, outcome).Inc()
	if s == nil || s.Kind != models.SettlementBuy {
		return
	}
	r.volume.Add(float64(s.Price))
	r.royalties.Add(float64(s.RoyaltyTotal()))
}

// CustodyDrift conta uma divergência detectada pelo monitor de custódia.
func (r *Recorder) CustodyDrift(reason string) {
	if r == nil {
		return
	}
	r.drift.WithLabelValues(reason).Inc()
}

// Registry expõe o registro para testes e composição.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Handler serve as métricas no formato de exposição do Prometheus.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
