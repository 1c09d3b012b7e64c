package game

import (
	"time"

	"github.com/annel0/shard-realms/internal/apperr"
	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	moves      *prometheus.CounterVec
	rejections *prometheus.CounterVec
	battles    *prometheus.CounterVec
	shards     *prometheus.CounterVec
	worlds     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

func newEngineMetrics(reg prometheus.Registerer) (*engineMetrics, error) {
	m := &engineMetrics{
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "game",
			Name:      "moves_total",
			Help:      "Успешные перемещения игроков.",
		}, []string{"kind"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "game",
			Name:      "rejections_total",
			Help:      "Отклонённые действия по операции и причине.",
		}, []string{"op", "reason"}),
		battles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "game",
			Name:      "battles_total",
			Help:      "Бои по исходу (started, won, lost, resolved_win, resolved_lose).",
		}, []string{"result"}),
		shards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "game",
			Name:      "shards_total",
			Help:      "Начисленные и списанные шарды.",
		}, []string{"direction"}),
		worlds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "game",
			Name:      "worlds_total",
			Help:      "Созданные и удалённые миры.",
		}, []string{"event"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "game",
			Name:      "operation_duration_seconds",
			Help:      "Длительность операций движка.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.moves, m.rejections, m.battles, m.shards, m.worlds, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *engineMetrics) observe(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		m.rejections.WithLabelValues(op, apperr.KindOf(err).String()).Inc()
	}
}

func (m *engineMetrics) credited(amount int64) {
	m.shards.WithLabelValues("credit").Add(float64(amount))
}

func (m *engineMetrics) debited(amount int64) {
	m.shards.WithLabelValues("debit").Add(float64(amount))
}
