package extract

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the extraction subsystem.
type Metrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	RunEntities     prometheus.Histogram
	RunTriplets     prometheus.Histogram
	ModelCallsTotal *prometheus.CounterVec
	ModelCallTime   *prometheus.HistogramVec
	ModelTokensIn   prometheus.Counter
	ModelTokensOut  prometheus.Counter
	LinesDropped    *prometheus.CounterVec
	EntitiesSkipped *prometheus.CounterVec
	SubmitsTotal    *prometheus.CounterVec
}

// NewMetrics registers and returns extraction metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openie_runs_total",
			Help: "Total extraction runs by final status.",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openie_run_duration_seconds",
			Help:    "Duration of extraction runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s .. ~2048s
		}, []string{"status", "model"}),
		RunEntities: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openie_run_entities",
			Help:    "Entities extracted per run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		RunTriplets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "openie_run_triplets",
			Help:    "Triplets extracted per run.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		ModelCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openie_model_calls_total",
			Help: "Total language model calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ModelCallTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "openie_model_call_duration_seconds",
			Help:    "Duration of individual model calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s .. ~64s
		}, []string{"stage"}),
		ModelTokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openie_model_tokens_input_total",
			Help: "Total model input tokens consumed.",
		}),
		ModelTokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "openie_model_tokens_output_total",
			Help: "Total model output tokens consumed.",
		}),
		LinesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openie_answer_lines_dropped_total",
			Help: "Answer lines dropped by stage and reason.",
		}, []string{"stage", "reason"}),
		EntitiesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openie_entities_skipped_total",
			Help: "Entities that produced no triplets, by reason.",
		}, []string{"reason"}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "openie_submits_total",
			Help: "Total extraction submissions by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.RunEntities,
		m.RunTriplets,
		m.ModelCallsTotal,
		m.ModelCallTime,
		m.ModelTokensIn,
		m.ModelTokensOut,
		m.LinesDropped,
		m.EntitiesSkipped,
		m.SubmitsTotal,
	)

	return m
}

// Hooks returns PipelineHooks that update the corresponding metrics.
func (m *Metrics) Hooks() PipelineHooks {
	return PipelineHooks{
		OnModelCall: func(stage Stage, inputTokens, outputTokens int, duration float64, err error) {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			m.ModelCallsTotal.WithLabelValues(string(stage), outcome).Inc()
			m.ModelCallTime.WithLabelValues(string(stage)).Observe(duration)
			m.ModelTokensIn.Add(float64(inputTokens))
			m.ModelTokensOut.Add(float64(outputTokens))
		},
		OnDrop: func(stage Stage, reason DropReason, n int) {
			m.LinesDropped.WithLabelValues(string(stage), string(reason)).Add(float64(n))
		},
		OnSkip: func(reason SkipReason) {
			m.EntitiesSkipped.WithLabelValues(string(reason)).Inc()
		},
		OnComplete: func(e *CompleteEvent) {
			m.RunsTotal.WithLabelValues(string(e.Status)).Inc()
			m.RunDuration.WithLabelValues(string(e.Status), e.Model).Observe(e.Duration)
			m.RunEntities.Observe(float64(e.Entities))
			m.RunTriplets.Observe(float64(e.Triplets))
		},
	}
}
