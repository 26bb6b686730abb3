package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/openie/internal/authmw"
	oc "github.com/linnemanlabs/openie/internal/cfg"
	"github.com/linnemanlabs/openie/internal/extract"
	"github.com/linnemanlabs/openie/internal/extract/memstore"
	"github.com/linnemanlabs/openie/internal/extract/pgstore"
	"github.com/linnemanlabs/openie/internal/extractapi"
	"github.com/linnemanlabs/openie/internal/llm/claude"
	"github.com/linnemanlabs/openie/internal/notify/slack"
	"github.com/linnemanlabs/openie/internal/postgres"
)

// maxRequestBody bounds submitted texts.
const maxRequestBody = 1 << 20

// newStore opens the postgres store when databaseURL is set and falls back
// to the in-memory store otherwise. The returned close func is never nil.
func newStore(ctx context.Context, L log.Logger, databaseURL string, reg prometheus.Registerer) (extract.Store, func(), error) {
	if databaseURL == "" {
		L.Info(ctx, "using in-memory store (no database-url configured)")
		return memstore.New(), func() {}, nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres pool: %w", err)
	}
	store, err := pgstore.New(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore init: %w", err)
	}

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "openie_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "outcome"})
	reg.MustRegister(dbQueryDuration)
	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, method, route, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(method, route, outcome).Observe(dur.Seconds())
		},
	))

	L.Info(ctx, "using postgres store")
	return store, pool.Close, nil
}

// newExtractionService builds the model provider, pipeline, metrics and
// notifier around store.
func newExtractionService(ctx context.Context, L log.Logger, appCfg *oc.Config, store extract.Store, reg prometheus.Registerer) (*extract.Service, error) {
	model, err := claude.New(appCfg.Model.Claude(), L)
	if err != nil {
		return nil, fmt.Errorf("claude provider: %w", err)
	}
	L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", model.Model())

	extractMetrics := extract.NewMetrics(reg)
	pipeline := extract.NewPipeline(model, L, extractMetrics.Hooks(), appCfg.Model.Pipeline())

	var notifier extract.Notifier
	if appCfg.SlackWebhookURL != "" {
		notifier = slack.New(appCfg.SlackWebhookURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	return extract.NewService(store, pipeline, L, extractMetrics, notifier), nil
}

// newHandler assembles the API router and its middleware stack. The
// outermost wrapper sees the raw request first and the response last.
// probes mounts the health endpoints; instrument is the metrics middleware.
func newHandler(
	L log.Logger,
	tokens []string,
	svc extractapi.ExtractionService,
	clientIP httpmw.ClientIPOptions,
	instrument func(http.Handler) http.Handler,
	probes func(chi.Router),
) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(postgres.RequestStats)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(maxRequestBody))

	probes(r)

	api := extractapi.New(L, svc)
	if len(tokens) > 0 {
		r.Group(func(r chi.Router) {
			r.Use(authmw.BearerToken(L, tokens...))
			api.RegisterRoutes(r)
		})
	} else {
		api.RegisterRoutes(r)
	}

	var h http.Handler = r
	h = httpmw.WithLogger(L)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/-/healthy" && r.URL.Path != "/-/ready"
		}),
		// AnnotateHTTPRoute renames the span to the route pattern later
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)
	h = instrument(h)
	h = httpmw.ClientIPWithOptions(clientIP)(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(L, nil)(h)
	h = httpmw.SecurityHeaders(h)
	return h
}
