package main

import (
	"context"

	"github.com/go-kit/log"
	"github.com/gorilla/mux"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/endpoint"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/middleware"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/transport"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Routes builds the API router with request ids, HTTP metrics and /metrics
func Routes(endpoints endpoint.CampaignEndpoints, logger log.Logger, m *metrics.Metrics, checks ...transport.HealthCheck) *mux.Router {
	for i, c := range checks {
		checks[i].Check = recordHealth(m, c)
	}

	router := transport.NewHTTPHandler(endpoints, log.With(logger, "component", "http"), checks...)
	router.Handle("/metrics", promhttp.Handler())

	router.Use(middleware.NewRequestIDMiddleware().Middleware)
	router.Use(middleware.NewMetricsMiddleware(m).Middleware)

	return router
}

func recordHealth(m *metrics.Metrics, c transport.HealthCheck) func(context.Context) error {
	check := c.Check
	return func(ctx context.Context) error {
		err := check(ctx)
		m.SetHealthCheckStatus(c.Name, err == nil)
		return err
	}
}
