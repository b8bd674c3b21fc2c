package endpoint

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
)

// InstrumentingMiddleware counts calls per endpoint and outcome. Business
// failures travel in the response, so the outcome comes from endpoint.Failer.
func InstrumentingMiddleware(m *metrics.Metrics) func(name string) endpoint.Middleware {
	return func(name string) endpoint.Middleware {
		return func(next endpoint.Endpoint) endpoint.Endpoint {
			return func(ctx context.Context, request any) (response any, err error) {
				defer func(begin time.Time) {
					outcome := "success"
					if err != nil {
						outcome = "error"
					} else if f, ok := response.(endpoint.Failer); ok && f.Failed() != nil {
						outcome = "failed"
					}
					m.RecordEndpoint(name, outcome, time.Since(begin).Seconds())
				}(time.Now())
				return next(ctx, request)
			}
		}
	}
}
