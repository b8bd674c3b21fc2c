package middleware

import (
	"context"
	"time"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
)

// serviceMetricsMiddleware records lifecycle and preview metrics. Calls it
// does not measure go straight to the embedded service.
type serviceMetricsMiddleware struct {
	service.Service
	metrics *metrics.Metrics
}

// NewServiceMetricsMiddleware creates a new service metrics middleware
func NewServiceMetricsMiddleware(metrics *metrics.Metrics) func(service.Service) service.Service {
	return func(next service.Service) service.Service {
		return &serviceMetricsMiddleware{
			Service: next,
			metrics: metrics,
		}
	}
}

func (mw *serviceMetricsMiddleware) record(action models.Action, c *models.Campaign, err error) (*models.Campaign, error) {
	if err == nil {
		mw.metrics.RecordTransition(string(action), string(c.Status))
	}
	return c, err
}

func (mw *serviceMetricsMiddleware) ScheduleCampaign(ctx context.Context, id int, sendAt time.Time) (*models.Campaign, error) {
	c, err := mw.Service.ScheduleCampaign(ctx, id, sendAt)
	return mw.record(models.ActionSchedule, c, err)
}

func (mw *serviceMetricsMiddleware) UnscheduleCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := mw.Service.UnscheduleCampaign(ctx, id)
	return mw.record(models.ActionUnschedule, c, err)
}

func (mw *serviceMetricsMiddleware) StartCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := mw.Service.StartCampaign(ctx, id)
	return mw.record(models.ActionStart, c, err)
}

func (mw *serviceMetricsMiddleware) PauseCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := mw.Service.PauseCampaign(ctx, id)
	return mw.record(models.ActionPause, c, err)
}

func (mw *serviceMetricsMiddleware) ResumeCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := mw.Service.ResumeCampaign(ctx, id)
	return mw.record(models.ActionResume, c, err)
}

func (mw *serviceMetricsMiddleware) CancelCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := mw.Service.CancelCampaign(ctx, id)
	return mw.record(models.ActionCancel, c, err)
}

func (mw *serviceMetricsMiddleware) FinishCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := mw.Service.FinishCampaign(ctx, id)
	return mw.record(models.ActionFinish, c, err)
}

func (mw *serviceMetricsMiddleware) PreviewCampaign(ctx context.Context, id int) (*models.Preview, error) {
	p, err := mw.Service.PreviewCampaign(ctx, id)
	if err == nil {
		mw.metrics.RecordPreviewWarnings(len(p.Warnings))
	}
	return p, err
}
