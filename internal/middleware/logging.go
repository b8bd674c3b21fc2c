package middleware

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	reqcontext "github.com/prajwalbharadwajbm/mailbeacon/internal/context"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
)

// loggingMiddleware implements logging middleware for service.Service
type loggingMiddleware struct {
	logger log.Logger
	next   service.Service
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger log.Logger) func(service.Service) service.Service {
	return func(next service.Service) service.Service {
		return &loggingMiddleware{
			logger: logger,
			next:   next,
		}
	}
}

// log writes one line per call. Rejected requests log at warn, failures at error.
func (mw *loggingMiddleware) log(ctx context.Context, method string, begin time.Time, err error, kv ...any) {
	info := reqcontext.GetRequestInfo(ctx)

	logFields := []any{
		"method", method,
		"request_id", info.ID,
	}
	logFields = append(logFields, kv...)
	logFields = append(logFields, "took", time.Since(begin))
	if info.RemoteAddr != "" {
		logFields = append(logFields, "remote_addr", info.RemoteAddr)
	}

	if err == nil {
		logFields = append(logFields, "error", nil, "success", true)
		level.Info(mw.logger).Log(logFields...)
		return
	}

	logFields = append(logFields, "error", err.Error(), "success", false)
	if isClientError(err) {
		level.Warn(mw.logger).Log(logFields...)
		return
	}
	level.Error(mw.logger).Log(logFields...)
}

func isClientError(err error) bool {
	return apperrors.IsValidation(err) || apperrors.IsInvalidState(err) ||
		apperrors.IsNotFound(err) || apperrors.IsConcurrentModification(err)
}

func statusOf(c *models.Campaign) any {
	if c == nil {
		return nil
	}
	return c.Status
}

func (mw *loggingMiddleware) CreateCampaign(ctx context.Context, req models.CreateCampaignRequest) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		id := 0
		if c != nil {
			id = c.ID
		}
		mw.log(ctx, "CreateCampaign", begin, err, "campaign_id", id, "content_type", req.ContentType, "lists", len(req.Lists))
	}(time.Now())
	return mw.next.CreateCampaign(ctx, req)
}

func (mw *loggingMiddleware) UpdateCampaign(ctx context.Context, id int, req models.UpdateCampaignRequest) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "UpdateCampaign", begin, err, "campaign_id", id, "send_at", req.SendAt != nil, "status", statusOf(c))
	}(time.Now())
	return mw.next.UpdateCampaign(ctx, id, req)
}

func (mw *loggingMiddleware) GetCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "GetCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.GetCampaign(ctx, id)
}

func (mw *loggingMiddleware) ListCampaigns(ctx context.Context, q models.CampaignQuery) (page *models.CampaignPage, err error) {
	defer func(begin time.Time) {
		total := 0
		if page != nil {
			total = page.Total
		}
		mw.log(ctx, "ListCampaigns", begin, err, "query", q.Search, "order_by", q.OrderBy, "page", q.Page, "total", total)
	}(time.Now())
	return mw.next.ListCampaigns(ctx, q)
}

func (mw *loggingMiddleware) DeleteCampaign(ctx context.Context, id int) (err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "DeleteCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.DeleteCampaign(ctx, id)
}

func (mw *loggingMiddleware) CloneCampaign(ctx context.Context, id int, name string) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		cloneID := 0
		if c != nil {
			cloneID = c.ID
		}
		mw.log(ctx, "CloneCampaign", begin, err, "campaign_id", id, "clone_id", cloneID)
	}(time.Now())
	return mw.next.CloneCampaign(ctx, id, name)
}

func (mw *loggingMiddleware) ScheduleCampaign(ctx context.Context, id int, sendAt time.Time) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "ScheduleCampaign", begin, err, "campaign_id", id, "send_at", sendAt.UTC())
	}(time.Now())
	return mw.next.ScheduleCampaign(ctx, id, sendAt)
}

func (mw *loggingMiddleware) UnscheduleCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "UnscheduleCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.UnscheduleCampaign(ctx, id)
}

func (mw *loggingMiddleware) StartCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "StartCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.StartCampaign(ctx, id)
}

func (mw *loggingMiddleware) PauseCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "PauseCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.PauseCampaign(ctx, id)
}

func (mw *loggingMiddleware) ResumeCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "ResumeCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.ResumeCampaign(ctx, id)
}

func (mw *loggingMiddleware) CancelCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "CancelCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.CancelCampaign(ctx, id)
}

func (mw *loggingMiddleware) FinishCampaign(ctx context.Context, id int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "FinishCampaign", begin, err, "campaign_id", id)
	}(time.Now())
	return mw.next.FinishCampaign(ctx, id)
}

func (mw *loggingMiddleware) StartDueCampaigns(ctx context.Context) (started int, err error) {
	defer func(begin time.Time) {
		// the scheduler polls constantly, idle ticks are not worth a line
		if started == 0 && err == nil {
			return
		}
		mw.log(ctx, "StartDueCampaigns", begin, err, "started", started)
	}(time.Now())
	return mw.next.StartDueCampaigns(ctx)
}

func (mw *loggingMiddleware) SetLists(ctx context.Context, id int, listIDs []int) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "SetLists", begin, err, "campaign_id", id, "lists", len(listIDs))
	}(time.Now())
	return mw.next.SetLists(ctx, id, listIDs)
}

func (mw *loggingMiddleware) SetTags(ctx context.Context, id int, tags []string) (c *models.Campaign, err error) {
	defer func(begin time.Time) {
		mw.log(ctx, "SetTags", begin, err, "campaign_id", id, "tags", len(tags))
	}(time.Now())
	return mw.next.SetTags(ctx, id, tags)
}

func (mw *loggingMiddleware) ConvertContent(ctx context.Context, id int, to models.ContentType) (res *models.ConversionResult, err error) {
	defer func(begin time.Time) {
		lost := false
		if res != nil {
			lost = res.FormattingLost
		}
		mw.log(ctx, "ConvertContent", begin, err, "campaign_id", id, "to", to, "formatting_lost", lost)
	}(time.Now())
	return mw.next.ConvertContent(ctx, id, to)
}

func (mw *loggingMiddleware) PreviewCampaign(ctx context.Context, id int) (p *models.Preview, err error) {
	defer func(begin time.Time) {
		warnings := 0
		if p != nil {
			warnings = len(p.Warnings)
		}
		mw.log(ctx, "PreviewCampaign", begin, err, "campaign_id", id, "warnings", warnings)
	}(time.Now())
	return mw.next.PreviewCampaign(ctx, id)
}
