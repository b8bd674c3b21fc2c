package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// A completion that races an edit of the same campaign loses the row lock.
// It is retried this many times, waiting attempt*finishRetryDelay in between.
var (
	finishAttempts   = 5
	finishRetryDelay = 50 * time.Millisecond
)

// finishCampaign moves a campaign to finished, retrying while another request
// holds its row
func finishCampaign(ctx context.Context, engine Engine, id int) (*models.Campaign, error) {
	for attempt := 1; ; attempt++ {
		c, err := engine.FinishCampaign(ctx, id)
		if err == nil || !apperrors.IsConcurrentModification(err) || attempt >= finishAttempts {
			return c, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(attempt) * finishRetryDelay):
		}
	}
}

// handleCompletion decodes a completion event and finishes the campaign. Bad
// payloads and refused transitions are logged and returned; lock contention
// is retried before giving up.
func handleCompletion(ctx context.Context, engine Engine, logger log.Logger, m *metrics.Metrics, backend string, payload []byte) error {
	var done models.Completion
	if err := json.Unmarshal(payload, &done); err != nil {
		level.Warn(logger).Log("msg", "invalid completion event", "backend", backend, "err", err)
		return err
	}

	if _, err := finishCampaign(ctx, engine, done.CampaignID); err != nil {
		level.Warn(logger).Log("msg", "could not finish campaign", "campaign_id", done.CampaignID, "err", err)
		return err
	}
	m.RecordMessages(backend, done.Sent)
	level.Info(logger).Log("msg", "campaign delivered", "campaign_id", done.CampaignID, "sent", done.Sent)
	return nil
}

// redeliver reports whether a completion that failed with err should be
// handed back to the broker instead of being acknowledged
func redeliver(err error) bool {
	return apperrors.IsConcurrentModification(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
