package delivery

import (
	"context"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/content"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
)

// Engine is the part of the campaign service the delivery side calls back into
type Engine interface {
	GetCampaign(ctx context.Context, id int) (*models.Campaign, error)
	FinishCampaign(ctx context.Context, id int) (*models.Campaign, error)
}

// Mailer hands a rendered message to the mail transport
type Mailer interface {
	Send(ctx context.Context, msg models.Message) error
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct {
	logger log.Logger
}

// NewLogMailer creates a mailer for local development
func NewLogMailer(logger log.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// Send implements Mailer
func (m *LogMailer) Send(ctx context.Context, msg models.Message) error {
	level.Debug(m.logger).Log("msg", "message sent", "campaign_id", msg.CampaignID, "to", msg.To, "subject", msg.Subject)
	return nil
}

// Resolver walks the recipients of a campaign and renders one message each
type Resolver struct {
	subscribers service.SubscriberRepository
	renderer    *content.Renderer
	batchSize   int
}

// NewResolver creates a resolver that pages through subscribers batchSize at a time
func NewResolver(subscribers service.SubscriberRepository, renderer *content.Renderer, batchSize int) *Resolver {
	if batchSize < 1 {
		batchSize = 500
	}
	return &Resolver{
		subscribers: subscribers,
		renderer:    renderer,
		batchSize:   batchSize,
	}
}

// Resolve calls fn for every subscriber of c's lists with an id above afterID.
// Subscribers on several lists are visited once and only enabled ones are
// sent to. It returns the id of the last subscriber handled so a stopped run
// can continue from there, and the number of messages passed to fn.
func (r *Resolver) Resolve(ctx context.Context, c *models.Campaign, afterID int, fn func(models.Message) error) (int, int, error) {
	tpl, err := r.renderer.Compile(c)
	if err != nil {
		return afterID, 0, err
	}

	listIDs := c.ListIDs()
	if len(listIDs) == 0 {
		return afterID, 0, nil
	}

	last, count := afterID, 0
	seen := make(map[string]struct{})
	for {
		if err := ctx.Err(); err != nil {
			return last, count, err
		}

		subs, err := r.subscribers.ListSubscribers(ctx, listIDs, last, r.batchSize)
		if err != nil {
			return last, count, fmt.Errorf("failed to load subscribers: %w", err)
		}
		if len(subs) == 0 {
			return last, count, nil
		}

		for _, sub := range subs {
			if err := ctx.Err(); err != nil {
				return last, count, err
			}
			if _, dup := seen[sub.UUID]; dup || sub.Status != models.SubscriberStatusEnabled {
				last = sub.ID
				continue
			}
			seen[sub.UUID] = struct{}{}

			out, err := tpl.Execute(sub)
			if err != nil {
				return last, count, err
			}
			msg := models.Message{
				CampaignID:    c.ID,
				From:          c.FromEmail,
				To:            sub.Email,
				Subject:       out.Subject,
				HTMLBody:      out.HTML,
				PlainTextBody: out.PlainText,
			}
			if err := fn(msg); err != nil {
				return last, count, err
			}
			last = sub.ID
			count++
		}
	}
}
