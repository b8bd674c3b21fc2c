package service

import (
	"context"
	"time"

	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// transition applies action to the campaign under its row lock. check runs
// after the status table allows the action and before anything changes.
func (s *CampaignService) transition(ctx context.Context, id int, action models.Action, check func(c *models.Campaign) error) (*models.Campaign, models.CampaignStatus, error) {
	var prev models.CampaignStatus
	c, err := s.campaigns.Mutate(ctx, id, func(c *models.Campaign) error {
		next, ok := c.Status.Next(action)
		if !ok {
			return apperrors.NewInvalidState(string(c.Status), string(action))
		}
		if check != nil {
			if err := check(c); err != nil {
				return err
			}
		}

		prev = c.Status
		c.Status = next
		if next != models.StatusScheduled {
			c.SendAt = nil
		}
		c.UpdatedAt = s.now()
		return nil
	})
	return c, prev, err
}

// ScheduleCampaign sets a future send time on a draft or scheduled campaign
func (s *CampaignService) ScheduleCampaign(ctx context.Context, id int, sendAt time.Time) (*models.Campaign, error) {
	return s.campaigns.Mutate(ctx, id, func(c *models.Campaign) error {
		if err := s.schedule(c, sendAt); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		return nil
	})
}

func (s *CampaignService) schedule(c *models.Campaign, sendAt time.Time) error {
	next, ok := c.Status.Next(models.ActionSchedule)
	if !ok {
		return apperrors.NewInvalidState(string(c.Status), string(models.ActionSchedule))
	}
	if sendAt.IsZero() || !sendAt.After(s.now()) {
		return apperrors.NewValidation("send_at", "must be in the future")
	}
	if len(c.Lists) == 0 {
		return apperrors.NewValidation("lists", "campaign has no lists")
	}

	t := sendAt.UTC()
	c.Status = next
	c.SendAt = &t
	return nil
}

// UnscheduleCampaign returns a scheduled campaign to draft
func (s *CampaignService) UnscheduleCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, _, err := s.transition(ctx, id, models.ActionUnschedule, nil)
	return c, err
}

// StartCampaign begins delivery of a draft or scheduled campaign
func (s *CampaignService) StartCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, _, err := s.transition(ctx, id, models.ActionStart, func(c *models.Campaign) error {
		if len(c.Lists) == 0 {
			return apperrors.NewValidation("lists", "campaign has no lists")
		}
		_, err := s.renderer.Compile(c)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, c, models.ActionStart)
	return c, nil
}

// PauseCampaign halts delivery of a running campaign
func (s *CampaignService) PauseCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, _, err := s.transition(ctx, id, models.ActionPause, nil)
	if err != nil {
		return nil, err
	}

	s.signal(ctx, c.ID, models.ActionPause)
	return c, nil
}

// ResumeCampaign continues delivery of a paused campaign
func (s *CampaignService) ResumeCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, _, err := s.transition(ctx, id, models.ActionResume, nil)
	if err != nil {
		return nil, err
	}

	s.dispatch(ctx, c, models.ActionResume)
	return c, nil
}

// CancelCampaign stops a scheduled, running or paused campaign for good
func (s *CampaignService) CancelCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, prev, err := s.transition(ctx, id, models.ActionCancel, nil)
	if err != nil {
		return nil, err
	}

	if prev == models.StatusRunning || prev == models.StatusPaused {
		s.signal(ctx, c.ID, models.ActionCancel)
	}
	return c, nil
}

// FinishCampaign marks a running campaign as sent. Only the delivery
// subsystem calls this.
func (s *CampaignService) FinishCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, _, err := s.transition(ctx, id, models.ActionFinish, nil)
	return c, err
}

// StartDueCampaigns starts every scheduled campaign whose send time has
// passed and returns how many were started
func (s *CampaignService) StartDueCampaigns(ctx context.Context) (int, error) {
	ids, err := s.campaigns.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}

	started := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return started, ctx.Err()
		}
		if _, err := s.StartCampaign(ctx, id); err != nil {
			// another request may have moved the campaign since it was listed
			level.Warn(s.logger).Log("msg", "could not start due campaign", "campaign_id", id, "err", err)
			continue
		}
		started++
	}
	return started, nil
}
