package service

import (
	"context"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// SetLists replaces the campaign's lists
func (s *CampaignService) SetLists(ctx context.Context, id int, listIDs []int) (*models.Campaign, error) {
	lists, err := s.resolveLists(ctx, listIDs)
	if err != nil {
		return nil, err
	}

	return s.campaigns.Mutate(ctx, id, func(c *models.Campaign) error {
		if !c.IsEditable() {
			return apperrors.NewInvalidState(string(c.Status), string(models.ActionEdit))
		}
		if err := checkListsRemovable(c, lists); err != nil {
			return err
		}
		c.Lists = lists
		c.UpdatedAt = s.now()
		return nil
	})
}

// SetTags replaces the campaign's tags
func (s *CampaignService) SetTags(ctx context.Context, id int, tags []string) (*models.Campaign, error) {
	tags = models.NormalizeTags(tags)

	return s.campaigns.Mutate(ctx, id, func(c *models.Campaign) error {
		if !c.IsEditable() {
			return apperrors.NewInvalidState(string(c.Status), string(models.ActionEdit))
		}
		c.Tags = tags
		c.UpdatedAt = s.now()
		return nil
	})
}

// ConvertContent switches the campaign to another content type, converting
// the existing body. FormattingLost is set when the conversion is lossy.
func (s *CampaignService) ConvertContent(ctx context.Context, id int, to models.ContentType) (*models.ConversionResult, error) {
	if !to.IsValid() {
		return nil, apperrors.NewValidation("content_type", "unknown content type %q", to)
	}

	var lossy bool
	c, err := s.campaigns.Mutate(ctx, id, func(c *models.Campaign) error {
		if !c.IsEditable() {
			return apperrors.NewInvalidState(string(c.Status), string(models.ActionEdit))
		}

		body, lost, err := s.converter.Convert(c.ContentType, to, c.Body)
		if err != nil {
			return apperrors.NewValidation("content_type", "%v", err)
		}
		lossy = lost
		c.Body = body
		c.ContentType = to
		if err := s.refreshContent(c); err != nil {
			return err
		}
		c.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &models.ConversionResult{Campaign: c, FormattingLost: lossy}, nil
}

// PreviewCampaign renders the campaign against the demo subscriber
func (s *CampaignService) PreviewCampaign(ctx context.Context, id int) (*models.Preview, error) {
	c, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.renderer.Preview(c)
}
