package service

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/content"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// Service is the campaign engine: lifecycle, content, associations and queries
type Service interface {
	CreateCampaign(ctx context.Context, req models.CreateCampaignRequest) (*models.Campaign, error)
	UpdateCampaign(ctx context.Context, id int, req models.UpdateCampaignRequest) (*models.Campaign, error)
	GetCampaign(ctx context.Context, id int) (*models.Campaign, error)
	ListCampaigns(ctx context.Context, q models.CampaignQuery) (*models.CampaignPage, error)
	DeleteCampaign(ctx context.Context, id int) error
	CloneCampaign(ctx context.Context, id int, name string) (*models.Campaign, error)

	ScheduleCampaign(ctx context.Context, id int, sendAt time.Time) (*models.Campaign, error)
	UnscheduleCampaign(ctx context.Context, id int) (*models.Campaign, error)
	StartCampaign(ctx context.Context, id int) (*models.Campaign, error)
	PauseCampaign(ctx context.Context, id int) (*models.Campaign, error)
	ResumeCampaign(ctx context.Context, id int) (*models.Campaign, error)
	CancelCampaign(ctx context.Context, id int) (*models.Campaign, error)
	FinishCampaign(ctx context.Context, id int) (*models.Campaign, error)
	StartDueCampaigns(ctx context.Context) (int, error)

	SetLists(ctx context.Context, id int, listIDs []int) (*models.Campaign, error)
	SetTags(ctx context.Context, id int, tags []string) (*models.Campaign, error)
	ConvertContent(ctx context.Context, id int, to models.ContentType) (*models.ConversionResult, error)
	PreviewCampaign(ctx context.Context, id int) (*models.Preview, error)
}

// CampaignRepository interface for campaign storage
type CampaignRepository interface {
	// Create stores c and assigns its ID
	Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error)
	Get(ctx context.Context, id int) (*models.Campaign, error)
	// Query returns one page of matching campaigns and the total match count
	Query(ctx context.Context, q models.CampaignQuery) ([]models.Campaign, int, error)
	// Mutate applies fn to the campaign while holding its row lock and persists
	// the result. A row already locked by another caller fails with
	// apperrors.ErrConcurrentModification. If fn returns an error nothing is written.
	Mutate(ctx context.Context, id int, fn func(c *models.Campaign) error) (*models.Campaign, error)
	// Delete removes the campaign and its associations, returning the removed row
	Delete(ctx context.Context, id int) (*models.Campaign, error)
	// ListDue returns ids of scheduled campaigns whose send_at is not after now
	ListDue(ctx context.Context, now time.Time) ([]int, error)
}

// ListRepository looks up externally owned lists
type ListRepository interface {
	// GetLists returns refs in the order of ids, or a NotFound error for the
	// first unknown id
	GetLists(ctx context.Context, ids []int) ([]models.ListRef, error)
}

// SubscriberRepository pages through the subscribers of a set of lists
type SubscriberRepository interface {
	// ListSubscribers returns distinct subscribers of any of listIDs with id
	// greater than afterID, ordered by id
	ListSubscribers(ctx context.Context, listIDs []int, afterID, limit int) ([]models.Subscriber, error)
}

// Dispatcher hands work to the delivery subsystem without waiting for it
type Dispatcher interface {
	Dispatch(ctx context.Context, token models.WorkToken) error
	Signal(ctx context.Context, sig models.ControlSignal) error
}

// Option configures a CampaignService
type Option func(*CampaignService)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *CampaignService) { s.now = now }
}

// WithDefaultFromEmail sets the sender used when a campaign has none
func WithDefaultFromEmail(from string) Option {
	return func(s *CampaignService) { s.defaultFrom = from }
}

// CampaignService implements Service
type CampaignService struct {
	campaigns   CampaignRepository
	lists       ListRepository
	dispatcher  Dispatcher
	renderer    *content.Renderer
	converter   *content.Converter
	logger      log.Logger
	now         func() time.Time
	defaultFrom string
}

// NewCampaignService creates a new campaign service
func NewCampaignService(campaigns CampaignRepository, lists ListRepository, dispatcher Dispatcher, logger log.Logger, opts ...Option) *CampaignService {
	conv := content.NewConverter()
	s := &CampaignService{
		campaigns:   campaigns,
		lists:       lists,
		dispatcher:  dispatcher,
		converter:   conv,
		renderer:    content.NewRenderer(conv),
		logger:      logger,
		now:         time.Now,
		defaultFrom: "Mailbeacon <noreply@mailbeacon.local>",
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// CreateCampaign creates a draft campaign
func (s *CampaignService) CreateCampaign(ctx context.Context, req models.CreateCampaignRequest) (*models.Campaign, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.FromEmail == "" {
		req.FromEmail = s.defaultFrom
	}

	lists, err := s.resolveLists(ctx, req.Lists)
	if err != nil {
		return nil, err
	}

	now := s.now()
	c := &models.Campaign{
		UUID:        uuid.New().String(),
		Name:        req.Name,
		Subject:     req.Subject,
		FromEmail:   req.FromEmail,
		ContentType: req.ContentType,
		Body:        req.Body,
		Status:      models.StatusDraft,
		Lists:       lists,
		Tags:        req.Tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.refreshContent(c); err != nil {
		return nil, err
	}

	return s.campaigns.Create(ctx, c)
}

// GetCampaign returns a single campaign
func (s *CampaignService) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return s.campaigns.Get(ctx, id)
}

// ListCampaigns returns one page of campaigns matching q
func (s *CampaignService) ListCampaigns(ctx context.Context, q models.CampaignQuery) (*models.CampaignPage, error) {
	if err := q.Normalize(); err != nil {
		return nil, err
	}

	results, total, err := s.campaigns.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []models.Campaign{}
	}

	return &models.CampaignPage{
		Results: results,
		Total:   total,
		Page:    q.Page,
		PerPage: q.PerPage,
	}, nil
}

// UpdateCampaign applies a partial update. A send_at in the request schedules
// a draft or reschedules a scheduled campaign after the other edits apply.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id int, req models.UpdateCampaignRequest) (*models.Campaign, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var lists []models.ListRef
	if req.Lists != nil {
		var err error
		if lists, err = s.resolveLists(ctx, *req.Lists); err != nil {
			return nil, err
		}
	}

	return s.campaigns.Mutate(ctx, id, func(c *models.Campaign) error {
		if req.HasContentEdits() {
			if !c.IsEditable() {
				return apperrors.NewInvalidState(string(c.Status), string(models.ActionEdit))
			}
			if err := s.applyEdits(c, req, lists); err != nil {
				return err
			}
		}

		if req.SendAt != nil {
			if err := s.schedule(c, *req.SendAt); err != nil {
				return err
			}
		}

		c.UpdatedAt = s.now()
		return nil
	})
}

func (s *CampaignService) applyEdits(c *models.Campaign, req models.UpdateCampaignRequest, lists []models.ListRef) error {
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Subject != nil {
		c.Subject = *req.Subject
	}
	if req.FromEmail != nil {
		c.FromEmail = *req.FromEmail
	}

	switch {
	case req.Body != nil:
		c.Body = *req.Body
		if req.ContentType != nil {
			c.ContentType = *req.ContentType
		}
	case req.ContentType != nil && *req.ContentType != c.ContentType:
		body, _, err := s.converter.Convert(c.ContentType, *req.ContentType, c.Body)
		if err != nil {
			return apperrors.NewValidation("content_type", "%v", err)
		}
		c.Body = body
		c.ContentType = *req.ContentType
	}

	if req.Lists != nil {
		if err := checkListsRemovable(c, lists); err != nil {
			return err
		}
		c.Lists = lists
	}
	if req.Tags != nil {
		c.Tags = *req.Tags
	}

	return s.refreshContent(c)
}

// DeleteCampaign removes a campaign from any status. Campaigns still in
// delivery are told to stop.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id int) error {
	c, err := s.campaigns.Delete(ctx, id)
	if err != nil {
		return err
	}

	if c.Status == models.StatusRunning || c.Status == models.StatusPaused {
		s.signal(ctx, c.ID, models.ActionCancel)
	}
	return nil
}

// CloneCampaign copies a campaign's content and associations into a new draft
func (s *CampaignService) CloneCampaign(ctx context.Context, id int, name string) (*models.Campaign, error) {
	src, err := s.campaigns.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if name == "" {
		name = "Copy of " + src.Name
	}
	if err := (&models.UpdateCampaignRequest{Name: &name}).Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	c := src.Clone()
	c.ID = 0
	c.UUID = uuid.New().String()
	c.Name = name
	c.Status = models.StatusDraft
	c.SendAt = nil
	c.CreatedAt = now
	c.UpdatedAt = now

	return s.campaigns.Create(ctx, c)
}

// refreshContent checks the body compiles and recomputes the alternative body
func (s *CampaignService) refreshContent(c *models.Campaign) error {
	if _, err := s.renderer.Compile(c); err != nil {
		return err
	}
	alt, err := s.converter.AltBody(c.ContentType, c.Body)
	if err != nil {
		return apperrors.NewValidation("body", "%v", err)
	}
	c.AltBody = alt
	return nil
}

func (s *CampaignService) resolveLists(ctx context.Context, ids []int) ([]models.ListRef, error) {
	ids = models.NormalizeListIDs(ids)
	if len(ids) == 0 {
		return []models.ListRef{}, nil
	}
	return s.lists.GetLists(ctx, ids)
}

// checkListsRemovable rejects emptying the lists of a campaign that is
// scheduled or paused
func checkListsRemovable(c *models.Campaign, lists []models.ListRef) error {
	if len(lists) == 0 && (c.Status == models.StatusScheduled || c.Status == models.StatusPaused) {
		return apperrors.NewValidation("lists", "a %s campaign needs at least one list", c.Status)
	}
	return nil
}

func (s *CampaignService) dispatch(ctx context.Context, c *models.Campaign, action models.Action) {
	token := models.WorkToken{
		CampaignID:   c.ID,
		CampaignUUID: c.UUID,
		Action:       action,
		IssuedAt:     s.now(),
	}
	if err := s.dispatcher.Dispatch(ctx, token); err != nil {
		level.Error(s.logger).Log("msg", "failed to dispatch work token", "campaign_id", c.ID, "action", action, "err", err)
	}
}

func (s *CampaignService) signal(ctx context.Context, id int, action models.Action) {
	sig := models.ControlSignal{CampaignID: id, Action: action, IssuedAt: s.now()}
	if err := s.dispatcher.Signal(ctx, sig); err != nil {
		level.Error(s.logger).Log("msg", "failed to send control signal", "campaign_id", id, "action", action, "err", err)
	}
}
