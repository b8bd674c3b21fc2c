package endpoint

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
)

// CampaignEndpoints holds all endpoints for the campaign service
type CampaignEndpoints struct {
	ListEndpoint       endpoint.Endpoint
	CreateEndpoint     endpoint.Endpoint
	GetEndpoint        endpoint.Endpoint
	UpdateEndpoint     endpoint.Endpoint
	DeleteEndpoint     endpoint.Endpoint
	CloneEndpoint      endpoint.Endpoint
	ScheduleEndpoint   endpoint.Endpoint
	UnscheduleEndpoint endpoint.Endpoint
	StartEndpoint      endpoint.Endpoint
	PauseEndpoint      endpoint.Endpoint
	ResumeEndpoint     endpoint.Endpoint
	CancelEndpoint     endpoint.Endpoint
	SetListsEndpoint   endpoint.Endpoint
	SetTagsEndpoint    endpoint.Endpoint
	ConvertEndpoint    endpoint.Endpoint
	PreviewEndpoint    endpoint.Endpoint
}

// MakeCampaignEndpoints creates endpoints for the campaign service. Each
// endpoint is wrapped with the given middlewares, the first one outermost.
func MakeCampaignEndpoints(s service.Service, mws ...func(name string) endpoint.Middleware) CampaignEndpoints {
	wrap := func(name string, e endpoint.Endpoint) endpoint.Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			e = mws[i](name)(e)
		}
		return e
	}

	return CampaignEndpoints{
		ListEndpoint:       wrap("list", makeListEndpoint(s)),
		CreateEndpoint:     wrap("create", makeCreateEndpoint(s)),
		GetEndpoint:        wrap("get", makeActionEndpoint(s.GetCampaign)),
		UpdateEndpoint:     wrap("update", makeUpdateEndpoint(s)),
		DeleteEndpoint:     wrap("delete", makeDeleteEndpoint(s)),
		CloneEndpoint:      wrap("clone", makeCloneEndpoint(s)),
		ScheduleEndpoint:   wrap("schedule", makeScheduleEndpoint(s)),
		UnscheduleEndpoint: wrap("unschedule", makeActionEndpoint(s.UnscheduleCampaign)),
		StartEndpoint:      wrap("start", makeActionEndpoint(s.StartCampaign)),
		PauseEndpoint:      wrap("pause", makeActionEndpoint(s.PauseCampaign)),
		ResumeEndpoint:     wrap("resume", makeActionEndpoint(s.ResumeCampaign)),
		CancelEndpoint:     wrap("cancel", makeActionEndpoint(s.CancelCampaign)),
		SetListsEndpoint:   wrap("set_lists", makeSetListsEndpoint(s)),
		SetTagsEndpoint:    wrap("set_tags", makeSetTagsEndpoint(s)),
		ConvertEndpoint:    wrap("convert", makeConvertEndpoint(s)),
		PreviewEndpoint:    wrap("preview", makePreviewEndpoint(s)),
	}
}

// IDRequest addresses a single campaign
type IDRequest struct {
	ID int
}

// ListRequest represents the request for listing campaigns
type ListRequest struct {
	Query models.CampaignQuery
}

// CreateRequest represents the request for creating a campaign
type CreateRequest struct {
	Campaign models.CreateCampaignRequest
}

// UpdateRequest represents a partial update of a campaign
type UpdateRequest struct {
	ID     int
	Update models.UpdateCampaignRequest
}

// CloneRequest copies a campaign under an optional new name
type CloneRequest struct {
	ID   int    `json:"-"`
	Name string `json:"name"`
}

// ScheduleRequest sets the send time of a campaign
type ScheduleRequest struct {
	ID     int       `json:"-"`
	SendAt time.Time `json:"send_at"`
}

// SetListsRequest replaces the lists of a campaign
type SetListsRequest struct {
	ID    int   `json:"-"`
	Lists []int `json:"lists"`
}

// SetTagsRequest replaces the tags of a campaign
type SetTagsRequest struct {
	ID   int      `json:"-"`
	Tags []string `json:"tags"`
}

// ConvertRequest switches the content type of a campaign
type ConvertRequest struct {
	ID          int                `json:"-"`
	ContentType models.ContentType `json:"content_type"`
}

// CampaignResponse carries a single campaign
type CampaignResponse struct {
	Campaign *models.Campaign `json:"data,omitempty"`
	Err      error            `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r CampaignResponse) Failed() error { return r.Err }

// ListResponse carries one page of campaigns
type ListResponse struct {
	Page *models.CampaignPage `json:"data,omitempty"`
	Err  error                `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r ListResponse) Failed() error { return r.Err }

// DeleteResponse carries only the outcome of a delete
type DeleteResponse struct {
	Err error `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r DeleteResponse) Failed() error { return r.Err }

// ConvertResponse carries the converted campaign and whether formatting was lost
type ConvertResponse struct {
	Result *models.ConversionResult `json:"data,omitempty"`
	Err    error                    `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r ConvertResponse) Failed() error { return r.Err }

// PreviewResponse carries a rendered preview
type PreviewResponse struct {
	Preview *models.Preview `json:"data,omitempty"`
	Err     error           `json:"-"`
}

// Failed implements the endpoint.Failer interface
func (r PreviewResponse) Failed() error { return r.Err }

func makeListEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(ListRequest)
		page, err := s.ListCampaigns(ctx, req.Query)
		return ListResponse{Page: page, Err: err}, nil
	}
}

func makeCreateEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(CreateRequest)
		c, err := s.CreateCampaign(ctx, req.Campaign)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

// makeActionEndpoint serves every verb that takes only a campaign id
func makeActionEndpoint(fn func(ctx context.Context, id int) (*models.Campaign, error)) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(IDRequest)
		c, err := fn(ctx, req.ID)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

func makeUpdateEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(UpdateRequest)
		c, err := s.UpdateCampaign(ctx, req.ID, req.Update)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

func makeDeleteEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(IDRequest)
		return DeleteResponse{Err: s.DeleteCampaign(ctx, req.ID)}, nil
	}
}

func makeCloneEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(CloneRequest)
		c, err := s.CloneCampaign(ctx, req.ID, req.Name)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

func makeScheduleEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(ScheduleRequest)
		c, err := s.ScheduleCampaign(ctx, req.ID, req.SendAt)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

func makeSetListsEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(SetListsRequest)
		c, err := s.SetLists(ctx, req.ID, req.Lists)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

func makeSetTagsEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(SetTagsRequest)
		c, err := s.SetTags(ctx, req.ID, req.Tags)
		return CampaignResponse{Campaign: c, Err: err}, nil
	}
}

func makeConvertEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(ConvertRequest)
		res, err := s.ConvertContent(ctx, req.ID, req.ContentType)
		return ConvertResponse{Result: res, Err: err}, nil
	}
}

func makePreviewEndpoint(s service.Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req := request.(IDRequest)
		p, err := s.PreviewCampaign(ctx, req.ID)
		return PreviewResponse{Preview: p, Err: err}, nil
	}
}
