package endpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockService is a mock implementation of service.Service
type MockService struct {
	mock.Mock
}

func (m *MockService) campaign(args mock.Arguments) (*models.Campaign, error) {
	c, _ := args.Get(0).(*models.Campaign)
	return c, args.Error(1)
}

func (m *MockService) CreateCampaign(ctx context.Context, req models.CreateCampaignRequest) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, req))
}

func (m *MockService) UpdateCampaign(ctx context.Context, id int, req models.UpdateCampaignRequest) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id, req))
}

func (m *MockService) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) ListCampaigns(ctx context.Context, q models.CampaignQuery) (*models.CampaignPage, error) {
	args := m.Called(ctx, q)
	p, _ := args.Get(0).(*models.CampaignPage)
	return p, args.Error(1)
}

func (m *MockService) DeleteCampaign(ctx context.Context, id int) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockService) CloneCampaign(ctx context.Context, id int, name string) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id, name))
}

func (m *MockService) ScheduleCampaign(ctx context.Context, id int, sendAt time.Time) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id, sendAt))
}

func (m *MockService) UnscheduleCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) StartCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) PauseCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) ResumeCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) CancelCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) FinishCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id))
}

func (m *MockService) StartDueCampaigns(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockService) SetLists(ctx context.Context, id int, listIDs []int) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id, listIDs))
}

func (m *MockService) SetTags(ctx context.Context, id int, tags []string) (*models.Campaign, error) {
	return m.campaign(m.Called(ctx, id, tags))
}

func (m *MockService) ConvertContent(ctx context.Context, id int, to models.ContentType) (*models.ConversionResult, error) {
	args := m.Called(ctx, id, to)
	r, _ := args.Get(0).(*models.ConversionResult)
	return r, args.Error(1)
}

func (m *MockService) PreviewCampaign(ctx context.Context, id int) (*models.Preview, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Preview)
	return p, args.Error(1)
}

func TestMakeCampaignEndpoints(t *testing.T) {
	endpoints := MakeCampaignEndpoints(&MockService{})

	assert.NotNil(t, endpoints.ListEndpoint)
	assert.NotNil(t, endpoints.CreateEndpoint)
	assert.NotNil(t, endpoints.StartEndpoint)
	assert.NotNil(t, endpoints.PreviewEndpoint)
}

func TestActionEndpoints(t *testing.T) {
	svc := &MockService{}
	endpoints := MakeCampaignEndpoints(svc)
	ctx := context.Background()

	svc.On("StartCampaign", mock.Anything, 7).Return(&models.Campaign{ID: 7, Status: models.StatusRunning}, nil)
	svc.On("PauseCampaign", mock.Anything, 7).Return(nil, apperrors.NewInvalidState("draft", "pause"))

	resp, err := endpoints.StartEndpoint(ctx, IDRequest{ID: 7})
	require.NoError(t, err)
	cr := resp.(CampaignResponse)
	assert.NoError(t, cr.Failed())
	assert.Equal(t, models.StatusRunning, cr.Campaign.Status)

	resp, err = endpoints.PauseEndpoint(ctx, IDRequest{ID: 7})
	require.NoError(t, err)
	assert.True(t, apperrors.IsInvalidState(resp.(CampaignResponse).Failed()))

	svc.AssertExpectations(t)
}

func TestListEndpoint(t *testing.T) {
	svc := &MockService{}
	endpoints := MakeCampaignEndpoints(svc)

	q := models.CampaignQuery{Search: "launch"}
	page := &models.CampaignPage{Results: []models.Campaign{{ID: 1}}, Total: 1, Page: 1, PerPage: 20}
	svc.On("ListCampaigns", mock.Anything, q).Return(page, nil)

	resp, err := endpoints.ListEndpoint(context.Background(), ListRequest{Query: q})
	require.NoError(t, err)
	assert.Equal(t, page, resp.(ListResponse).Page)
}

func TestDeleteEndpoint(t *testing.T) {
	svc := &MockService{}
	endpoints := MakeCampaignEndpoints(svc)

	svc.On("DeleteCampaign", mock.Anything, 3).Return(apperrors.NewNotFound("campaign", 3))

	resp, err := endpoints.DeleteEndpoint(context.Background(), IDRequest{ID: 3})
	require.NoError(t, err)
	assert.True(t, apperrors.IsNotFound(resp.(DeleteResponse).Failed()))
}

func TestConvertAndPreviewEndpoints(t *testing.T) {
	svc := &MockService{}
	endpoints := MakeCampaignEndpoints(svc)
	ctx := context.Background()

	svc.On("ConvertContent", mock.Anything, 2, models.ContentPlain).
		Return(&models.ConversionResult{Campaign: &models.Campaign{ID: 2}, FormattingLost: true}, nil)
	svc.On("PreviewCampaign", mock.Anything, 2).
		Return(&models.Preview{CampaignID: 2, Warnings: []string{"w"}}, nil)

	resp, err := endpoints.ConvertEndpoint(ctx, ConvertRequest{ID: 2, ContentType: models.ContentPlain})
	require.NoError(t, err)
	assert.True(t, resp.(ConvertResponse).Result.FormattingLost)

	resp, err = endpoints.PreviewEndpoint(ctx, IDRequest{ID: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"w"}, resp.(PreviewResponse).Preview.Warnings)
}

func TestInstrumentingMiddleware(t *testing.T) {
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	svc := &MockService{}
	endpoints := MakeCampaignEndpoints(svc, InstrumentingMiddleware(m))
	ctx := context.Background()

	svc.On("GetCampaign", mock.Anything, 1).Return(&models.Campaign{ID: 1}, nil)
	svc.On("GetCampaign", mock.Anything, 2).Return(nil, errors.New("boom"))

	_, err := endpoints.GetEndpoint(ctx, IDRequest{ID: 1})
	require.NoError(t, err)
	_, err = endpoints.GetEndpoint(ctx, IDRequest{ID: 2})
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.EndpointRequests.WithLabelValues("get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EndpointRequests.WithLabelValues("get", "failed")))
}
