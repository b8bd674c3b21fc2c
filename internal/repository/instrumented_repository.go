package repository

import (
	"context"
	"time"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
)

// InstrumentedRepository wraps a repository with metrics collection
type InstrumentedRepository struct {
	next    service.CampaignRepository
	metrics *metrics.Metrics
}

// NewInstrumentedRepository creates a new instrumented repository
func NewInstrumentedRepository(repo service.CampaignRepository, metrics *metrics.Metrics) *InstrumentedRepository {
	return &InstrumentedRepository{
		next:    repo,
		metrics: metrics,
	}
}

func (r *InstrumentedRepository) record(operation string, err error) {
	r.metrics.RecordDatabaseQuery(operation, "campaigns")
	if err == nil {
		return
	}

	switch {
	case apperrors.IsNotFound(err), apperrors.IsValidation(err), apperrors.IsInvalidState(err):
		// domain outcomes, not storage failures
	case apperrors.IsConcurrentModification(err):
		r.metrics.RecordDatabaseError(operation, "lock_conflict")
	default:
		r.metrics.RecordDatabaseError(operation, "query_error")
	}
}

// Create implements service.CampaignRepository with metrics
func (r *InstrumentedRepository) Create(ctx context.Context, c *models.Campaign) (out *models.Campaign, err error) {
	defer func() { r.record("insert", err) }()
	return r.next.Create(ctx, c)
}

// Get implements service.CampaignRepository with metrics
func (r *InstrumentedRepository) Get(ctx context.Context, id int) (out *models.Campaign, err error) {
	defer func() { r.record("select", err) }()
	return r.next.Get(ctx, id)
}

// Query implements service.CampaignRepository with metrics
func (r *InstrumentedRepository) Query(ctx context.Context, q models.CampaignQuery) (out []models.Campaign, total int, err error) {
	defer func() { r.record("query", err) }()
	return r.next.Query(ctx, q)
}

// Mutate implements service.CampaignRepository with metrics
func (r *InstrumentedRepository) Mutate(ctx context.Context, id int, fn func(c *models.Campaign) error) (out *models.Campaign, err error) {
	defer func() { r.record("update", err) }()
	return r.next.Mutate(ctx, id, fn)
}

// Delete implements service.CampaignRepository with metrics
func (r *InstrumentedRepository) Delete(ctx context.Context, id int) (out *models.Campaign, err error) {
	defer func() { r.record("delete", err) }()
	return r.next.Delete(ctx, id)
}

// ListDue implements service.CampaignRepository with metrics
func (r *InstrumentedRepository) ListDue(ctx context.Context, now time.Time) (ids []int, err error) {
	defer func() { r.record("select_due", err) }()
	return r.next.ListDue(ctx, now)
}
