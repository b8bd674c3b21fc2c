package repository

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
	"github.com/stretchr/testify/require"
)

func TestInstrumentedRepository(t *testing.T) {
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	base := NewMemoryRepository()
	repo := NewInstrumentedRepository(base, m)
	ctx := context.Background()

	c := createCampaign(t, base, "launch", time.Now())

	_, err := repo.Get(ctx, c.ID)
	require.NoError(t, err)
	_, err = repo.Get(ctx, 999)
	require.True(t, apperrors.IsNotFound(err))

	// a nested mutation of the same row loses the lock race
	_, err = repo.Mutate(ctx, c.ID, func(*models.Campaign) error {
		_, inner := repo.Mutate(ctx, c.ID, func(*models.Campaign) error { return nil })
		return inner
	})
	assert.True(t, errors.Is(err, apperrors.ErrConcurrentModification))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatabaseQueries.WithLabelValues("select", "campaigns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatabaseQueries.WithLabelValues("update", "campaigns")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatabaseErrors.WithLabelValues("update", "lock_conflict")))
}
