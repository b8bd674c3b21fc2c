package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/go-redis/redis/v8"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/content"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/metrics"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	mu       sync.Mutex
	campaign *models.Campaign
	finished []int
}

func (e *fakeEngine) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.campaign == nil || e.campaign.ID != id {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	return e.campaign.Clone(), nil
}

func (e *fakeEngine) FinishCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.campaign == nil || e.campaign.ID != id {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	e.finished = append(e.finished, id)
	e.campaign.Status = models.StatusFinished
	return e.campaign.Clone(), nil
}

func (e *fakeEngine) finishedIDs() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]int{}, e.finished...)
}

// contendedEngine loses the row lock race on FinishCampaign a fixed number
// of times before letting the finish through
type contendedEngine struct {
	*fakeEngine
	conflicts int
	calls     int
	onGet     func()
}

func (e *contendedEngine) GetCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	c, err := e.fakeEngine.GetCampaign(ctx, id)
	if e.onGet != nil {
		e.onGet()
	}
	return c, err
}

func (e *contendedEngine) FinishCampaign(ctx context.Context, id int) (*models.Campaign, error) {
	e.mu.Lock()
	e.calls++
	if e.conflicts > 0 {
		e.conflicts--
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to finish campaign: %w", apperrors.ErrConcurrentModification)
	}
	e.mu.Unlock()
	return e.fakeEngine.FinishCampaign(ctx, id)
}

func (e *contendedEngine) finishCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func fastFinishRetries(t *testing.T) {
	delay := finishRetryDelay
	finishRetryDelay = time.Millisecond
	t.Cleanup(func() { finishRetryDelay = delay })
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []models.Message
	err  error
}

func (m *recordingMailer) Send(ctx context.Context, msg models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func testCampaign(listIDs ...int) *models.Campaign {
	c := &models.Campaign{
		ID:          1,
		UUID:        "6a3c4a5e-0c1f-4f55-9a4e-3b1e0c7b9d11",
		Name:        "Welcome",
		Subject:     "Hi {{ .Subscriber.Name }}",
		FromEmail:   "Mail Beacon <noreply@mailbeacon.local>",
		ContentType: models.ContentRichtext,
		Body:        "<p>Hello {{ .Subscriber.Name }}</p>",
		Status:      models.StatusRunning,
	}
	for _, id := range listIDs {
		c.Lists = append(c.Lists, models.ListRef{ID: id})
	}
	return c
}

func newResolver(repo *repository.MemoryRepository, batch int) *Resolver {
	return NewResolver(repo, content.NewRenderer(content.NewConverter()), batch)
}

func TestResolver_Resolve(t *testing.T) {
	repo := repository.NewSeededMemoryRepository()
	r := newResolver(repo, 1)

	var msgs []models.Message
	last, count, err := r.Resolve(context.Background(), testCampaign(1, 2), 0, func(m models.Message) error {
		msgs = append(msgs, m)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2, last)
	require.Len(t, msgs, 2)
	assert.Equal(t, "john@example.com", msgs[0].To)
	assert.Equal(t, "Hi John Doe", msgs[0].Subject)
	assert.Contains(t, msgs[0].HTMLBody, "Hello John Doe")
	assert.Equal(t, "Hello John Doe", msgs[0].PlainTextBody)
}

func TestResolver_SkipsDuplicatesAndBlocklisted(t *testing.T) {
	repo := repository.NewMemoryRepository()
	list := repo.AddList("news")
	repo.AddSubscriber(models.Subscriber{UUID: "dup", Email: "a@example.com", Name: "A", Status: "enabled"}, list.ID)
	repo.AddSubscriber(models.Subscriber{UUID: "dup", Email: "a@example.com", Name: "A", Status: "enabled"}, list.ID)
	repo.AddSubscriber(models.Subscriber{Email: "b@example.com", Name: "B", Status: models.SubscriberStatusBlocklisted}, list.ID)
	repo.AddSubscriber(models.Subscriber{Email: "c@example.com", Name: "C", Status: "enabled"}, list.ID)
	repo.AddSubscriber(models.Subscriber{Email: "off@example.com", Name: "Off", Status: models.SubscriberStatusDisabled}, list.ID)
	repo.AddSubscriber(models.Subscriber{Email: "d@example.com", Name: "D"}, list.ID)

	var to []string
	last, count, err := newResolver(repo, 10).Resolve(context.Background(), testCampaign(list.ID), 0, func(m models.Message) error {
		to = append(to, m.To)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, 6, last)
	assert.Equal(t, []string{"a@example.com", "c@example.com", "d@example.com"}, to)
	assert.NotContains(t, to, "off@example.com")
}

func TestResolver_ContinuesAfterID(t *testing.T) {
	repo := repository.NewSeededMemoryRepository()

	var to []string
	_, count, err := newResolver(repo, 10).Resolve(context.Background(), testCampaign(1, 2), 1, func(m models.Message) error {
		to = append(to, m.To)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, []string{"anon@example.com"}, to)
}

func TestResolver_InvalidTemplate(t *testing.T) {
	c := testCampaign(1)
	c.Body = "{{ .Subscriber.Name "

	_, _, err := newResolver(repository.NewSeededMemoryRepository(), 10).Resolve(context.Background(), c, 0, func(models.Message) error { return nil })
	assert.True(t, apperrors.IsValidation(err))
}

func newDispatcher(t *testing.T, mailer Mailer, cfg QueueConfig) *MemoryDispatcher {
	t.Helper()
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	return NewMemoryDispatcher(newResolver(repository.NewSeededMemoryRepository(), 10), mailer, cfg, log.NewNopLogger(), m)
}

func TestMemoryDispatcher_DeliversAndFinishes(t *testing.T) {
	mailer := &recordingMailer{}
	d := newDispatcher(t, mailer, QueueConfig{Workers: 1})
	engine := &fakeEngine{campaign: testCampaign(1, 2)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, engine)

	require.NoError(t, d.Dispatch(ctx, models.WorkToken{CampaignID: 1, Action: models.ActionStart}))

	assert.Eventually(t, func() bool { return len(engine.finishedIDs()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, mailer.count())
	_, ok := d.Progress(1)
	assert.False(t, ok)
}

func TestMemoryDispatcher_DropsTokenForStoppedCampaign(t *testing.T) {
	mailer := &recordingMailer{}
	d := newDispatcher(t, mailer, QueueConfig{Workers: 1})
	c := testCampaign(1, 2)
	c.Status = models.StatusPaused
	engine := &fakeEngine{campaign: c}

	d.engine = engine
	d.process(context.Background(), job{token: models.WorkToken{CampaignID: 1}})

	assert.Zero(t, mailer.count())
	assert.Empty(t, engine.finishedIDs())
}

func TestMemoryDispatcher_GivesUpAfterRetries(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("smtp down")}
	d := newDispatcher(t, mailer, QueueConfig{Workers: 1, MaxRetries: 0})
	d.engine = &fakeEngine{campaign: testCampaign(1)}

	d.process(context.Background(), job{token: models.WorkToken{CampaignID: 1}})

	assert.Empty(t, d.engine.(*fakeEngine).finishedIDs())
	last, ok := d.Progress(1)
	assert.True(t, ok)
	assert.Equal(t, 0, last)
	assert.Len(t, d.jobs, 0)
}

func TestMemoryDispatcher_QueueFull(t *testing.T) {
	d := newDispatcher(t, &recordingMailer{}, QueueConfig{Capacity: 1})

	require.NoError(t, d.Dispatch(context.Background(), models.WorkToken{CampaignID: 1}))
	assert.ErrorIs(t, d.Dispatch(context.Background(), models.WorkToken{CampaignID: 2}), ErrQueueFull)
}

func TestMemoryDispatcher_CancelDropsProgress(t *testing.T) {
	d := newDispatcher(t, &recordingMailer{}, QueueConfig{})
	d.progress[1] = 5

	require.NoError(t, d.Signal(context.Background(), models.ControlSignal{CampaignID: 1, Action: models.ActionPause}))
	_, ok := d.Progress(1)
	assert.True(t, ok)

	require.NoError(t, d.Signal(context.Background(), models.ControlSignal{CampaignID: 1, Action: models.ActionCancel}))
	_, ok = d.Progress(1)
	assert.False(t, ok)
}

func TestHandleCompletion(t *testing.T) {
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	engine := &fakeEngine{campaign: testCampaign(1)}

	err := handleCompletion(context.Background(), engine, log.NewNopLogger(), m, "redis", []byte(`{"campaign_id": 1, "sent": 42}`))
	require.NoError(t, err)
	assert.Equal(t, []int{1}, engine.finishedIDs())
	assert.Equal(t, 42.0, testutil.ToFloat64(m.MessagesResolved.WithLabelValues("redis")))

	err = handleCompletion(context.Background(), engine, log.NewNopLogger(), m, "redis", []byte(`not json`))
	assert.Error(t, err)

	err = handleCompletion(context.Background(), engine, log.NewNopLogger(), m, "redis", []byte(`{"campaign_id": 9}`))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestRedisDispatcher_Keys(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer client.Close()

	d := NewRedisDispatcher(client, "", log.NewNopLogger(), nil)
	assert.Equal(t, "mailbeacon:delivery:tokens", d.TokensKey())
	assert.Equal(t, "mailbeacon:delivery:signals", d.SignalsChannel())
	assert.Equal(t, "mailbeacon:delivery:completions", d.CompletionsChannel())
}

func TestAMQPQueueNames(t *testing.T) {
	assert.Equal(t, "mailbeacon.campaigns.signals", signalsQueue("mailbeacon.campaigns"))
	assert.Equal(t, "mailbeacon.campaigns.completions", completionsQueue("mailbeacon.campaigns"))
}

func TestHandleCompletion_RetriesOnContention(t *testing.T) {
	fastFinishRetries(t)
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	engine := &contendedEngine{fakeEngine: &fakeEngine{campaign: testCampaign(1)}, conflicts: 1}

	err := handleCompletion(context.Background(), engine, log.NewNopLogger(), m, "amqp", []byte(`{"campaign_id": 1, "sent": 3}`))
	require.NoError(t, err)
	assert.Equal(t, 2, engine.finishCalls())
	assert.Equal(t, []int{1}, engine.finishedIDs())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.MessagesResolved.WithLabelValues("amqp")))
}

func TestHandleCompletion_PersistentContentionIsRedelivered(t *testing.T) {
	fastFinishRetries(t)
	m := metrics.NewPrometheusMetrics(prometheus.NewRegistry())
	engine := &contendedEngine{fakeEngine: &fakeEngine{campaign: testCampaign(1)}, conflicts: 100}

	err := handleCompletion(context.Background(), engine, log.NewNopLogger(), m, "amqp", []byte(`{"campaign_id": 1, "sent": 3}`))
	require.Error(t, err)
	assert.True(t, redeliver(err))
	assert.Equal(t, finishAttempts, engine.finishCalls())
	assert.Empty(t, engine.finishedIDs())
	assert.Zero(t, testutil.ToFloat64(m.MessagesResolved.WithLabelValues("amqp")))
}

func TestRedeliver(t *testing.T) {
	assert.True(t, redeliver(apperrors.ErrConcurrentModification))
	assert.True(t, redeliver(context.Canceled))
	assert.False(t, redeliver(apperrors.NewNotFound("campaign", 1)))
	assert.False(t, redeliver(apperrors.NewInvalidState(string(models.StatusCancelled), string(models.ActionFinish))))
}

func TestMemoryDispatcher_RequeuesContendedFinish(t *testing.T) {
	fastFinishRetries(t)
	mailer := &recordingMailer{}
	d := newDispatcher(t, mailer, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	engine := &contendedEngine{fakeEngine: &fakeEngine{campaign: testCampaign(1, 2)}, conflicts: finishAttempts + 1}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx, engine)

	require.NoError(t, d.Dispatch(ctx, models.WorkToken{CampaignID: 1, Action: models.ActionStart}))

	assert.Eventually(t, func() bool { return len(engine.finishedIDs()) == 1 }, time.Second, 10*time.Millisecond)
	assert.Equal(t, finishAttempts+2, engine.finishCalls())
	assert.Equal(t, 2, mailer.count(), "messages are not sent again")
}

func TestMemoryDispatcher_SignalAfterStatusCheckStopsRun(t *testing.T) {
	mailer := &recordingMailer{}
	d := newDispatcher(t, mailer, QueueConfig{Workers: 1})
	engine := &contendedEngine{fakeEngine: &fakeEngine{campaign: testCampaign(1, 2)}}
	engine.onGet = func() {
		require.NoError(t, d.Signal(context.Background(), models.ControlSignal{CampaignID: 1, Action: models.ActionPause}))
	}
	d.engine = engine

	d.process(context.Background(), job{token: models.WorkToken{CampaignID: 1}})

	assert.Zero(t, mailer.count())
	assert.Empty(t, engine.finishedIDs())
	last, ok := d.Progress(1)
	assert.True(t, ok)
	assert.Equal(t, 0, last)
}
