package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// memoryRow holds one campaign. mu serializes mutations of the row; the
// campaign pointer itself is only swapped under the repository lock.
type memoryRow struct {
	mu      sync.Mutex
	c       *models.Campaign
	deleted bool
}

// MemoryRepository keeps campaigns, lists and subscribers in process memory.
// It implements service.CampaignRepository, service.ListRepository and
// service.SubscriberRepository.
type MemoryRepository struct {
	mu     sync.RWMutex
	rows   map[int]*memoryRow
	nextID int

	lists       map[int]models.ListRef
	nextListID  int
	subscribers map[int]memorySubscriber
	nextSubID   int
}

type memorySubscriber struct {
	sub   models.Subscriber
	lists map[int]struct{}
}

// NewMemoryRepository creates an empty repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rows:        make(map[int]*memoryRow),
		lists:       make(map[int]models.ListRef),
		subscribers: make(map[int]memorySubscriber),
	}
}

// NewSeededMemoryRepository creates a repository with two lists and two
// subscribers, enough to create and send campaigns locally
func NewSeededMemoryRepository() *MemoryRepository {
	r := NewMemoryRepository()
	def := r.AddList("Default list")
	optin := r.AddList("Opt-in list")

	r.AddSubscriber(models.Subscriber{
		Email:   "john@example.com",
		Name:    "John Doe",
		Attribs: map[string]any{"city": "Bengaluru"},
		Status:  models.SubscriberStatusEnabled,
	}, def.ID, optin.ID)
	r.AddSubscriber(models.Subscriber{
		Email:   "anon@example.com",
		Name:    "Anon Doe",
		Attribs: map[string]any{},
		Status:  models.SubscriberStatusEnabled,
	}, optin.ID)
	return r
}

// AddList registers an external list
func (r *MemoryRepository) AddList(name string) models.ListRef {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextListID++
	l := models.ListRef{ID: r.nextListID, Name: name}
	r.lists[l.ID] = l
	return l
}

// AddSubscriber registers a subscriber on the given lists
func (r *MemoryRepository) AddSubscriber(sub models.Subscriber, listIDs ...int) models.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSubID++
	sub.ID = r.nextSubID
	if sub.UUID == "" {
		sub.UUID = uuid.New().String()
	}
	if sub.Status == "" {
		sub.Status = models.SubscriberStatusEnabled
	}
	member := make(map[int]struct{}, len(listIDs))
	for _, id := range listIDs {
		member[id] = struct{}{}
	}
	r.subscribers[sub.ID] = memorySubscriber{sub: sub, lists: member}
	return sub
}

// Create implements service.CampaignRepository
func (r *MemoryRepository) Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	stored := c.Clone()
	stored.ID = r.nextID
	r.rows[stored.ID] = &memoryRow{c: stored}
	return stored.Clone(), nil
}

// Get implements service.CampaignRepository
func (r *MemoryRepository) Get(ctx context.Context, id int) (*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	return row.c.Clone(), nil
}

// Mutate implements service.CampaignRepository. fn works on a copy, so a
// failed mutation leaves the stored campaign untouched.
func (r *MemoryRepository) Mutate(ctx context.Context, id int, fn func(c *models.Campaign) error) (*models.Campaign, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("campaign", id)
	}

	if !row.mu.TryLock() {
		return nil, apperrors.ErrConcurrentModification
	}
	defer row.mu.Unlock()

	r.mu.RLock()
	working, deleted := row.c.Clone(), row.deleted
	r.mu.RUnlock()
	if deleted {
		return nil, apperrors.NewNotFound("campaign", id)
	}

	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = id

	r.mu.Lock()
	row.c = working
	r.mu.Unlock()

	return working.Clone(), nil
}

// Delete implements service.CampaignRepository
func (r *MemoryRepository) Delete(ctx context.Context, id int) (*models.Campaign, error) {
	r.mu.RLock()
	row, ok := r.rows[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound("campaign", id)
	}

	if !row.mu.TryLock() {
		return nil, apperrors.ErrConcurrentModification
	}
	defer row.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if row.deleted {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	row.deleted = true
	delete(r.rows, id)
	return row.c.Clone(), nil
}

// Query implements service.CampaignRepository
func (r *MemoryRepository) Query(ctx context.Context, q models.CampaignQuery) ([]models.Campaign, int, error) {
	r.mu.RLock()
	matched := make([]models.Campaign, 0, len(r.rows))
	for _, row := range r.rows {
		if q.Matches(row.c) {
			matched = append(matched, *row.c.Clone())
		}
	}
	r.mu.RUnlock()

	less := campaignLess(q.OrderBy, q.Order == models.OrderDesc)
	sort.Slice(matched, func(i, j int) bool {
		return less(&matched[i], &matched[j])
	})

	total := len(matched)
	start := q.Offset()
	if start >= total {
		return []models.Campaign{}, total, nil
	}
	end := start + q.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListDue implements service.CampaignRepository
func (r *MemoryRepository) ListDue(ctx context.Context, now time.Time) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*models.Campaign
	for _, row := range r.rows {
		c := row.c
		if c.Status == models.StatusScheduled && c.SendAt != nil && !c.SendAt.After(now) {
			due = append(due, c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].SendAt.Equal(*due[j].SendAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].SendAt.Before(*due[j].SendAt)
	})

	ids := make([]int, len(due))
	for i, c := range due {
		ids[i] = c.ID
	}
	return ids, nil
}

// GetLists implements service.ListRepository
func (r *MemoryRepository) GetLists(ctx context.Context, ids []int) ([]models.ListRef, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ListRef, 0, len(ids))
	for _, id := range ids {
		l, ok := r.lists[id]
		if !ok {
			return nil, apperrors.NewNotFound("list", id)
		}
		out = append(out, l)
	}
	return out, nil
}

// ListSubscribers implements service.SubscriberRepository
func (r *MemoryRepository) ListSubscribers(ctx context.Context, listIDs []int, afterID, limit int) ([]models.Subscriber, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Subscriber
	for _, s := range r.subscribers {
		if s.sub.ID <= afterID {
			continue
		}
		for _, id := range listIDs {
			if _, ok := s.lists[id]; ok {
				out = append(out, s.sub)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// campaignLess orders campaigns by field, breaking ties by ascending id in
// both directions. A missing send_at compares greater than any set one.
func campaignLess(field string, desc bool) func(a, b *models.Campaign) bool {
	return func(a, b *models.Campaign) bool {
		var c int
		switch field {
		case models.OrderByName:
			c = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		case models.OrderByStatus:
			c = strings.Compare(string(a.Status), string(b.Status))
		case models.OrderBySendAt:
			c = compareSendAt(a.SendAt, b.SendAt)
		default:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return a.ID < b.ID
	}
}

func compareSendAt(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return a.Compare(*b)
}
