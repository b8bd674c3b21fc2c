package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/database"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// PostgresListRepository reads lists and their subscribers. Both tables are
// owned elsewhere; nothing here writes to them.
type PostgresListRepository struct {
	db *database.DB
}

// NewPostgresListRepository creates a new list and subscriber reader
func NewPostgresListRepository(db *database.DB) *PostgresListRepository {
	return &PostgresListRepository{db: db}
}

// GetLists implements service.ListRepository
func (r *PostgresListRepository) GetLists(ctx context.Context, ids []int) ([]models.ListRef, error) {
	if len(ids) == 0 {
		return []models.ListRef{}, nil
	}

	keys := make([]int64, len(ids))
	for i, id := range ids {
		keys[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM lists WHERE id = ANY($1)`, pq.Array(keys))
	if err != nil {
		return nil, fmt.Errorf("failed to query lists: %w", err)
	}
	defer rows.Close()

	found := make(map[int]models.ListRef, len(ids))
	for rows.Next() {
		var l models.ListRef
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		found[l.ID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over lists: %w", err)
	}

	out := make([]models.ListRef, 0, len(ids))
	for _, id := range ids {
		l, ok := found[id]
		if !ok {
			return nil, apperrors.NewNotFound("list", id)
		}
		out = append(out, l)
	}
	return out, nil
}

// ListSubscribers implements service.SubscriberRepository
func (r *PostgresListRepository) ListSubscribers(ctx context.Context, listIDs []int, afterID, limit int) ([]models.Subscriber, error) {
	keys := make([]int64, len(listIDs))
	for i, id := range listIDs {
		keys[i] = int64(id)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT s.id, s.uuid, s.email, s.name, s.attribs, s.status
		FROM subscribers s
		JOIN subscriber_lists sl ON sl.subscriber_id = s.id
		WHERE sl.list_id = ANY($1) AND s.id > $2
		ORDER BY s.id
		LIMIT $3`, pq.Array(keys), afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscribers: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscriber
	for rows.Next() {
		var (
			s       models.Subscriber
			attribs []byte
		)
		if err := rows.Scan(&s.ID, &s.UUID, &s.Email, &s.Name, &attribs, &s.Status); err != nil {
			return nil, fmt.Errorf("failed to scan subscriber: %w", err)
		}
		if err := json.Unmarshal(attribs, &s.Attribs); err != nil {
			return nil, fmt.Errorf("failed to decode attribs of subscriber %d: %w", s.ID, err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over subscribers: %w", err)
	}
	return subs, nil
}
