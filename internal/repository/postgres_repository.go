package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/database"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// postgres error codes
const (
	pqLockNotAvailable    = "55P03"
	pqForeignKeyViolation = "23503"
)

const campaignColumns = `c.id, c.uuid, c.name, c.subject, c.from_email, c.content_type, c.body,
	c.altbody, c.status, c.send_at, c.created_at, c.updated_at`

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresRepository implements service.CampaignRepository using PostgreSQL
type PostgresRepository struct {
	db *database.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// Create inserts the campaign and its associations in one transaction
func (r *PostgresRepository) Create(ctx context.Context, c *models.Campaign) (*models.Campaign, error) {
	out := c.Clone()

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO campaigns (uuid, name, subject, from_email, content_type, body, altbody, status, send_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id`,
			out.UUID, out.Name, out.Subject, out.FromEmail, out.ContentType, out.Body, out.AltBody,
			out.Status, out.SendAt, out.CreatedAt, out.UpdatedAt,
		).Scan(&out.ID)
		if err != nil {
			return fmt.Errorf("failed to insert campaign: %w", err)
		}
		return writeAssociations(ctx, tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get retrieves one campaign with its lists and tags
func (r *PostgresRepository) Get(ctx context.Context, id int) (*models.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE c.id = $1`, id)
	c, err := scanCampaign(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewNotFound("campaign", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query campaign: %w", err)
	}

	if err := loadAssociations(ctx, r.db, []*models.Campaign{c}); err != nil {
		return nil, err
	}
	return c, nil
}

// Query lists campaigns matching q, ordered and paginated in SQL
func (r *PostgresRepository) Query(ctx context.Context, q models.CampaignQuery) ([]models.Campaign, int, error) {
	where, args := buildFilter(q)

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM campaigns c`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count campaigns: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM campaigns c%s ORDER BY %s LIMIT $%d OFFSET $%d`,
		campaignColumns, where, orderClause(q), len(args)+1, len(args)+2)
	args = append(args, q.PerPage, q.Offset())

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query campaigns: %w", err)
	}
	defer rows.Close()

	var ptrs []*models.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan campaign: %w", err)
		}
		ptrs = append(ptrs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating over campaign rows: %w", err)
	}

	if err := loadAssociations(ctx, r.db, ptrs); err != nil {
		return nil, 0, err
	}

	out := make([]models.Campaign, len(ptrs))
	for i, c := range ptrs {
		out[i] = *c
	}
	return out, total, nil
}

// Mutate locks the campaign row with FOR UPDATE NOWAIT, applies fn and
// writes the result back in the same transaction
func (r *PostgresRepository) Mutate(ctx context.Context, id int, fn func(c *models.Campaign) error) (*models.Campaign, error) {
	var out *models.Campaign

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		c.ID = id

		_, err = tx.ExecContext(ctx, `
			UPDATE campaigns SET name = $2, subject = $3, from_email = $4, content_type = $5, body = $6,
				altbody = $7, status = $8, send_at = $9, updated_at = $10
			WHERE id = $1`,
			id, c.Name, c.Subject, c.FromEmail, c.ContentType, c.Body, c.AltBody, c.Status, c.SendAt, c.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to update campaign: %w", err)
		}
		if err := writeAssociations(ctx, tx, c); err != nil {
			return err
		}

		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the campaign. Lists and tags go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id int) (*models.Campaign, error) {
	var out *models.Campaign

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		c, err := lockCampaign(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM campaigns WHERE id = $1`, id); err != nil {
			return fmt.Errorf("failed to delete campaign: %w", err)
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListDue returns scheduled campaigns whose send time has passed
func (r *PostgresRepository) ListDue(ctx context.Context, now time.Time) ([]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM campaigns
		WHERE status = 'scheduled' AND send_at <= $1
		ORDER BY send_at, id`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due campaigns: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan campaign id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockCampaign loads the campaign while taking its row lock. A row locked by
// another transaction fails immediately with ErrConcurrentModification.
func lockCampaign(ctx context.Context, tx *sql.Tx, id int) (*models.Campaign, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns c WHERE c.id = $1 FOR UPDATE NOWAIT`, id)
	c, err := scanCampaign(row)
	if err != nil {
		var pqErr *pq.Error
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, apperrors.NewNotFound("campaign", id)
		case errors.As(err, &pqErr) && string(pqErr.Code) == pqLockNotAvailable:
			return nil, apperrors.ErrConcurrentModification
		}
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}

	if err := loadAssociations(ctx, tx, []*models.Campaign{c}); err != nil {
		return nil, err
	}
	return c, nil
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	var (
		c           models.Campaign
		contentType string
		status      string
		altBody     sql.NullString
		sendAt      sql.NullTime
	)

	err := row.Scan(
		&c.ID, &c.UUID, &c.Name, &c.Subject, &c.FromEmail, &contentType, &c.Body,
		&altBody, &status, &sendAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.ContentType = models.ContentType(contentType)
	c.Status = models.CampaignStatus(status)
	if altBody.Valid {
		c.AltBody = &altBody.String
	}
	if sendAt.Valid {
		t := sendAt.Time
		c.SendAt = &t
	}
	c.Lists = []models.ListRef{}
	c.Tags = []string{}
	return &c, nil
}

// loadAssociations fills lists and tags for all campaigns with one query each
func loadAssociations(ctx context.Context, q querier, campaigns []*models.Campaign) error {
	if len(campaigns) == 0 {
		return nil
	}

	byID := make(map[int]*models.Campaign, len(campaigns))
	ids := make([]int64, 0, len(campaigns))
	for _, c := range campaigns {
		byID[c.ID] = c
		ids = append(ids, int64(c.ID))
	}

	rows, err := q.QueryContext(ctx, `
		SELECT cl.campaign_id, l.id, l.name
		FROM campaign_lists cl
		JOIN lists l ON l.id = cl.list_id
		WHERE cl.campaign_id = ANY($1)
		ORDER BY cl.campaign_id, cl.position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query campaign lists: %w", err)
	}
	for rows.Next() {
		var campaignID int
		var l models.ListRef
		if err := rows.Scan(&campaignID, &l.ID, &l.Name); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan campaign list: %w", err)
		}
		byID[campaignID].Lists = append(byID[campaignID].Lists, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over campaign lists: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT campaign_id, tag
		FROM campaign_tags
		WHERE campaign_id = ANY($1)
		ORDER BY campaign_id, position`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to query campaign tags: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var campaignID int
		var tag string
		if err := rows.Scan(&campaignID, &tag); err != nil {
			return fmt.Errorf("failed to scan campaign tag: %w", err)
		}
		byID[campaignID].Tags = append(byID[campaignID].Tags, tag)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating over campaign tags: %w", err)
	}
	return nil
}

// writeAssociations replaces the lists and tags of c, keeping their order
func writeAssociations(ctx context.Context, tx *sql.Tx, c *models.Campaign) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_lists WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("failed to clear campaign lists: %w", err)
	}
	if len(c.Lists) > 0 {
		ids := make([]int64, len(c.Lists))
		for i, l := range c.Lists {
			ids[i] = int64(l.ID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_lists (campaign_id, list_id, position)
			SELECT $1, x.id, x.ord FROM UNNEST($2::INT[]) WITH ORDINALITY AS x(id, ord)`,
			c.ID, pq.Array(ids))
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == pqForeignKeyViolation {
				return apperrors.NewNotFound("list", pqErr.Detail)
			}
			return fmt.Errorf("failed to insert campaign lists: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM campaign_tags WHERE campaign_id = $1`, c.ID); err != nil {
		return fmt.Errorf("failed to clear campaign tags: %w", err)
	}
	if len(c.Tags) > 0 {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO campaign_tags (campaign_id, tag, position)
			SELECT $1, x.tag, x.ord FROM UNNEST($2::TEXT[]) WITH ORDINALITY AS x(tag, ord)`,
			c.ID, pq.Array(c.Tags))
		if err != nil {
			return fmt.Errorf("failed to insert campaign tags: %w", err)
		}
	}
	return nil
}

// buildFilter returns the WHERE clause for q's search and status filters
func buildFilter(q models.CampaignQuery) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if q.Search != "" {
		args = append(args, "%"+escapeLike(q.Search)+"%")
		conds = append(conds, fmt.Sprintf("(c.name ILIKE $%d OR c.subject ILIKE $%d)", len(args), len(args)))
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("c.status::TEXT = ANY($%d)", len(args)))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// orderClause maps the whitelisted sort field to SQL. Ties always fall back
// to ascending id, and a missing send_at compares greater than any set one.
func orderClause(q models.CampaignQuery) string {
	dir := "DESC"
	if q.Order == models.OrderAsc {
		dir = "ASC"
	}

	var expr string
	switch q.OrderBy {
	case models.OrderByName:
		expr = "LOWER(c.name) " + dir
	case models.OrderByStatus:
		expr = "c.status::TEXT " + dir
	case models.OrderBySendAt:
		if dir == "ASC" {
			expr = "c.send_at ASC NULLS LAST"
		} else {
			expr = "c.send_at DESC NULLS FIRST"
		}
	default:
		expr = "c.created_at " + dir
	}
	return expr + ", c.id ASC"
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
