package models

import (
	"strings"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
)

// Pagination bounds for campaign listings
const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Sort fields accepted by CampaignQuery.OrderBy
const (
	OrderByName      = "name"
	OrderByCreatedAt = "created_at"
	OrderByStatus    = "status"
	OrderBySendAt    = "send_at"
)

// Sort directions
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// CampaignQuery holds the filter, sort and page parameters of a listing.
// It carries no server-side cursor; every page is computed from these fields alone.
type CampaignQuery struct {
	Search   string           `json:"query"`
	Statuses []CampaignStatus `json:"status"`
	OrderBy  string           `json:"order_by"`
	// Order applies to OrderBy only. Rows with equal sort values stay in
	// ascending id order for both asc and desc.
	Order    string           `json:"order"`
	Page     int              `json:"page"`
	PerPage  int              `json:"per_page"`
}

// Normalize applies defaults and validates the query
func (q *CampaignQuery) Normalize() error {
	q.Search = strings.TrimSpace(q.Search)

	q.OrderBy = strings.ToLower(strings.TrimSpace(q.OrderBy))
	switch q.OrderBy {
	case "":
		q.OrderBy = OrderByCreatedAt
	case OrderByName, OrderByCreatedAt, OrderByStatus, OrderBySendAt:
	default:
		return apperrors.NewValidation("order_by", "unknown sort field %q", q.OrderBy)
	}

	q.Order = strings.ToLower(strings.TrimSpace(q.Order))
	switch q.Order {
	case "":
		q.Order = OrderDesc
	case OrderAsc, OrderDesc:
	default:
		return apperrors.NewValidation("order", "must be asc or desc")
	}

	for _, s := range q.Statuses {
		if !s.IsValid() {
			return apperrors.NewValidation("status", "unknown status %q", s)
		}
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return nil
}

// Offset returns the number of rows before the requested page
func (q *CampaignQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// Matches reports whether c passes the search and status filters
func (q *CampaignQuery) Matches(c *Campaign) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if c.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Search == "" {
		return true
	}
	needle := strings.ToLower(q.Search)
	return strings.Contains(strings.ToLower(c.Name), needle) ||
		strings.Contains(strings.ToLower(c.Subject), needle)
}
