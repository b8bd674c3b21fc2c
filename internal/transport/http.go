package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	kitendpoint "github.com/go-kit/kit/endpoint"
	kittransport "github.com/go-kit/kit/transport"
	httptransport "github.com/go-kit/kit/transport/http"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/gorilla/mux"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/apperrors"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/endpoint"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

const (
	ServiceName    = "mailbeacon"
	ServiceVersion = "1.0.0"
)

// Error codes returned in ErrorResponse.Code
const (
	CodeValidation   = "validation_error"
	CodeInvalidState = "invalid_state"
	CodeNotFound     = "not_found"
	CodeConflict     = "concurrent_modification"
	CodeInternal     = "internal_error"
)

// HealthCheck is one dependency reported by /health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error

	// Details is optional and reported under "details" by name
	Details func(ctx context.Context) any
}

// NewHTTPHandler creates HTTP handlers for the campaign service
func NewHTTPHandler(endpoints endpoint.CampaignEndpoints, logger log.Logger, checks ...HealthCheck) *mux.Router {
	options := []httptransport.ServerOption{
		httptransport.ServerErrorEncoder(encodeError),
		httptransport.ServerErrorHandler(kittransport.ErrorHandlerFunc(func(ctx context.Context, err error) {
			// client mistakes are logged by the service middleware
			if isClientError(err) {
				return
			}
			level.Error(logger).Log("msg", "request failed", "err", err)
		})),
	}

	handler := func(e kitendpoint.Endpoint, dec httptransport.DecodeRequestFunc) http.Handler {
		return httptransport.NewServer(e, dec, encodeResponse, options...)
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/api/campaigns").Subrouter()

	api.Handle("", handler(endpoints.ListEndpoint, decodeListRequest)).Methods(http.MethodGet)
	api.Handle("", handler(endpoints.CreateEndpoint, decodeCreateRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}", handler(endpoints.GetEndpoint, decodeIDRequest)).Methods(http.MethodGet)
	api.Handle("/{id:[0-9]+}", handler(endpoints.UpdateEndpoint, decodeUpdateRequest)).Methods(http.MethodPut)
	api.Handle("/{id:[0-9]+}", handler(endpoints.DeleteEndpoint, decodeIDRequest)).Methods(http.MethodDelete)

	// Lifecycle
	api.Handle("/{id:[0-9]+}/schedule", handler(endpoints.ScheduleEndpoint, decodeScheduleRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}/unschedule", handler(endpoints.UnscheduleEndpoint, decodeIDRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}/start", handler(endpoints.StartEndpoint, decodeIDRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}/pause", handler(endpoints.PauseEndpoint, decodeIDRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}/resume", handler(endpoints.ResumeEndpoint, decodeIDRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}/cancel", handler(endpoints.CancelEndpoint, decodeIDRequest)).Methods(http.MethodPost)

	// Associations and content
	api.Handle("/{id:[0-9]+}/lists", handler(endpoints.SetListsEndpoint, decodeSetListsRequest)).Methods(http.MethodPut)
	api.Handle("/{id:[0-9]+}/tags", handler(endpoints.SetTagsEndpoint, decodeSetTagsRequest)).Methods(http.MethodPut)
	api.Handle("/{id:[0-9]+}/content-type", handler(endpoints.ConvertEndpoint, decodeConvertRequest)).Methods(http.MethodPut)
	api.Handle("/{id:[0-9]+}/clone", handler(endpoints.CloneEndpoint, decodeCloneRequest)).Methods(http.MethodPost)
	api.Handle("/{id:[0-9]+}/preview", handler(endpoints.PreviewEndpoint, decodeIDRequest)).Methods(http.MethodGet)

	r.Handle("/health", healthHandler(checks)).Methods(http.MethodGet)

	return r
}

func campaignID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil || id < 1 {
		return 0, apperrors.NewValidation("id", "must be a positive integer")
	}
	return id, nil
}

// decodeJSON reads the request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return apperrors.NewValidation("", "invalid JSON body: %v", err)
	}
	return nil
}

func decodeIDRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	return endpoint.IDRequest{ID: id}, nil
}

// decodeListRequest reads query, status, order_by, order, page and per_page.
// status may repeat or hold a comma separated set.
func decodeListRequest(_ context.Context, r *http.Request) (any, error) {
	v := r.URL.Query()
	q := models.CampaignQuery{
		Search:  v.Get("query"),
		OrderBy: v.Get("order_by"),
		Order:   v.Get("order"),
	}

	for _, s := range v["status"] {
		for _, st := range strings.Split(s, ",") {
			if st = strings.TrimSpace(st); st != "" {
				q.Statuses = append(q.Statuses, models.CampaignStatus(st))
			}
		}
	}

	var err error
	if q.Page, err = intParam(v.Get("page"), "page"); err != nil {
		return nil, err
	}
	if q.PerPage, err = intParam(v.Get("per_page"), "per_page"); err != nil {
		return nil, err
	}

	return endpoint.ListRequest{Query: q}, nil
}

func intParam(s, field string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, apperrors.NewValidation(field, "must be an integer")
	}
	return n, nil
}

func decodeCreateRequest(_ context.Context, r *http.Request) (any, error) {
	var req endpoint.CreateRequest
	if err := decodeJSON(r, &req.Campaign); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeUpdateRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	req := endpoint.UpdateRequest{ID: id}
	if err := decodeJSON(r, &req.Update); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeScheduleRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	req := endpoint.ScheduleRequest{ID: id}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	if req.SendAt.IsZero() {
		return nil, apperrors.NewValidation("send_at", "is required")
	}
	return req, nil
}

func decodeSetListsRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	req := endpoint.SetListsRequest{ID: id}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeSetTagsRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	req := endpoint.SetTagsRequest{ID: id}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeConvertRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	req := endpoint.ConvertRequest{ID: id}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req, nil
}

func decodeCloneRequest(_ context.Context, r *http.Request) (any, error) {
	id, err := campaignID(r)
	if err != nil {
		return nil, err
	}
	req := endpoint.CloneRequest{ID: id}
	if err := decodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req, nil
}

// encodeResponse writes successful responses as {"data": ...}. Failed
// responses go through encodeError.
func encodeResponse(ctx context.Context, w http.ResponseWriter, response any) error {
	if f, ok := response.(kitendpoint.Failer); ok && f.Failed() != nil {
		encodeError(ctx, f.Failed(), w)
		return nil
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if _, ok := response.(endpoint.DeleteResponse); ok {
		return json.NewEncoder(w).Encode(models.DataResponse{Data: true})
	}
	return json.NewEncoder(w).Encode(response)
}

// encodeError maps typed errors to status codes and the JSON error body
func encodeError(_ context.Context, err error, w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")

	var (
		status = http.StatusInternalServerError
		resp   = models.NewErrorResponse(CodeInternal, "internal server error")

		verr *apperrors.ValidationError
		serr *apperrors.InvalidStateError
		nerr *apperrors.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp = models.NewErrorResponse(CodeValidation, err.Error())
		resp.Field = verr.Field
	case errors.As(err, &serr):
		status = http.StatusConflict
		resp = models.NewErrorResponse(CodeInvalidState, err.Error())
		resp.CurrentStatus = serr.Current
		resp.Requested = serr.Requested
	case errors.As(err, &nerr):
		status = http.StatusNotFound
		resp = models.NewErrorResponse(CodeNotFound, err.Error())
	case apperrors.IsConcurrentModification(err):
		status = http.StatusConflict
		resp = models.NewErrorResponse(CodeConflict, err.Error())
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func isClientError(err error) bool {
	return apperrors.IsValidation(err) || apperrors.IsInvalidState(err) ||
		apperrors.IsNotFound(err) || apperrors.IsConcurrentModification(err)
}

// healthHandler reports each dependency and answers 503 if any is down
func healthHandler(checks []HealthCheck) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		components := make(map[string]string, len(checks))
		details := make(map[string]any)
		for _, c := range checks {
			if c.Details != nil {
				details[c.Name] = c.Details(ctx)
			}
			if err := c.Check(ctx); err != nil {
				components[c.Name] = "unhealthy: " + err.Error()
				status, code = "unhealthy", http.StatusServiceUnavailable
				continue
			}
			components[c.Name] = "healthy"
		}

		response := map[string]any{
			"status":  status,
			"service": ServiceName,
			"version": ServiceVersion,
		}
		if len(components) > 0 {
			response["checks"] = components
		}
		if len(details) > 0 {
			response["details"] = details
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(response)
	})
}
