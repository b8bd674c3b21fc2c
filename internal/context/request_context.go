package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type requestInfoKey struct{}

// RequestInfo holds information about the current request
type RequestInfo struct {
	ID         string    `json:"request_id"`
	StartTime  time.Time `json:"start_time"`
	UserAgent  string    `json:"user_agent,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// NewRequestContext stores request information on ctx. An empty requestID
// gets a fresh uuid.
func NewRequestContext(ctx context.Context, requestID, userAgent, remoteAddr string) context.Context {
	if requestID == "" {
		requestID = uuid.New().String()
	}
	return context.WithValue(ctx, requestInfoKey{}, RequestInfo{
		ID:         requestID,
		StartTime:  time.Now(),
		UserAgent:  userAgent,
		RemoteAddr: remoteAddr,
	})
}

// GetRequestInfo extracts request information from ctx. Contexts not created
// by NewRequestContext yield the zero value.
func GetRequestInfo(ctx context.Context) RequestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(RequestInfo)
	return info
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	return GetRequestInfo(ctx).ID
}
