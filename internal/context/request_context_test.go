package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRequestContext(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "abc", "curl/8.0", "10.0.0.1:5000")

	info := GetRequestInfo(ctx)
	assert.Equal(t, "abc", info.ID)
	assert.Equal(t, "curl/8.0", info.UserAgent)
	assert.Equal(t, "10.0.0.1:5000", info.RemoteAddr)
	assert.False(t, info.StartTime.IsZero())
}

func TestNewRequestContext_GeneratesID(t *testing.T) {
	ctx := NewRequestContext(context.Background(), "", "", "")
	assert.Len(t, GetRequestID(ctx), 36)
}

func TestGetRequestID_Missing(t *testing.T) {
	assert.Empty(t, GetRequestID(context.Background()))
}
