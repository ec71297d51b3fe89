package log

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLoggerRequestId(t *testing.T) {
	ctx := context.WithValue(context.Background(), CtxRequestId, "abc123")

	entry := GetLogger(ctx)
	require.Contains(t, entry.Data, CtxRequestId)
	assert.Equal(t, "abc123", entry.Data[CtxRequestId])
}

func TestGetLoggerWithoutRequestId(t *testing.T) {
	entry := GetLogger(context.Background())
	assert.Empty(t, entry.Data)
}
