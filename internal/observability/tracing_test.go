package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTracingIsNoop(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, tp.Tracer())

	_, span := tp.Tracer().Start(context.Background(), SpanChatTurn)
	span.End()

	assert.NoError(t, tp.Shutdown(context.Background()))
}

func TestConversationAttrs(t *testing.T) {
	attrs := ConversationAttrs(42)
	require.Len(t, attrs, 1)
	assert.Equal(t, AttrConversationID, string(attrs[0].Key))
	assert.Equal(t, int64(42), attrs[0].Value.AsInt64())
}
