package kafka

import (
	"context"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	msgs []kafka.Message
}

func (r *recorder) Publish(key, value []byte, headers ...kafka.Header) {
	r.msgs = append(r.msgs, kafka.Message{Key: key, Value: value, Headers: headers})
}

type samplePayload struct {
	OrderID string `json:"order_id"`
}

func TestEmit_EnvelopeAndHeaders(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	env := NewEnvelope(ctx, "OrderPlaced", "pharmacy-api", "o-1", samplePayload{OrderID: "o-1"})

	rec := &recorder{}
	Emit(rec, "o-1", env)

	require.Len(t, rec.msgs, 1)
	m := rec.msgs[0]
	assert.Equal(t, []byte("o-1"), m.Key)
	assert.Equal(t, HeaderEventType, m.Headers[0].Key)
	assert.Equal(t, "OrderPlaced", eventType(m))
	assert.Equal(t, "1", string(m.Headers[1].Value))

	got, err := DecodeEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, "req-42", got.TraceID)
	assert.Equal(t, EventVersion, got.EventVersion)
	assert.NotEmpty(t, got.EventID)

	p, err := UnwrapPayload[samplePayload](got.Payload)
	require.NoError(t, err)
	assert.Equal(t, "o-1", p.OrderID)
}

func TestEmit_NilPublisher(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, "k", NewEnvelope(context.Background(), "X", "p", "", struct{}{}))
	})
}

func TestWithTrace(t *testing.T) {
	env := NewEnvelope(context.Background(), "X", "p", "", struct{}{})
	assert.Empty(t, env.TraceID)
	assert.Equal(t, "t-1", env.WithTrace("t-1").TraceID)
	assert.Equal(t, "t-1", env.WithTrace("t-1").WithTrace("").TraceID)
}
