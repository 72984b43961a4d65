package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const EventVersion = 1

const (
	HeaderEventType    = "x-event-type"
	HeaderEventVersion = "x-event-version"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya order_id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps payload as a v1 event. The trace id is taken from the
// request id that chi stored in ctx, if any.
func NewEnvelope(ctx context.Context, eventType, producer, correlationID string, payload any) Envelope {
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		TraceID:       middleware.GetReqID(ctx),
		CorrelationID: correlationID,
		Payload:       MustMarshal(payload),
	}
}

// WithTrace overrides the trace id, used by consumers to carry it forward.
func (e Envelope) WithTrace(trace string) Envelope {
	if trace != "" {
		e.TraceID = trace
	}
	return e
}

// Emit publishes env keyed by key. A nil publisher drops the event.
func Emit(p Publisher, key string, env Envelope) {
	if p == nil {
		return
	}
	p.Publish([]byte(key), MustMarshal(env),
		kafka.Header{Key: HeaderEventType, Value: []byte(env.EventType)},
		kafka.Header{Key: HeaderEventVersion, Value: []byte(strconv.Itoa(env.EventVersion))},
	)
}
