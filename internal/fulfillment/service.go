// Package fulfillment applies the verified-only prescription gate to placed
// orders. Orders waiting on a prescription are put on hold and released when
// a pharmacist verifies it.
package fulfillment

import (
	"context"
	"errors"
	"fmt"

	kafkax "github.com/ariefcatur/go-pharmacy-store/internal/kafka"
	"github.com/ariefcatur/go-pharmacy-store/internal/orders"
	"github.com/ariefcatur/go-pharmacy-store/internal/prescription"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"
)

const (
	ReasonPrescriptionPending  = "PRESCRIPTION_PENDING"
	ReasonPrescriptionRejected = "PRESCRIPTION_REJECTED"
)

type OrderStore interface {
	Get(ctx context.Context, id uuid.UUID) (*orders.Order, error)
	SetFulfillmentHold(ctx context.Context, id uuid.UUID, hold bool) (*orders.Order, error)
	ListHeldByPrescription(ctx context.Context, prescriptionID uuid.UUID) ([]uuid.UUID, error)
}

type Gate interface {
	CheckFulfill(ctx context.Context, prescriptionID *uuid.UUID) error
}

// Deduper is satisfied by *redisx.Deduper.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type Service struct {
	Orders      OrderStore
	Gate        Gate
	Dedup       Deduper          // nil disables dedup
	Producer    kafkax.Publisher // publish order.fulfillment
	ServiceName string
}

// HandleOrderPlaced: dipasang sebagai handler consumer order.placed.
func (s *Service) HandleOrderPlaced(ctx context.Context, m kafkago.Message) error {
	// 1) decode envelope
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventOrderPlaced {
		return nil
	} // ignore

	return s.once(ctx, env.EventID, func() error {
		p, err := kafkax.UnwrapPayload[orders.OrderPlacedPayload](env.Payload)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(p.OrderID)
		if err != nil {
			return fmt.Errorf("fulfillment: order id %q: %w", p.OrderID, err)
		}
		return s.evaluate(ctx, id, env.TraceID)
	})
}

// HandlePrescriptionReviewed re-evaluates every held order that references
// the reviewed prescription.
func (s *Service) HandlePrescriptionReviewed(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != prescription.EventReviewed {
		return nil
	}

	return s.once(ctx, env.EventID, func() error {
		p, err := kafkax.UnwrapPayload[prescription.ReviewedPayload](env.Payload)
		if err != nil {
			return err
		}
		rxID, err := uuid.Parse(p.PrescriptionID)
		if err != nil {
			return fmt.Errorf("fulfillment: prescription id %q: %w", p.PrescriptionID, err)
		}
		held, err := s.Orders.ListHeldByPrescription(ctx, rxID)
		if err != nil {
			return err
		}
		for _, id := range held {
			if err := s.evaluate(ctx, id, env.TraceID); err != nil {
				return err
			}
		}
		return nil
	})
}

// once runs fn at most once per event id. A failed fn releases the claim so
// the uncommitted message is processed again on redelivery.
func (s *Service) once(ctx context.Context, eventID string, fn func() error) error {
	if s.Dedup == nil {
		return fn()
	}
	// dedup via Redis (pakai event_id)
	claimed, err := s.Dedup.Claim(ctx, eventID)
	if err != nil {
		return fmt.Errorf("fulfillment: dedup claim: %w", err)
	}
	if !claimed {
		log.Debug().Str("event_id", eventID).Msg("fulfillment: duplicate event skipped")
		return nil
	}
	if err := fn(); err != nil {
		if rerr := s.Dedup.Release(ctx, eventID); rerr != nil {
			log.Warn().Err(rerr).Str("event_id", eventID).Msg("fulfillment: dedup release")
		}
		return err
	}
	return nil
}

func (s *Service) evaluate(ctx context.Context, orderID uuid.UUID, trace string) error {
	o, err := s.Orders.Get(ctx, orderID)
	if errors.Is(err, orders.ErrNotFound) {
		log.Warn().Stringer("order_id", orderID).Msg("fulfillment: order vanished")
		return nil
	}
	if err != nil {
		return err
	}
	if o.Status == orders.StatusCancelled || o.Status == orders.StatusDelivered {
		return nil
	}

	awaiting, reason, err := s.awaiting(ctx, o)
	if err != nil {
		return err
	}
	hold := len(awaiting) > 0
	if o.FulfillmentHold != hold {
		if _, err := s.Orders.SetFulfillmentHold(ctx, o.ID, hold); err != nil {
			return err
		}
	}
	if hold && !o.FulfillmentHold {
		// review bisa selesai di antara cek di atas dan penulisan hold;
		// tanpa cek ulang order itu tertahan terus
		awaiting, reason, err = s.awaiting(ctx, o)
		if err != nil {
			return err
		}
		if len(awaiting) == 0 {
			hold = false
			if _, err := s.Orders.SetFulfillmentHold(ctx, o.ID, false); err != nil {
				return err
			}
		}
	}

	eventType := orders.EventOrderFulfillable
	if hold {
		eventType = orders.EventOrderHeld
	}
	env := kafkax.NewEnvelope(ctx, eventType, s.ServiceName, o.ID.String(), orders.FulfillmentPayload{
		OrderID:              o.ID.String(),
		AwaitingPrescription: awaiting,
		Reason:               reason,
	}).WithTrace(trace)
	kafkax.Emit(s.Producer, orders.PartitionKey(o.ID.String()), env)

	log.Info().Stringer("order_id", o.ID).Bool("hold", hold).Str("reason", reason).Msg("fulfillment: order evaluated")
	return nil
}

// awaiting lists the products of o whose prescription is not verified, with
// the reason to report.
func (s *Service) awaiting(ctx context.Context, o *orders.Order) ([]string, string, error) {
	var (
		awaiting []string
		reason   string
	)
	for _, it := range o.Items {
		if it.PrescriptionID == nil {
			continue
		}
		err := s.Gate.CheckFulfill(ctx, it.PrescriptionID)
		switch {
		case err == nil:
			continue
		case errors.Is(err, prescription.ErrRejected):
			reason = ReasonPrescriptionRejected
		case prescription.IsGateError(err):
			if reason == "" {
				reason = ReasonPrescriptionPending
			}
		default:
			return nil, "", err
		}
		awaiting = append(awaiting, it.ProductID.String())
	}
	return awaiting, reason, nil
}
