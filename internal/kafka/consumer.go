package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Handler harus return nil hanya jika proses sukses & boleh commit offset.
type Handler func(ctx context.Context, m kafka.Message) error

// reader is the part of *kafka.Reader the consumer drives.
type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	r          reader
	topic      string
	workers    int
	backoff    time.Duration
	maxBackoff time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, topic, workers)
}

func newConsumer(r reader, topic string, workers int) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, topic: topic, workers: workers, backoff: 200 * time.Millisecond, maxBackoff: 10 * time.Second}
}

// eventType reads the x-event-type header set by Emit.
func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == HeaderEventType {
			return string(h.Value)
		}
	}
	return ""
}

// Start blocks until ctx is cancelled or the reader fails.
//
// Offsets are committed per partition and cumulatively, so every partition is
// owned by a single worker and a failing message is retried in place until it
// succeeds or ctx ends. Nothing after it on the same partition is committed
// first.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 256)
		wg.Add(1)
		go func(jobs <-chan kafka.Message) {
			defer wg.Done()
			for m := range jobs {
				if !c.process(ctx, h, m) {
					// ctx selesai; sisa pesan dibiarkan uncommitted
					return
				}
			}
		}(lanes[i])
	}

	stop := func(err error) error {
		if err != nil {
			cancel() // hentikan retry yang sedang jalan
		}
		for _, l := range lanes {
			close(l)
		}
		wg.Wait()
		if cerr := c.r.Close(); cerr != nil {
			log.Warn().Err(cerr).Str("topic", c.topic).Msg("close reader")
		}
		return err
	}

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			// kecilkan noise saat shutdown
			if ctx.Err() != nil {
				return stop(nil)
			}
			return stop(err)
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return stop(nil)
		}
	}
}

// process handles m until it succeeds, then commits it. It reports false when
// ctx ended before the message was handled.
func (c *Consumer) process(ctx context.Context, h Handler, m kafka.Message) bool {
	wait := c.backoff
	for attempt := 1; ; attempt++ {
		err := h(ctx, m)
		if err == nil {
			break
		}
		log.Error().Err(err).Str("topic", c.topic).Str("op", "handle").
			Int("partition", m.Partition).Int64("offset", m.Offset).
			Str("event_type", eventType(m)).Int("attempt", attempt).Msg("consumer: message failed")
		if !sleep(ctx, wait) {
			return false
		}
		wait = min(wait*2, c.maxBackoff)
	}

	// commit gagal tidak fatal: commit offset berikutnya ikut menutupnya
	if err := c.r.CommitMessages(ctx, m); err != nil {
		log.Error().Err(err).Str("topic", c.topic).Str("op", "commit").
			Int("partition", m.Partition).Int64("offset", m.Offset).
			Str("event_type", eventType(m)).Msg("consumer: message failed")
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
