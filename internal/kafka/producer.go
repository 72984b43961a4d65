package kafka

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// Publisher is the write side used by services; *Producer implements it.
type Publisher interface {
	Publish(key, value []byte, headers ...kafka.Header)
}

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true, // fire-and-forget, error dilaporkan lewat Completion
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Error().Err(err).Str("topic", topic).Int("messages", len(msgs)).Msg("kafka write failed")
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start drains the inbox until Close is called, then flushes the writer.
func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.Background(), m); err != nil {
				log.Error().Err(err).Str("topic", p.w.Topic).Msg("kafka enqueue failed")
			}
		}
		if err := p.w.Close(); err != nil {
			log.Error().Err(err).Str("topic", p.w.Topic).Msg("kafka writer close")
		}
	}()
}

// Publish drops the message once Close has been called.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		log.Warn().Str("topic", p.w.Topic).Bytes("key", key).Msg("kafka publish after close dropped")
		return
	}
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Tutup channel supaya goroutine nge-flush sisa pesan lalu exit rapi.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

// Tunggu sampai goroutine selesai.
func (p *Producer) WaitClosed() { <-p.closeCh }
