package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProducer_PublishAfterCloseIsDropped(t *testing.T) {
	p := NewProducer([]string{"localhost:9092"}, "order.placed", 4)
	p.Publish([]byte("o-1"), []byte(`{}`))
	p.Close()

	assert.NotPanics(t, func() { p.Publish([]byte("o-2"), []byte(`{}`)) })
	assert.NotPanics(t, p.Close)
	assert.Len(t, p.inbox, 1)
}
