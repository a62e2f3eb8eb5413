package kafkax

import (
	"github.com/segmentio/kafka-go"
)

// NewWriter returns a writer suitable for outbox publishing: hash-balanced
// by key, acks from all replicas, topic set per message.
func NewWriter(brokers string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(SplitBrokers(brokers)...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
