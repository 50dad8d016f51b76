/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package events

import (
	"context"
	"encoding/json"

	"github.com/ssgreg/logf"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher publishes rate limit events to a Kafka topic.
// Records are produced asynchronously, delivery failures are logged and dropped.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	logger *logf.Logger
}

// NewKafkaPublisher creates a new Kafka publisher on top of an already configured client.
// The caller keeps ownership of the client's lifecycle. Logger may be nil.
func NewKafkaPublisher(client *kgo.Client, topic string, logger *logf.Logger) *KafkaPublisher {
	if logger == nil {
		logger = logf.NewDisabledLogger()
	}
	return &KafkaPublisher{client: client, topic: topic, logger: logger}
}

// Publish implements the Publisher interface.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("marshal rate limit event", logf.Error(err))
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Identity),
		Value: eventBytes,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("produce rate limit event", logf.Error(err))
		}
	})
}
