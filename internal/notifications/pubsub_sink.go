package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
)

// MessagePublisher publishes one payload with attributes and waits for the server ack.
type MessagePublisher interface {
	Publish(ctx context.Context, data []byte, attrs map[string]string) error
}

// TopicPublisher adapts a Pub/Sub v2 publisher.
type TopicPublisher struct {
	publisher *pubsub.Publisher
}

func NewTopicPublisher(p *pubsub.Publisher) (*TopicPublisher, error) {
	if p == nil {
		return nil, errors.New("pubsub publisher required")
	}
	return &TopicPublisher{publisher: p}, nil
}

func (t *TopicPublisher) Publish(ctx context.Context, data []byte, attrs map[string]string) error {
	result := t.publisher.Publish(ctx, &pubsub.Message{Data: data, Attributes: attrs})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Stop flushes pending messages.
func (t *TopicPublisher) Stop() {
	if t != nil && t.publisher != nil {
		t.publisher.Stop()
	}
}

// PubSubSink pushes user-addressed notifications to the push delivery topic.
// Notifications without a user are skipped: there is no device to deliver them to.
type PubSubSink struct {
	publisher MessagePublisher
	logg      *logger.Logger
}

func NewPubSubSink(publisher MessagePublisher, logg *logger.Logger) (*PubSubSink, error) {
	if publisher == nil {
		return nil, errors.New("message publisher required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &PubSubSink{publisher: publisher, logg: logg}, nil
}

func (s *PubSubSink) Notify(ctx context.Context, n Notification) {
	if n.UserID == "" {
		return
	}
	payload, err := json.Marshal(n)
	if err != nil {
		s.logg.Error(ctx, "marshal push notification", err)
		return
	}
	attrs := map[string]string{
		"user_id": n.UserID,
		"type":    string(n.Level),
	}
	if err := s.publisher.Publish(ctx, payload, attrs); err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, n.UserID), "push notification failed", err)
	}
}
