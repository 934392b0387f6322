package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicContentCreated carries ContentCreated events.
const TopicContentCreated = "content.created"

// ContentCreated is published after an ingestion pass stored new content.
type ContentCreated struct {
	ContentIDs []string `json:"content_ids"`
}

// Queue is an in-process event bus between ingestion and the Worker.
type Queue struct {
	bus *gochannel.GoChannel
}

// NewQueue creates a Queue logging through log.
func NewQueue(log *slog.Logger) *Queue {
	bus := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: false,
		},
		watermill.NewSlogLogger(log),
	)
	return &Queue{bus: bus}
}

// PublishCreated announces newly created content.
func (q *Queue) PublishCreated(_ context.Context, contentIDs []string) error {
	data, err := json.Marshal(ContentCreated{ContentIDs: contentIDs})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := q.bus.Publish(TopicContentCreated, msg); err != nil {
		return fmt.Errorf("publish %s: %w", TopicContentCreated, err)
	}
	return nil
}

// Subscribe returns the stream of content.created messages. The stream
// closes when ctx is done or the queue is closed.
func (q *Queue) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return q.bus.Subscribe(ctx, TopicContentCreated)
}

// Close shuts the bus down.
func (q *Queue) Close() error {
	return q.bus.Close()
}
