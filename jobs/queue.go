package jobs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.uber.org/zap"
)

// Enqueuer is implemented by Queue and by test fakes.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job) error
}

// Queue veröffentlicht Jobs auf einem watermill-Topic.
type Queue struct {
	publisher message.Publisher
	topic     string
	logger    *zap.Logger
}

// NewQueue erstellt eine neue Queue.
func NewQueue(publisher message.Publisher, topic string, logger *zap.Logger) *Queue {
	return &Queue{publisher: publisher, topic: topic, logger: logger}
}

// Enqueue publishes job. The caller must have persisted any state the job depends on.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}

	msg := message.NewMessage(job.ID, payload)
	msg.Metadata.Set(KindMetadataKey, string(job.Kind))
	msg.SetContext(ctx)

	if err := q.publisher.Publish(q.topic, msg); err != nil {
		return fmt.Errorf("publish %s job: %w", job.Kind, err)
	}
	q.logger.Debug("Job eingereiht",
		zap.String("job_id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.Uint("publication_id", job.PublicationID),
		zap.Uint("file_id", job.FileID))
	return nil
}
