// Package events publishes notification and activity events to Kafka.
// Publishing is fire-and-forget: a broker outage degrades to a log line,
// never to a failed API request.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/yuriguchi/testy/internal/config"
)

// Event verbs emitted by the domain services.
const (
	VerbCaseUpdated    = "testcase.updated"
	VerbPlanCreated    = "testplan.created"
	VerbPlanFinished   = "testplan.finished"
	VerbTestAssigned   = "test.assigned"
	VerbResultAdded    = "testresult.added"
	VerbEntityDeleted  = "entity.deleted"
	VerbEntityArchived = "entity.archived"
)

// Event is the wire payload of one domain occurrence.
type Event struct {
	Verb      string                 `json:"verb"`
	ProjectID int64                  `json:"project_id"`
	ActorID   int64                  `json:"actor_id"`
	TargetID  int64                  `json:"target_id,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Producer publishes events. A nil Producer is valid and drops everything,
// which keeps call sites unconditional when Kafka is disabled.
type Producer struct {
	client             *kgo.Client
	notificationsTopic string
	activityTopic      string
	logger             *slog.Logger
}

// NewProducer connects to the brokers. Returns nil when Kafka is disabled.
func NewProducer(cfg config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}
	return &Producer{
		client:             client,
		notificationsTopic: cfg.NotificationsTopic,
		activityTopic:      cfg.ActivityTopic,
		logger:             logger,
	}, nil
}

// Notify publishes to the notifications topic, keyed by project for ordering.
func (p *Producer) Notify(ctx context.Context, event Event) {
	p.produce(ctx, p.notificationsTopic, event)
}

// Activity publishes to the activity topic.
func (p *Producer) Activity(ctx context.Context, event Event) {
	p.produce(ctx, p.activityTopic, event)
}

func (p *Producer) produce(ctx context.Context, topic string, event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", "verb", event.Verb, "error", err)
		return
	}
	record := &kgo.Record{
		Topic: topic,
		Key:   []byte(fmt.Sprintf("%d", event.ProjectID)),
		Value: value,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.logger.Error("failed to produce event",
				"topic", topic, "verb", event.Verb, "error", err)
		}
	})
}

// Close flushes pending records and releases the client.
func (p *Producer) Close() {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.client.Flush(ctx)
	p.client.Close()
}
