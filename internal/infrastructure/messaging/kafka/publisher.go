package kafka

import (
	"context"

	"github.com/turtacn/TransitLedger/internal/domain/settlement"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/TransitLedger/internal/infrastructure/monitoring/prometheus"
)

// publisher is the subset of Producer used by SettlementPublisher.
type publisher interface {
	Publish(ctx context.Context, msg *Message) error
	PublishBatch(ctx context.Context, msgs []*Message) (*BatchResult, error)
}

// SettlementPublisher writes notifications and audit records to their
// topics, keyed by entity id so that one entity's records stay ordered.
type SettlementPublisher struct {
	producer          publisher
	notificationTopic string
	auditTopic        string
	logger            logging.Logger
	metrics           *prometheus.AppMetrics
}

// NewSettlementPublisher builds a SettlementPublisher over producer.
func NewSettlementPublisher(producer *Producer, notificationTopic, auditTopic string, logger logging.Logger) *SettlementPublisher {
	return &SettlementPublisher{
		producer:          producer,
		notificationTopic: notificationTopic,
		auditTopic:        auditTopic,
		logger:            logger,
	}
}

// WithMetrics counts published and failed messages per topic.
func (p *SettlementPublisher) WithMetrics(m *prometheus.AppMetrics) *SettlementPublisher {
	p.metrics = m
	return p
}

// PublishNotification writes n to the notification topic.
func (p *SettlementPublisher) PublishNotification(ctx context.Context, n settlement.Notification) error {
	return p.publish(ctx, p.notificationTopic, EventTypeNotification, n.EntityID, n)
}

// PublishAudit writes rec to the audit topic.
func (p *SettlementPublisher) PublishAudit(ctx context.Context, rec settlement.AuditRecord) error {
	return p.publish(ctx, p.auditTopic, EventTypeAudit, rec.EntityID, rec)
}

// PublishBatch writes the notifications and audit records left by one
// committed operation in a single producer call.
func (p *SettlementPublisher) PublishBatch(ctx context.Context, notifications []settlement.Notification, audits []settlement.AuditRecord) error {
	msgs := make([]*Message, 0, len(notifications)+len(audits))
	for _, n := range notifications {
		msg, err := p.message(ctx, p.notificationTopic, EventTypeNotification, n.EntityID, n)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	for _, rec := range audits {
		msg, err := p.message(ctx, p.auditTopic, EventTypeAudit, rec.EntityID, rec)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if len(msgs) == 0 {
		return nil
	}

	res, err := p.producer.PublishBatch(ctx, msgs)
	if err != nil {
		return err
	}
	for i, msg := range msgs {
		prometheus.RecordPublish(p.metrics, msg.Topic, res.Errors[i])
	}
	if res.Failed > 0 {
		p.logger.Warn("settlement batch partially published",
			logging.Int("succeeded", res.Succeeded),
			logging.Int("failed", res.Failed))
		return ErrPublishFailed.WithMeta("failed", res.Failed)
	}
	return nil
}

func (p *SettlementPublisher) publish(ctx context.Context, topic, eventType, key string, payload interface{}) error {
	msg, err := p.message(ctx, topic, eventType, key, payload)
	if err != nil {
		return err
	}
	err = p.producer.Publish(ctx, msg)
	prometheus.RecordPublish(p.metrics, topic, err)
	if err != nil {
		p.logger.Warn("settlement event not published",
			logging.String("topic", topic),
			logging.String("key", key),
			logging.Err(err))
		return err
	}
	return nil
}

// message wraps payload in an envelope carrying the request id as trace id.
func (p *SettlementPublisher) message(ctx context.Context, topic, eventType, key string, payload interface{}) (*Message, error) {
	env, err := NewEventEnvelope(eventType, payload)
	if err != nil {
		return nil, err
	}
	if reqID := logging.RequestIDFromContext(ctx); reqID != "" {
		env.TraceID = reqID
	}
	return env.ToMessage(topic, key)
}
