package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/paasify/cfvault/internal/cfauth"
	"github.com/paasify/cfvault/internal/metrics"
	"github.com/paasify/cfvault/pkg/model"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	PublishMsg(msg *nats.Msg) error
}

// Publisher emits login events to NATS. It satisfies cfauth.Observer.
type Publisher struct {
	nc      Conn
	subject string
	service string
	logger  *zap.Logger
	now     func() time.Time
}

func New(nc Conn, subject, service string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		nc:      nc,
		subject: subject,
		service: service,
		logger:  logger,
		now:     time.Now,
	}
}

func (p *Publisher) LoginSucceeded(method string, tok cfauth.Token, elapsed time.Duration) {
	evt := p.event(model.EventLoginSucceeded, method, elapsed)
	evt.TokenKind = tok.Kind().String()
	if lease, ok := tok.LeaseDuration(); ok {
		evt.LeaseSeconds = int64(lease / time.Second)
	}
	p.publish(evt)
}

func (p *Publisher) LoginFailed(method string, err error, elapsed time.Duration) {
	evt := p.event(model.EventLoginFailed, method, elapsed)
	evt.Error = err.Error()
	p.publish(evt)
}

func (p *Publisher) event(eventType, method string, elapsed time.Duration) model.LoginEvent {
	return model.LoginEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Service:   p.service,
		Method:    method,
		ElapsedMs: elapsed.Milliseconds(),
		Timestamp: p.now().UTC(),
	}
}

// publish is best effort; a failed publish never fails the login.
func (p *Publisher) publish(evt model.LoginEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("publisher.marshal_failed", zap.String("event_type", evt.EventType), zap.Error(err))
		return
	}

	msg := &nats.Msg{
		Subject: p.subject,
		Data:    data,
		Header: nats.Header{
			"event_type":     []string{evt.EventType},
			"correlation_id": []string{evt.ID.String()},
			"service":        []string{p.service},
			"content_type":   []string{"application/json"},
		},
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		metrics.IncNATSPublishError(p.subject)
		p.logger.Warn("publisher.publish_failed",
			zap.String("subject", p.subject),
			zap.String("event_type", evt.EventType),
			zap.Error(err))
		return
	}

	p.logger.Debug("publisher.publish_success",
		zap.String("subject", p.subject),
		zap.String("event_type", evt.EventType))
}
