package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const natsSubjectPrefix = "prep.jobs."

// NATSSubject is the subject carrying events for a job
func NATSSubject(jobID uuid.UUID) string {
	return natsSubjectPrefix + jobID.String()
}

// NATSBus publishes events on NATS core subjects
type NATSBus struct {
	nc  *nats.Conn
	log *zap.Logger
}

// NewNATSBus connects to NATS with unlimited reconnects
func NewNATSBus(url string, logger *zap.Logger) (*NATSBus, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connection failed: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSBus{nc: nc, log: logger.Named("notify.nats")}, nil
}

func (b *NATSBus) Publish(_ context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.nc.Publish(NATSSubject(ev.JobID), payload); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (b *NATSBus) Subscribe(ctx context.Context, jobID uuid.UUID) (<-chan Event, error) {
	msgs := make(chan *nats.Msg, subscriberBuffer)
	sub, err := b.nc.ChanSubscribe(NATSSubject(jobID), msgs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer func() { _ = sub.Unsubscribe() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-msgs:
				var ev Event
				if err := json.Unmarshal(msg.Data, &ev); err != nil {
					b.log.Warn("dropping malformed event", zap.String("subject", msg.Subject), zap.Error(err))
					continue
				}
				offer(out, ev)
			}
		}
	}()
	return out, nil
}

func (b *NATSBus) Close() error {
	if b.nc != nil {
		return b.nc.Drain()
	}
	return nil
}
