package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"
)

// DefaultMaxDeliveryAttempts caps redelivery of a failing job when the
// subscription reports delivery attempts.
const DefaultMaxDeliveryAttempts = 5

// Ack decisions.
const (
	decisionAck  = "ack"
	decisionNack = "nack"
	decisionDrop = "drop"
)

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	Dispatcher       *Dispatcher
	Logger           zerolog.Logger

	// MaxDeliveryAttempts defaults to DefaultMaxDeliveryAttempts.
	MaxDeliveryAttempts int
}

// PubSubHandler feeds Pub/Sub job messages to a Dispatcher.
type PubSubHandler struct {
	client       *pubsub.Client
	subscriber   *pubsub.Subscriber
	subscription string
	dispatcher   *Dispatcher
	maxAttempts  int
	logger       zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)
	// Validation and import runs are long; keep few in flight.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 2
	subscriber.ReceiveSettings.MaxExtension = 30 * time.Minute

	maxAttempts := cfg.MaxDeliveryAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxDeliveryAttempts
	}

	return &PubSubHandler{
		client:       client,
		subscriber:   subscriber,
		subscription: cfg.SubscriptionName,
		dispatcher:   cfg.Dispatcher,
		maxAttempts:  maxAttempts,
		logger:       cfg.Logger.With().Str("component", "pubsub").Logger(),
	}, nil
}

// Start receives messages until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().Str("subscription", h.subscription).Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	start := time.Now()
	attempt := 0
	if msg.DeliveryAttempt != nil {
		attempt = *msg.DeliveryAttempt
	}

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Time("publish_time", msg.PublishTime).
		Int("delivery_attempt", attempt).
		Logger()

	jobType, err := h.dispatcher.Dispatch(ctx, msg.Data)
	logger = logger.With().Str("job_type", jobType).Logger()

	switch ackDecision(err, attempt, h.maxAttempts) {
	case decisionAck:
		if err != nil {
			logger.Warn().Err(err).Msg("unknown job type, dropping message")
		} else {
			logger.Info().Dur("duration", time.Since(start)).Msg("job completed successfully")
		}
		msg.Ack()
	case decisionDrop:
		logger.Error().Err(err).Msg("job failed on final delivery attempt, dropping message")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// ackDecision settles a message. Unknown job types are acked so they are
// not redelivered. Other failures are nacked until attempt reaches
// maxAttempts. An attempt of zero means the subscription does not track
// attempts.
func ackDecision(err error, attempt, maxAttempts int) string {
	switch {
	case err == nil, errors.Is(err, ErrUnknownJobType):
		return decisionAck
	case attempt > 0 && attempt >= maxAttempts:
		return decisionDrop
	default:
		return decisionNack
	}
}
