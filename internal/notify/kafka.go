package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// Event kinds published to the notification topic. Downstream senders
// (email, SMS, push) consume these and render the actual messages.
const (
	EventOffer          = "offer"
	EventArrivalWarning = "arrival_warning"
	EventReassigned     = "reassigned"
	EventCustomerDelay  = "customer_delay"
	EventManualReview   = "manual_review"
)

// Event is the wire format for a notification.
type Event struct {
	Kind        string `json:"kind"`
	JobID       uint   `json:"job_id"`
	ProviderID  uint   `json:"provider_id,omitempty"`
	MinutesLeft int    `json:"minutes_left,omitempty"`
	At          string `json:"at"`
}

// KafkaNotifier publishes notification events to a Kafka topic.
type KafkaNotifier struct {
	writer *kafka.Writer
}

// NewKafkaNotifier creates a notifier that publishes to the given brokers
// and topic.
func NewKafkaNotifier(brokers []string, topic string) *KafkaNotifier {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaNotifier{writer: w}
}

// NotifyOffer publishes a new offer event.
func (k *KafkaNotifier) NotifyOffer(ctx context.Context, providerID, jobID uint) error {
	return k.publish(ctx, Event{Kind: EventOffer, JobID: jobID, ProviderID: providerID})
}

// NotifyArrivalWarning publishes an approaching-deadline event.
func (k *KafkaNotifier) NotifyArrivalWarning(ctx context.Context, providerID, jobID uint, minutesLeft int) error {
	return k.publish(ctx, Event{Kind: EventArrivalWarning, JobID: jobID, ProviderID: providerID, MinutesLeft: minutesLeft})
}

// NotifyReassigned publishes a reassignment event for the new candidate.
func (k *KafkaNotifier) NotifyReassigned(ctx context.Context, providerID, jobID uint) error {
	return k.publish(ctx, Event{Kind: EventReassigned, JobID: jobID, ProviderID: providerID})
}

// NotifyCustomerDelay publishes a delay notice for the customer.
func (k *KafkaNotifier) NotifyCustomerDelay(ctx context.Context, jobID uint) error {
	return k.publish(ctx, Event{Kind: EventCustomerDelay, JobID: jobID})
}

// NotifyManualReview publishes a manual-review escalation.
func (k *KafkaNotifier) NotifyManualReview(ctx context.Context, jobID uint) error {
	return k.publish(ctx, Event{Kind: EventManualReview, JobID: jobID})
}

func (k *KafkaNotifier) publish(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	e.At = time.Now().UTC().Format(time.RFC3339)
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	key := strconv.FormatUint(uint64(e.JobID), 10)
	return k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: b})
}

// Close flushes and closes the underlying writer.
func (k *KafkaNotifier) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
