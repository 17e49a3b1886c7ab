package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/hail/driver"
	"github.com/xraph/hail/ext"
	"github.com/xraph/hail/ride"
)

// Compile-time interface checks.
var (
	_ ext.Extension         = (*Broker)(nil)
	_ ext.RideBroadcast     = (*Broker)(nil)
	_ ext.RideClaimed       = (*Broker)(nil)
	_ ext.ClaimContended    = (*Broker)(nil)
	_ ext.RideAdvanced      = (*Broker)(nil)
	_ ext.RideUnlocked      = (*Broker)(nil)
	_ ext.RideCancelled     = (*Broker)(nil)
	_ ext.RideUndeliverable = (*Broker)(nil)
	_ ext.ModeSwitched      = (*Broker)(nil)
	_ ext.Shutdown          = (*Broker)(nil)
)

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 256

// DefaultCredits is the default initial credits for new subscribers.
const DefaultCredits int64 = 1000

// Broker is the real-time stream broker. It implements the ext.Extension
// interface to receive lifecycle events and fans them out to subscribers
// via topic-based pub/sub. Dispatch boards and operator dashboards
// subscribe here to watch rides move in real time.
type Broker struct {
	topics *TopicRegistry
	logger *slog.Logger

	// Subscriber management.
	subscribers sync.Map // subscriberID → *Subscriber

	// Metrics.
	totalPublished atomic.Int64
	totalDropped   atomic.Int64

	// Config.
	bufferSize     int
	defaultCredits int64
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(size int) BrokerOption {
	return func(b *Broker) { b.bufferSize = size }
}

// WithDefaultCredits sets the initial credits for new subscribers.
func WithDefaultCredits(credits int64) BrokerOption {
	return func(b *Broker) { b.defaultCredits = credits }
}

// NewBroker creates a new stream broker.
func NewBroker(logger *slog.Logger, opts ...BrokerOption) *Broker {
	b := &Broker{
		topics:         NewTopicRegistry(),
		logger:         logger,
		bufferSize:     DefaultBufferSize,
		defaultCredits: DefaultCredits,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements ext.Extension.
func (b *Broker) Name() string { return "stream-broker" }

// Topics returns the topic registry for external use.
func (b *Broker) Topics() *TopicRegistry { return b.topics }

// Subscribe creates a new subscriber on the given topics.
func (b *Broker) Subscribe(subscriberID string, topics ...string) *Subscriber {
	sub := NewSubscriber(subscriberID, b.bufferSize, b.defaultCredits)
	b.subscribers.Store(subscriberID, sub)
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
	return sub
}

// SubscribeTo adds an existing subscriber to additional topics.
func (b *Broker) SubscribeTo(subscriberID string, topics ...string) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return
	}
	sub := val.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
	for _, topic := range topics {
		b.topics.Subscribe(topic, sub)
	}
}

// Unsubscribe removes a subscriber from specific topics.
func (b *Broker) Unsubscribe(subscriberID string, topics ...string) {
	for _, topic := range topics {
		b.topics.Unsubscribe(topic, subscriberID)
	}
}

// RemoveSubscriber removes a subscriber from all topics and closes it.
func (b *Broker) RemoveSubscriber(subscriberID string) {
	b.topics.UnsubscribeAll(subscriberID)
	if val, ok := b.subscribers.LoadAndDelete(subscriberID); ok {
		val.(*Subscriber).Close() //nolint:errcheck // sync.Map always stores *Subscriber
	}
}

// GetSubscriber returns a subscriber by ID.
func (b *Broker) GetSubscriber(subscriberID string) (*Subscriber, bool) {
	val, ok := b.subscribers.Load(subscriberID)
	if !ok {
		return nil, false
	}
	return val.(*Subscriber), true //nolint:errcheck // sync.Map always stores *Subscriber
}

// Stats returns broker statistics.
func (b *Broker) Stats() BrokerStats {
	count := 0
	b.subscribers.Range(func(_, _ any) bool {
		count++
		return true
	})
	return BrokerStats{
		TopicCount:      b.topics.TopicCount(),
		SubscriberCount: count,
		TotalPublished:  b.totalPublished.Load(),
		TotalDropped:    b.totalDropped.Load(),
	}
}

// BrokerStats contains broker metrics.
type BrokerStats struct {
	TopicCount      int   `json:"topic_count"`
	SubscriberCount int   `json:"subscriber_count"`
	TotalPublished  int64 `json:"total_published"`
	TotalDropped    int64 `json:"total_dropped"`
}

// publish broadcasts an event to all matching topics. extra lets a hook
// target additional topics, e.g. the losing driver's channel on a
// contended claim.
func (b *Broker) publish(evt *Event, extra ...string) {
	topics := resolveTopics(evt, extra...)
	delivered := b.topics.Broadcast(topics, evt)
	b.totalPublished.Add(int64(delivered))
}

// mustMarshal marshals data to JSON, panicking on error (programming error).
func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic("stream: marshal event data: " + err.Error())
	}
	return data
}

// ── Ride lifecycle hooks ────────────────────────────

func (b *Broker) OnRideBroadcast(_ context.Context, rd *ride.Ride, channelUsed string) error {
	b.publish(&Event{
		Type:      EventRideBroadcast,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:      rd.ID.String(),
			RideNumber:  rd.Number,
			Status:      string(rd.Status),
			ChannelUsed: channelUsed,
		}),
	})
	return nil
}

func (b *Broker) OnRideClaimed(_ context.Context, rd *ride.Ride, d *driver.Driver) error {
	b.publish(&Event{
		Type:      EventRideClaimed,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:     rd.ID.String(),
			RideNumber: rd.Number,
			Status:     string(rd.Status),
			DriverID:   d.ID.String(),
		}),
	}, DriverTopic(d.ID.String()))
	return nil
}

func (b *Broker) OnClaimContended(_ context.Context, rd *ride.Ride, d *driver.Driver) error {
	b.publish(&Event{
		Type:      EventClaimContended,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:     rd.ID.String(),
			RideNumber: rd.Number,
			Status:     string(rd.Status),
			DriverID:   d.ID.String(),
		}),
	}, DriverTopic(d.ID.String()))
	return nil
}

func (b *Broker) OnRideAdvanced(_ context.Context, rd *ride.Ride, from ride.Status) error {
	b.publish(&Event{
		Type:      EventRideAdvanced,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:     rd.ID.String(),
			RideNumber: rd.Number,
			Status:     string(rd.Status),
			DriverID:   rd.Claimant.String(),
			FromStatus: string(from),
		}),
	})
	return nil
}

func (b *Broker) OnRideUnlocked(_ context.Context, rd *ride.Ride) error {
	b.publish(&Event{
		Type:      EventRideUnlocked,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:     rd.ID.String(),
			RideNumber: rd.Number,
			Status:     string(rd.Status),
		}),
	})
	return nil
}

func (b *Broker) OnRideCancelled(_ context.Context, rd *ride.Ride, actor string) error {
	b.publish(&Event{
		Type:      EventRideCancelled,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:     rd.ID.String(),
			RideNumber: rd.Number,
			Status:     string(rd.Status),
			Actor:      actor,
		}),
	})
	return nil
}

func (b *Broker) OnRideUndeliverable(_ context.Context, rd *ride.Ride, deliveryErr error) error {
	b.publish(&Event{
		Type:      EventRideUndeliverable,
		Timestamp: time.Now().UTC(),
		Topic:     RideTopic(rd.ID.String()),
		Data: mustMarshal(RideEventData{
			RideID:     rd.ID.String(),
			RideNumber: rd.Number,
			Status:     string(rd.Status),
			Error:      deliveryErr.Error(),
		}),
	})
	return nil
}

// ── Dispatch hooks ──────────────────────────────────

func (b *Broker) OnModeSwitched(_ context.Context, from, to string) error {
	b.publish(&Event{
		Type:      EventModeSwitched,
		Timestamp: time.Now().UTC(),
		Data:      mustMarshal(ModeEventData{From: from, To: to}),
	})
	return nil
}

// ── Shutdown ────────────────────────────────────────

func (b *Broker) OnShutdown(_ context.Context) error {
	b.subscribers.Range(func(key, value any) bool {
		sub := value.(*Subscriber) //nolint:errcheck // sync.Map always stores *Subscriber
		sub.Close()
		b.subscribers.Delete(key)
		return true
	})
	b.logger.Info("stream broker shut down")
	return nil
}
