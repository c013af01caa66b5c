package hub

import (
	"sync"
	"time"

	"hackathon-ai-jury/internal/domain/model"
	"hackathon-ai-jury/internal/infra/metrics"

	"github.com/rs/zerolog"
)

const subscriberBuffer = 16

// Hub is the in-process progress broadcast registry. Events for one
// owner id reach every current subscriber in publish order; a late
// joiner first receives the replay ring, then the live stream. The hub
// is ephemeral by design: durable truth lives in the job/session rows.
type Hub struct {
	mu        sync.Mutex
	topics    map[string]*topic
	replayCap int
	grace     time.Duration
	log       *zerolog.Logger
}

type topic struct {
	ring    []model.ProgressEvent
	subs    map[int]chan model.ProgressEvent
	nextSub int
	closing bool
}

// Subscription is one observer's attachment to an owner's stream.
type Subscription struct {
	// Replay holds the ring-buffer contents at subscribe time, ordered
	// oldest first. Consume it before reading Events.
	Replay []model.ProgressEvent
	// Events delivers subsequent events in publish order. It is closed
	// when the owner terminates (after a grace period), when the
	// subscriber falls too far behind, or on Cancel.
	Events <-chan model.ProgressEvent

	cancel func()
	once   sync.Once
}

// Cancel detaches the subscriber. Safe to call multiple times and
// concurrently with hub teardown.
func (s *Subscription) Cancel() { s.once.Do(s.cancel) }

func New(replayCap int, grace time.Duration, log *zerolog.Logger) *Hub {
	if replayCap <= 0 {
		replayCap = 100
	}
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Hub{
		topics:    make(map[string]*topic),
		replayCap: replayCap,
		grace:     grace,
		log:       log,
	}
}

// Publish appends the event to the owner's ring buffer and fans it out
// to all current subscribers. It never blocks on a slow subscriber: a
// full delivery queue drops that subscriber instead of stalling the
// publisher. A terminal event schedules topic teardown after the grace
// period so push transports observe end-of-stream.
func (h *Hub) Publish(ownerID string, ev model.ProgressEvent) {
	h.mu.Lock()
	t := h.topics[ownerID]
	if t == nil {
		t = newTopic()
		h.topics[ownerID] = t
	}

	t.ring = append(t.ring, ev)
	if len(t.ring) > h.replayCap {
		t.ring = t.ring[len(t.ring)-h.replayCap:]
	}

	for id, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; cut it loose rather than
			// blocking every other observer of this owner.
			delete(t.subs, id)
			close(ch)
			metrics.IncHubDropped()
			metrics.DecHubSubscribers()
			h.log.Warn().Str("owner_id", ownerID).Int("sub_id", id).Msg("dropped slow progress subscriber")
		}
	}

	terminal := ev.Terminal() && !t.closing
	if terminal {
		t.closing = true
	}
	h.mu.Unlock()

	metrics.IncHubEvent(string(ev.Kind))

	if terminal {
		time.AfterFunc(h.grace, func() { h.closeTopic(ownerID) })
	}
}

// Subscribe attaches a new observer to ownerID. Subscribing to an owner
// with no prior events (or one already torn down) yields an empty replay;
// the caller is expected to re-query durable status on reconnect.
func (h *Hub) Subscribe(ownerID string) *Subscription {
	h.mu.Lock()
	t := h.topics[ownerID]
	if t == nil {
		t = newTopic()
		h.topics[ownerID] = t
	}

	id := t.nextSub
	t.nextSub++
	ch := make(chan model.ProgressEvent, subscriberBuffer)
	t.subs[id] = ch

	replay := make([]model.ProgressEvent, len(t.ring))
	copy(replay, t.ring)
	h.mu.Unlock()

	metrics.IncHubSubscribers()

	return &Subscription{
		Replay: replay,
		Events: ch,
		cancel: func() { h.unsubscribe(ownerID, id) },
	}
}

// SubscriberCount reports live subscribers for an owner (test/ops hook).
func (h *Hub) SubscriberCount(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t := h.topics[ownerID]; t != nil {
		return len(t.subs)
	}
	return 0
}

// Close tears down every topic immediately; used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range h.topics {
		for id, ch := range t.subs {
			delete(t.subs, id)
			close(ch)
			metrics.DecHubSubscribers()
		}
	}
	h.topics = make(map[string]*topic)
}

func newTopic() *topic {
	return &topic{subs: make(map[int]chan model.ProgressEvent)}
}

func (h *Hub) unsubscribe(ownerID string, id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.topics[ownerID]
	if t == nil {
		return
	}
	if ch, ok := t.subs[id]; ok {
		delete(t.subs, id)
		close(ch)
		metrics.DecHubSubscribers()
	}
}

func (h *Hub) closeTopic(ownerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.topics[ownerID]
	if t == nil {
		return
	}
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
		metrics.DecHubSubscribers()
	}
	delete(h.topics, ownerID)
}
