package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventMoviesChanged = "movies-changed"
	realtimeEventHeartbeat     = "heartbeat"
	realtimeSourceBackend      = "movieclub-api"

	defaultHeartbeatInterval = 25 * time.Second
)

// RealtimeMessage tells connected members that the shared movie list changed.
type RealtimeMessage struct {
	EventType string
	ActorID   string
	Timestamp time.Time
}

// RealtimeDispatcher fans change events out to every open event stream.
// Slow subscribers drop events rather than block publishers; clients re-fetch
// the full listing on the next event anyway.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that lives until ctx is done or cleanup is called.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.mu.Lock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.mu.Lock()
			delete(d.subscribers, subscriber.id)
			d.mu.Unlock()
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// MoviesChanged satisfies club.ChangeNotifier.
func (d *RealtimeDispatcher) MoviesChanged(_ context.Context, actorID string) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventMoviesChanged,
		ActorID:   actorID,
		Timestamp: d.clock().UTC(),
	})
}

// SubscriberCount reports how many streams are open.
func (d *RealtimeDispatcher) SubscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

type realtimeEventPayload struct {
	ActorID   string `json:"actorId,omitempty"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	if h.realtime == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Realtime updates are unavailable"})
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(_ io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message := <-stream:
			c.SSEvent(message.EventType, realtimeEventPayload{
				ActorID:   message.ActorID,
				Timestamp: message.Timestamp.Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimeEventPayload{
				Timestamp: tick.UTC().Format(time.RFC3339),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
}
