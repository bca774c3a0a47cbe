package server

import (
	"context"
	"testing"
	"time"
)

func TestRealtimeDispatcherBroadcastsToEverySubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, cleanupFirst := dispatcher.Subscribe(ctx)
	defer cleanupFirst()
	second, cleanupSecond := dispatcher.Subscribe(ctx)
	defer cleanupSecond()

	dispatcher.MoviesChanged(context.Background(), "user-1")

	for index, stream := range []<-chan RealtimeMessage{first, second} {
		select {
		case received := <-stream:
			if received.EventType != RealtimeEventMoviesChanged {
				t.Fatalf("subscriber %d: expected event type %s, got %s", index, RealtimeEventMoviesChanged, received.EventType)
			}
			if received.ActorID != "user-1" {
				t.Fatalf("subscriber %d: expected actor user-1, got %s", index, received.ActorID)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %d: expected realtime message within deadline", index)
		}
	}
}

func TestRealtimeDispatcherDropsSubscriberOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	if dispatcher.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", dispatcher.SubscriberCount())
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeDispatcherDoesNotBlockOnFullBuffers(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	done := make(chan struct{})
	go func() {
		for i := 0; i < dispatcher.bufferSize*4; i++ {
			dispatcher.MoviesChanged(context.Background(), "user-2")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if len(stream) != dispatcher.bufferSize {
		t.Fatalf("expected buffer to hold %d messages, got %d", dispatcher.bufferSize, len(stream))
	}
}

func TestRealtimeDispatcherIgnoresEmptyEvents(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	dispatcher.Publish(RealtimeMessage{ActorID: "user-3"})

	select {
	case <-stream:
		t.Fatal("did not expect a message without an event type")
	case <-time.After(100 * time.Millisecond):
	}
}
