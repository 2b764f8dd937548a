package events

import (
	"testing"
	"time"

	"github.com/bhtools/podbulk/internal/models"
)

func TestEventBus_PublishSubscribe(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch := bus.Subscribe(EventProgress)

	bus.PublishProgress(3, models.JobProgress{Status: models.JobRunning, Current: 1, Total: 3}, false)

	select {
	case received := <-ch:
		progress, ok := received.(*ProgressEvent)
		if !ok {
			t.Fatal("Expected ProgressEvent")
		}
		if progress.Epoch != 3 {
			t.Errorf("Expected epoch 3, got %d", progress.Epoch)
		}
		if progress.Progress.Current != 1 || progress.Progress.Total != 3 {
			t.Errorf("Expected 1/3, got %d/%d", progress.Progress.Current, progress.Progress.Total)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Timeout waiting for event")
	}
}

func TestEventBus_MultipleSubscribers(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	ch1 := bus.Subscribe(EventCredentialStatus)
	ch2 := bus.Subscribe(EventCredentialStatus)

	bus.PublishCredentialStatus(models.KindPlatform, models.StateValidating, "Validating...")

	for i, ch := range []<-chan Event{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(100 * time.Millisecond):
			t.Errorf("subscriber %d did not receive the event", i+1)
		}
	}
}

func TestEventBus_DifferentEventTypes(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	progressCh := bus.Subscribe(EventProgress)
	assetsCh := bus.Subscribe(EventAssetsChanged)

	bus.PublishProgress(1, models.JobProgress{}, true)

	select {
	case <-progressCh:
	case <-time.After(100 * time.Millisecond):
		t.Error("Progress subscriber didn't receive event")
	}

	select {
	case <-assetsCh:
		t.Error("Assets subscriber received wrong event type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBus_SubscribeAll(t *testing.T) {
	bus := NewEventBus(10)
	defer bus.Close()

	allCh := bus.SubscribeAll()

	bus.PublishAssets([]string{"a.png"})
	bus.PublishJobState(1, "idle", "polling", "submitted")

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-allCh:
			count++
		case <-time.After(100 * time.Millisecond):
		}
	}
	if count != 2 {
		t.Errorf("Expected 2 events, got %d", count)
	}
}

func TestEventBus_DropsWhenFull(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventAssetsChanged)
	bus.PublishAssets(nil)
	bus.PublishAssets(nil)

	if got := bus.DroppedEvents(); got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestEventBus_NilAndClosedPublishAreNoops(t *testing.T) {
	var nilBus *EventBus
	nilBus.Publish(&LogEvent{BaseEvent: newBase(EventLog)})

	bus := NewEventBus(1)
	ch := bus.Subscribe(EventLog)
	bus.Close()
	bus.PublishLog(InfoLevel, "after close", "test", nil)

	if _, ok := <-ch; ok {
		t.Error("expected closed channel after Close()")
	}
}
