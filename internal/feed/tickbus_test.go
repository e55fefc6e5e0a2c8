package feed

import (
	"testing"

	"dhancore/internal/models"
)

func TestTickBus_PublishAndConsume(t *testing.T) {
	bus := NewTickBus(4)
	bus.Publish(&models.Tick{Token: "a"})
	bus.Publish(&models.Tick{Token: "b"})

	first := <-bus.C()
	second := <-bus.C()
	if first.Token != "a" || second.Token != "b" {
		t.Errorf("expected FIFO order, got %s then %s", first.Token, second.Token)
	}
	if bus.Published() != 2 {
		t.Errorf("expected 2 published, got %d", bus.Published())
	}
}

func TestTickBus_DropsOldestWhenFull(t *testing.T) {
	bus := NewTickBus(2)
	bus.Publish(&models.Tick{Token: "1"})
	bus.Publish(&models.Tick{Token: "2"})
	bus.Publish(&models.Tick{Token: "3"}) // should evict "1"

	first := <-bus.C()
	second := <-bus.C()
	if first.Token != "2" || second.Token != "3" {
		t.Errorf("expected oldest dropped, got %s then %s", first.Token, second.Token)
	}
	if bus.Dropped() != 1 {
		t.Errorf("expected 1 dropped tick recorded, got %d", bus.Dropped())
	}
}
