package notify

import "testing"

func TestBus_PublishSubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var got []Notification
	unsub := b.Subscribe(ConfigReloaded, func(n Notification) {
		got = append(got, n)
	})
	defer unsub()

	b.Publish(Notification{Type: ConfigReloaded, Data: "wrangler.toml"})
	b.Publish(Notification{Type: WorkerReset})

	if len(got) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(got))
	}
	if got[0].Data != "wrangler.toml" {
		t.Errorf("unexpected data %v", got[0].Data)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	defer b.Close()

	var count int
	unsub := b.Subscribe(WorkerReset, func(n Notification) { count++ })

	b.Publish(Notification{Type: WorkerReset})
	unsub()
	b.Publish(Notification{Type: WorkerReset})

	if count != 1 {
		t.Errorf("expected 1 delivery after unsubscribe, got %d", count)
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := NewBus()

	var count int
	b.Subscribe(WorkerReset, func(n Notification) { count++ })

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b.Publish(Notification{Type: WorkerReset})

	if count != 0 {
		t.Errorf("expected no deliveries after close, got %d", count)
	}
}
