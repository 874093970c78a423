package worker

import (
	"context"
	"errors"
	"testing"
)

func TestBus_DispatchOrder(t *testing.T) {
	b := newBus(ModeImperative)

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		b.add(TypeFetch, NewListener(func(ctx context.Context, ev Event) error {
			order = append(order, i)
			return nil
		}))
	}

	ev := newFetchEvent(newTestRequest(), nil)
	if err := b.Dispatch(context.Background(), ev); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Errorf("Expected listeners in registration order, got %v", order)
	}
}

func TestBus_DedupByIdentity(t *testing.T) {
	b := newBus(ModeImperative)

	var count int
	l := NewListener(func(ctx context.Context, ev Event) error {
		count++
		return nil
	})

	b.add(TypeFetch, l)
	b.add(TypeFetch, l)

	if err := b.Dispatch(context.Background(), newFetchEvent(newTestRequest(), nil)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 invocation after duplicate add, got %d", count)
	}
}

func TestBus_FirstErrorHaltsFanOut(t *testing.T) {
	b := newBus(ModeImperative)
	boom := errors.New("boom")

	var after bool
	b.add(TypeFetch, NewListener(func(ctx context.Context, ev Event) error {
		return boom
	}))
	b.add(TypeFetch, NewListener(func(ctx context.Context, ev Event) error {
		after = true
		return nil
	}))

	err := b.Dispatch(context.Background(), newFetchEvent(newTestRequest(), nil))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if after {
		t.Error("Listener after the failing one was invoked")
	}
}

func TestBus_StopImmediatePropagation(t *testing.T) {
	b := newBus(ModeImperative)

	var after bool
	b.add(TypeFetch, NewListener(func(ctx context.Context, ev Event) error {
		ev.StopImmediatePropagation()
		return nil
	}))
	b.add(TypeFetch, NewListener(func(ctx context.Context, ev Event) error {
		after = true
		return nil
	}))

	if err := b.Dispatch(context.Background(), newFetchEvent(newTestRequest(), nil)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	if after {
		t.Error("Listener ran after propagation was stopped")
	}
}

func TestBus_RemoveListener(t *testing.T) {
	b := newBus(ModeImperative)

	var count int
	l := NewListener(func(ctx context.Context, ev Event) error {
		count++
		return nil
	})

	b.add(TypeFetch, l)
	if err := b.Dispatch(context.Background(), newFetchEvent(newTestRequest(), nil)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}
	b.remove(TypeFetch, l)
	if err := b.Dispatch(context.Background(), newFetchEvent(newTestRequest(), nil)); err != nil {
		t.Fatalf("Dispatch returned error: %v", err)
	}

	if count != 1 {
		t.Errorf("Expected 1 invocation after removal, got %d", count)
	}
}

func TestBus_ModuleModeRejectsRegistration(t *testing.T) {
	b := newBus(ModeModule)
	l := NewListener(func(ctx context.Context, ev Event) error { return nil })

	var cfgErr *ConfigurationError
	if err := b.AddListener(TypeFetch, l); !errors.As(err, &cfgErr) {
		t.Errorf("AddListener: expected ConfigurationError, got %v", err)
	}
	if err := b.RemoveListener(TypeFetch, l); !errors.As(err, &cfgErr) {
		t.Errorf("RemoveListener: expected ConfigurationError, got %v", err)
	}
}
