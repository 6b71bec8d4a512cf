package eventbus

import "testing"

func TestSubscribePrefixFilter(t *testing.T) {
	b := New()
	jobs, unsubJobs := b.Subscribe(4, "poster.job.")
	defer unsubJobs()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()

	Emit(b, "notifier.sent", nil)
	Emit(b, "poster.job.completed", "bulk:1")

	select {
	case e := <-jobs:
		if e.Type != "poster.job.completed" || e.Data != "bulk:1" {
			t.Fatalf("unexpected event %+v", e)
		}
	default:
		t.Fatal("filtered subscriber got nothing")
	}
	if len(jobs) != 0 {
		t.Fatalf("filtered subscriber got %d extra events", len(jobs))
	}
	if len(all) != 2 {
		t.Fatalf("unfiltered subscriber got %d events, want 2", len(all))
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	Emit(b, "a", nil)
	Emit(b, "b", nil)
	if len(ch) != 1 {
		t.Fatalf("len = %d, want 1", len(ch))
	}
	unsub()
	unsub()
	Emit(b, "c", nil) // no panic after unsubscribe
}

func TestEmitNilBus(t *testing.T) {
	Emit(nil, "x", nil)
}
