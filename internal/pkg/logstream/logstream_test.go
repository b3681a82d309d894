package logstream

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	ev := ParseLine(`{"event":"info","data":"Starting deploy..."}`)
	if ev.Event != EventInfo || ev.Data != "Starting deploy..." {
		t.Errorf("ParseLine = %+v", ev)
	}
	plain := ParseLine("TASK [wireguard : install] ****")
	if plain.Event != EventMessage || plain.Data != "TASK [wireguard : install] ****" {
		t.Errorf("plain line = %+v", plain)
	}
}

func TestFollowDeliversLiveRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	if err := w.Emit(EventInfo, "Starting deploy..."); err != nil {
		t.Fatal(err)
	}

	var finished atomic.Bool
	go func() {
		time.Sleep(50 * time.Millisecond)
		w.Emit(EventMessage, "PLAY [all]")
		w.Emit(EventDone, "https://203.0.113.7/")
		finished.Store(true)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []Event
	err = Follow(ctx, path, 0, finished.Load, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("Follow: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	if !got[2].Terminal() || got[2].Data != "https://203.0.113.7/" {
		t.Errorf("last event = %+v", got[2])
	}
	for i, ev := range got {
		if ev.ID != i+1 {
			t.Errorf("event %d has id %d", i, ev.ID)
		}
	}
}

func TestFollowResumesAfterID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, _ := Create(path)
	w.Emit(EventInfo, "Starting deploy...")
	w.Emit(EventMessage, "PLAY [all]")
	w.Emit(EventError, "deploy playbook failed")
	w.Close()

	var got []Event
	err := Follow(context.Background(), path, 2, func() bool { return true }, func(ev Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 3 || got[0].Event != EventError {
		t.Fatalf("resumed events = %+v", got)
	}

	got = nil
	if err := Follow(context.Background(), path, 3, func() bool { return true }, func(ev Event) error {
		got = append(got, ev)
		return nil
	}); err != nil || len(got) != 0 {
		t.Fatalf("past the end: err=%v events=%+v", err, got)
	}
}

func TestFollowStopsOnCallbackSignal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, _ := Create(path)
	w.Emit(EventMessage, "a")
	w.Emit(EventMessage, "b")
	w.Close()

	count := 0
	err := Follow(context.Background(), path, 0, func() bool { return false }, func(Event) error {
		count++
		return ErrStopFollow
	})
	if err != nil || count != 1 {
		t.Fatalf("err=%v count=%d", err, count)
	}
}

func TestFollowHonoursContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := Follow(ctx, path, 0, func() bool { return false }, func(Event) error { return nil })
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestReadAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")
	w, _ := Create(path)
	w.Emit(EventInfo, "x")
	w.Emit(EventError, "boom")
	w.Close()

	events, err := ReadAll(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[1].PlainLine() != "[ERROR] boom" {
		t.Errorf("events = %+v", events)
	}
}
