package syncbus

import (
	"testing"
	"time"
)

func waitFor(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for broadcast delivery")
		return Message{}
	}
}

func TestFileBusDeliversBetweenSurfaces(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile (a) failed: %v", err)
	}
	defer a.Close()

	b, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile (b) failed: %v", err)
	}
	defer b.Close()

	got := make(chan Message, 1)
	unsub := b.Subscribe(func(msg Message) { got <- msg })
	defer unsub()

	want := Message{
		Type:                KindBruteForce,
		InvalidAttemptCount: 5,
		CooldownExpiresAt:   1700000000000,
	}
	if err := a.Publish(want); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	msg := waitFor(t, got)
	if msg.Type != KindBruteForce {
		t.Errorf("type = %q, want %q", msg.Type, KindBruteForce)
	}
	if msg.InvalidAttemptCount != 5 || msg.CooldownExpiresAt != 1700000000000 {
		t.Errorf("payload not preserved: %+v", msg)
	}
	if msg.Origin != a.Origin() {
		t.Errorf("origin = %q, want publisher %q", msg.Origin, a.Origin())
	}
}

func TestFileBusSkipsOwnMessages(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer a.Close()

	got := make(chan Message, 1)
	unsub := a.Subscribe(func(msg Message) { got <- msg })
	defer unsub()

	if err := a.Publish(Message{Type: KindLock}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-got:
		t.Errorf("surface received its own message: %+v", msg)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestFileBusDeliversForeignMessageBehindOwnPublish(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile (a) failed: %v", err)
	}
	defer a.Close()

	b, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile (b) failed: %v", err)
	}
	defer b.Close()

	got := make(chan Message, 4)
	unsub := a.Subscribe(func(msg Message) {
		if msg.Type == KindLock {
			got <- msg
		}
	})
	defer unsub()

	// b's broadcast lands first; a publishes right behind it, usually
	// before a's watcher has drained b's line. b's message must still
	// be delivered to a.
	if err := b.Publish(Message{Type: KindLock}); err != nil {
		t.Fatalf("Publish (b) failed: %v", err)
	}
	if err := a.Publish(Message{Type: KindUnlock}); err != nil {
		t.Fatalf("Publish (a) failed: %v", err)
	}

	msg := waitFor(t, got)
	if msg.Origin != b.Origin() {
		t.Errorf("origin = %q, want %q", msg.Origin, b.Origin())
	}
}

func TestFileBusUnsubscribe(t *testing.T) {
	dir := t.TempDir()

	a, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile (a) failed: %v", err)
	}
	defer a.Close()

	b, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile (b) failed: %v", err)
	}
	defer b.Close()

	got := make(chan Message, 1)
	unsub := b.Subscribe(func(msg Message) { got <- msg })
	unsub()
	unsub() // safe to call twice

	if err := a.Publish(Message{Type: KindUnlock}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case msg := <-got:
		t.Errorf("unsubscribed handler received message: %+v", msg)
	case <-time.After(300 * time.Millisecond):
	}
}
