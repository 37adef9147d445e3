package syncbus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
)

// BusFileName is the broadcast file under the app-lock state directory.
const BusFileName = "bus.jsonl"

// maxBusFileSize bounds growth of the broadcast file. Publishing truncates
// the file past this point; readers detect the shrink and reset.
const maxBusFileSize = 256 * 1024

// FileBus broadcasts messages by appending JSON lines to a shared file
// and watching it with fsnotify. Each surface carries a random origin ID
// and skips its own messages on delivery.
type FileBus struct {
	path   string
	origin string

	watcher *fsnotify.Watcher
	done    chan struct{}

	mu        sync.Mutex
	offset    int64
	listeners map[int]func(Message)
	nextID    int
	closed    bool
}

// OpenFile opens the broadcast channel in dir. It returns an error when
// the runtime cannot provide a file watcher; callers treat that as the
// capability being unavailable and run single-surface.
func OpenFile(dir string) (*FileBus, error) {
	path := filepath.Join(dir, BusFileName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("syncbus: failed to create bus file: %w", err)
	}
	f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("syncbus: watcher unavailable: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("syncbus: failed to watch bus file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("syncbus: failed to stat bus file: %w", err)
	}

	b := &FileBus{
		path:      path,
		origin:    uuid.NewString(),
		watcher:   watcher,
		done:      make(chan struct{}),
		offset:    info.Size(),
		listeners: make(map[int]func(Message)),
	}
	go b.watch()
	return b, nil
}

// Origin returns this surface's identifier.
func (b *FileBus) Origin() string {
	return b.origin
}

// Publish appends one message to the bus file.
func (b *FileBus) Publish(msg Message) error {
	msg.Origin = b.origin

	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("syncbus: failed to marshal message: %w", err)
	}
	raw = append(raw, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("syncbus: bus closed")
	}

	if info, err := os.Stat(b.path); err == nil && info.Size() > maxBusFileSize {
		// Best-effort rotation; readers reset on shrink.
		if err := os.Truncate(b.path, 0); err == nil {
			b.offset = 0
		}
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("syncbus: failed to open bus file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(raw); err != nil {
		return fmt.Errorf("syncbus: failed to append message: %w", err)
	}

	// The offset stays put: a foreign message may already sit between it
	// and our write, and drain skips our own lines by origin anyway.
	return nil
}

// Subscribe registers fn for messages from other surfaces.
func (b *FileBus) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.listeners, id)
		})
	}
}

// Close stops the watcher and releases the bus.
func (b *FileBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	return b.watcher.Close()
}

func (b *FileBus) watch() {
	for {
		select {
		case <-b.done:
			return
		case event, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				b.drain()
			}
		case _, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			// Watcher errors degrade to missed messages; the stores stay
			// authoritative, so nothing to do here.
		}
	}
}

// drain reads messages appended since the last offset and delivers them.
func (b *FileBus) drain() {
	b.mu.Lock()

	f, err := os.Open(b.path)
	if err != nil {
		b.mu.Unlock()
		return
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		b.mu.Unlock()
		return
	}
	if info.Size() < b.offset {
		// File was rotated by another surface.
		b.offset = 0
	}
	if _, err := f.Seek(b.offset, 0); err != nil {
		f.Close()
		b.mu.Unlock()
		return
	}

	var msgs []Message
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		b.offset += int64(len(line)) + 1
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue // torn or foreign line, skip
		}
		if msg.Origin == b.origin {
			continue
		}
		msgs = append(msgs, msg)
	}
	f.Close()

	fns := make([]func(Message), 0, len(b.listeners))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	b.mu.Unlock()

	// Deliver outside the lock so handlers may publish or unsubscribe.
	for _, msg := range msgs {
		for _, fn := range fns {
			fn(msg)
		}
	}
}
