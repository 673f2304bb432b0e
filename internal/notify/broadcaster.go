// Package notify fans out sync-state changes to subscribers over
// server-sent events, debouncing bursts of changes the same way
// internal/provider.BaseService debounces sync requests.
package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// debounceWindow coalesces rapid state changes (e.g. every item in a large
// sync round finishing) into a single broadcast.
const debounceWindow = 300 * time.Millisecond

// message is the envelope sent to every subscriber, matching the
// {cmd, data} shape spec.md's external interface calls for.
type message struct {
	Cmd  string `json:"cmd"`
	Data any    `json:"data"`
}

// Broadcaster holds a set of subscriber channels and a snapshot function
// invoked lazily whenever a debounced broadcast fires.
type Broadcaster struct {
	snapshot func() any
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[chan []byte]struct{}

	pendingMu sync.Mutex
	pending   bool
	notify    chan struct{}
}

// NewBroadcaster creates a Broadcaster. snapshot is called each time a
// debounced broadcast fires, to build the current state payload.
func NewBroadcaster(snapshot func() any, logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Broadcaster{
		snapshot: snapshot,
		logger:   logger,
		subs:     map[chan []byte]struct{}{},
		notify:   make(chan struct{}, 1),
	}
	go b.loop()
	return b
}

// Subscribe registers a new subscriber channel; the caller must drain it
// and call Unsubscribe when done (typically on request-context cancel).
func (b *Broadcaster) Subscribe() chan []byte {
	ch := make(chan []byte, 4)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broadcaster) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Changed requests a debounced broadcast. Safe to call from any goroutine;
// never blocks.
func (b *Broadcaster) Changed() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

func (b *Broadcaster) loop() {
	for range b.notify {
		time.Sleep(debounceWindow)
		// Drain any notifications that arrived during the debounce window
		// so a burst collapses into exactly one broadcast.
		for {
			select {
			case <-b.notify:
				continue
			default:
			}
			break
		}
		b.broadcastNow()
	}
}

func (b *Broadcaster) broadcastNow() {
	payload, err := json.Marshal(message{Cmd: "UpdateSync", Data: b.snapshot()})
	if err != nil {
		b.logger.Error("notify: marshal snapshot failed", "error", err)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- payload:
		default:
			b.logger.Warn("notify: subscriber channel full, dropping update")
		}
	}
}
