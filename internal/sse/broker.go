// Package sse streams processing runs to browsers over Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/beamline/internal/models"
)

// Event types sent to clients.
const (
	TypeProcessed    = "file.processed"
	TypeRenamed      = "file.renamed"
	TypeFailed       = "file.failed"
	TypeStatsUpdated = "stats.updated"
)

// reconnectHint is sent once per connection as the SSE retry field.
const reconnectHint = 3 * time.Second

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// StatsSource provides the totals sent with stats.updated.
type StatsSource interface {
	Stats() (models.Stats, error)
}

// Option configures a Broker.
type Option func(*Broker)

// WithStats attaches totals to stats.updated events. Without a source the
// event carries an empty object and clients refetch /api/stats.
func WithStats(s StatsSource) Option {
	return func(b *Broker) { b.stats = s }
}

// Broker fans run notifications out to connected clients.
//
// A single goroutine owns the client set, the event sequence and the stats
// throttle timestamp; public methods talk to it over channels.
type Broker struct {
	statsMin  time.Duration
	keepAlive time.Duration
	stats     StatsSource

	join    chan chan []byte
	leave   chan chan []byte
	events  chan Event
	runs    chan models.Run
	counts  chan chan int
	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker that emits at most one stats.updated event per
// statsThrottle.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}
	b := &Broker{
		statsMin:  statsThrottle,
		keepAlive: 15 * time.Second,
		join:      make(chan chan []byte),
		leave:     make(chan chan []byte),
		events:    make(chan Event, 256),
		runs:      make(chan models.Run, 256),
		counts:    make(chan chan int),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

// RunEventType maps a run to the event type clients receive.
func RunEventType(r models.Run) string {
	switch {
	case r.Outcome == models.OutcomeFailed:
		return TypeFailed
	case r.RenamedTo != "":
		return TypeRenamed
	default:
		return TypeProcessed
	}
}

// frame renders one SSE message with its sequence id.
func frame(seq uint64, ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("id: ")
	buf.WriteString(strconv.FormatUint(seq, 10))
	buf.WriteString("\nevent: ")
	buf.WriteString(ev.Type)
	buf.WriteString("\ndata: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		seq       uint64
		lastStats time.Time
	)

	broadcast := func(ev Event) {
		seq++
		msg, err := frame(seq, ev)
		if err != nil {
			return
		}
		for ch := range clients {
			select {
			case ch <- msg:
			default:
				// Slow client; drop rather than stall the loop.
			}
		}
	}

	statsEvent := func() Event {
		if b.stats == nil {
			return Event{Type: TypeStatsUpdated, Data: struct{}{}}
		}
		st, err := b.stats.Stats()
		if err != nil {
			return Event{Type: TypeStatsUpdated, Data: struct{}{}}
		}
		return Event{Type: TypeStatsUpdated, Data: st}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.join:
			clients[ch] = struct{}{}

		case ch := <-b.leave:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case ev := <-b.events:
			broadcast(ev)

		case run := <-b.runs:
			broadcast(Event{Type: RunEventType(run), Data: run})
			if now := time.Now(); now.Sub(lastStats) >= b.statsMin {
				lastStats = now
				broadcast(statsEvent())
			}

		case resp := <-b.counts:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.join <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leave <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.counts <- resp:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an arbitrary event to all clients.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.events <- ev:
	case <-b.stopped:
	}
}

// PublishRun announces a finished run plus a throttled stats.updated event.
func (b *Broker) PublishRun(r models.Run) {
	if b.closed.Load() {
		return
	}
	select {
	case b.runs <- r:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A comment line
// is written every keep-alive period so idle proxies keep the stream open.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("retry: " + strconv.FormatInt(reconnectHint.Milliseconds(), 10) + "\n\n"))
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
