// Package sse streams memo sync notices and vault status changes to
// connected clients as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/GraysonCAdams/dex-contacts/internal/memo"
)

// Event types.
const (
	TypeMemoCreated   = "memo.created"
	TypeMemoUpdated   = "memo.updated"
	TypeMemoFailed    = "memo.failed"
	TypeNoteScanned   = "note.scanned"
	TypeNoteRemoved   = "note.removed"
	TypeStatusChanged = "status.changed"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type noteEventReq struct {
	kind string
	path string
}

// Broker fans events out to SSE clients.
//
// A single event loop goroutine owns the client set and the status throttle;
// public methods talk to it over channels. status.changed is emitted at most
// once per throttle window, and a change inside the window is flushed when
// the window closes. Memo failures are never dropped for a slow client: the
// client's oldest queued message makes room instead.
type Broker struct {
	statusMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	noteEventCh   chan noteEventReq
	noticeCh      chan memo.Notice
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ memo.Notifier = (*Broker)(nil)

// NewBroker creates a broker that emits at most one status.changed event per
// statusThrottle.
func NewBroker(statusThrottle time.Duration) *Broker {
	if statusThrottle <= 0 {
		statusThrottle = 2 * time.Second
	}

	b := &Broker{
		statusMin:     statusThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		noteEventCh:   make(chan noteEventReq, 256),
		noticeCh:      make(chan memo.Notice, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func encode(event Event) ([]byte, bool) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil, false
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)), true
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastStatus time.Time
		flush      <-chan time.Time
	)

	broadcast := func(event Event) {
		raw, ok := encode(event)
		if !ok {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; drop.
			}
		}
	}

	// deliver evicts the oldest queued message of a full client.
	deliver := func(event Event) {
		raw, ok := encode(event)
		if !ok {
			return
		}
		for ch := range clients {
			select {
			case ch <- raw:
				continue
			default:
			}
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- raw:
			default:
			}
		}
	}

	statusChanged := func() {
		if flush != nil {
			return
		}
		wait := b.statusMin - time.Since(lastStatus)
		if wait > 0 {
			flush = time.After(wait)
			return
		}
		lastStatus = time.Now()
		broadcast(Event{Type: TypeStatusChanged, Data: map[string]string{}})
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.noteEventCh:
			data := map[string]string{"path": req.path}
			switch req.kind {
			case "created", "updated":
				broadcast(Event{Type: TypeNoteScanned, Data: data})
			case "deleted":
				broadcast(Event{Type: TypeNoteRemoved, Data: data})
			}
			statusChanged()

		case n := <-b.noticeCh:
			event := noticeEvent(n)
			if n.Kind == memo.NoticeFailed {
				deliver(event)
				continue
			}
			broadcast(event)
			statusChanged()

		case <-flush:
			flush = nil
			lastStatus = time.Now()
			broadcast(Event{Type: TypeStatusChanged, Data: map[string]string{}})

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
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
	case b.subscribeCh <- ch:
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
	case b.unsubscribeCh <- ch:
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
	case b.countReqCh <- resp:
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

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a rescan of path and a throttled
// status.changed event. kind is "created", "updated" or "deleted".
func (b *Broker) PublishNoteEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noteEventCh <- noteEventReq{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// noticeData is the payload of memo events.
type noticeData struct {
	Path      string `json:"path"`
	Line      int    `json:"line"`
	ContactID string `json:"contact_id"`
	MemoID    string `json:"memo_id,omitempty"`
	Fallback  bool   `json:"fallback,omitempty"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// Notify implements memo.Notifier. A created or updated memo also counts as
// a status change.
func (b *Broker) Notify(n memo.Notice) {
	if b.closed.Load() {
		return
	}
	select {
	case b.noticeCh <- n:
	case <-b.stopped:
	}
}

func noticeEvent(n memo.Notice) Event {
	typ := TypeMemoFailed
	switch n.Kind {
	case memo.NoticeCreated:
		typ = TypeMemoCreated
	case memo.NoticeUpdated:
		typ = TypeMemoUpdated
	}
	return Event{Type: typ, Data: noticeData{
		Path:      n.DocID,
		Line:      n.Line,
		ContactID: n.ContactID,
		MemoID:    n.MemoID,
		Fallback:  n.Fallback,
		Message:   n.Message(),
		Error:     n.Err,
	}}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
